package grpcsvc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type stubIdempotencyRepository struct {
	createRecord domain.IdempotencyRecord
	createErr    error
	markDoneFn   func(string, []byte, int) error
	markFailedFn func(string, []byte, int) error
}

func (s *stubIdempotencyRepository) CreateProcessing(string, string, time.Time) (domain.IdempotencyRecord, error) {
	return s.createRecord, s.createErr
}

func (s *stubIdempotencyRepository) Get(string) (domain.IdempotencyRecord, error) {
	return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
}

func (s *stubIdempotencyRepository) MarkDone(key string, body []byte, code int) error {
	if s.markDoneFn != nil {
		return s.markDoneFn(key, body, code)
	}
	return nil
}

func (s *stubIdempotencyRepository) MarkFailed(key string, body []byte, code int) error {
	if s.markFailedFn != nil {
		return s.markFailedFn(key, body, code)
	}
	return nil
}

func (s *stubIdempotencyRepository) DeleteExpired(time.Time, int) (int, error) {
	return 0, nil
}

func mustStatusCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, want, status.Code(err), err.Error())
}

func newInternalService(idem domain.IdempotencyRepository) *StorefrontService {
	return NewStorefrontService(nil, nil, nil, idem, log.New().WithField("test", "grpc"))
}

func TestNewStorefrontService_NilLogger(t *testing.T) {
	service := NewStorefrontService(nil, nil, nil, nil, nil)
	require.NotNil(t, service.logger)
}

func TestToStatus_Mapping(t *testing.T) {
	service := newInternalService(nil)

	tests := []struct {
		err     error
		code    codes.Code
		message string
	}{
		{domain.ErrQuantityInvalid, codes.InvalidArgument, "Valid quantity is required"},
		{domain.ErrCartIsEmpty, codes.FailedPrecondition, "Cart is empty"},
		{fmt.Errorf("load: %w", domain.ErrCartNotFound), codes.NotFound, "Cart not found"},
		{domain.ErrCartVersionConflict, codes.Aborted, "Cart was modified concurrently"},
		{domain.ErrOrderNumberTaken, codes.AlreadyExists, "Order number already exists"},
		{context.DeadlineExceeded, codes.DeadlineExceeded, context.DeadlineExceeded.Error()},
		{errors.New("db exploded"), codes.Internal, "Internal server error"},
	}

	for _, tt := range tests {
		err := service.toStatus(tt.err, "test")
		mustStatusCode(t, err, tt.code)
		require.Equal(t, tt.message, status.Convert(err).Message())
	}
}

func TestRememberFailure(t *testing.T) {
	var gotKey string
	var gotPayload []byte
	var gotStatus int

	service := newInternalService(&stubIdempotencyRepository{
		markFailedFn: func(key string, payload []byte, statusCode int) error {
			gotKey = key
			gotPayload = append([]byte(nil), payload...)
			gotStatus = statusCode
			return nil
		},
	})

	service.rememberFailure("idem-1", status.Error(codes.FailedPrecondition, "Cart is empty"))
	require.Equal(t, "idem-1", gotKey)
	require.Equal(t, int(codes.FailedPrecondition), gotStatus)
	require.JSONEq(t, `{"code":9,"message":"Cart is empty"}`, string(gotPayload))

	service = newInternalService(&stubIdempotencyRepository{
		markFailedFn: func(string, []byte, int) error { return errors.New("store failed") },
	})
	service.rememberFailure("idem-2", nil)
}

func TestStoredFailure_Branches(t *testing.T) {
	err := storedFailure(domain.IdempotencyRecord{
		ResponseBody: []byte(`{"code":3,"message":"payload mismatch"}`),
	})
	mustStatusCode(t, err, codes.InvalidArgument)
	require.Equal(t, "payload mismatch", status.Convert(err).Message())

	err = storedFailure(domain.IdempotencyRecord{
		ResponseBody: []byte(`{"code":0,"message":""}`),
	})
	mustStatusCode(t, err, codes.Internal)
	require.Equal(t, replayFailedMessage, status.Convert(err).Message())

	err = storedFailure(domain.IdempotencyRecord{
		ResponseBody: []byte("broken-json"),
		StatusCode:   int(codes.Aborted),
	})
	mustStatusCode(t, err, codes.Aborted)

	err = storedFailure(domain.IdempotencyRecord{
		ResponseBody: []byte("broken-json"),
		StatusCode:   int(codes.OK),
	})
	mustStatusCode(t, err, codes.Internal)
}

func TestReplayStored_Branches(t *testing.T) {
	service := newInternalService(nil)
	decode := func() *structpb.Struct { return &structpb.Struct{} }

	_, err := replayStored(service, domain.IdempotencyRecord{Status: domain.IdempotencyStatusDone}, decode)
	mustStatusCode(t, err, codes.Internal)

	_, err = replayStored(service, domain.IdempotencyRecord{
		Status:       domain.IdempotencyStatusDone,
		ResponseBody: []byte("not-json"),
	}, decode)
	mustStatusCode(t, err, codes.Internal)

	_, err = replayStored(service, domain.IdempotencyRecord{
		Status:       domain.IdempotencyStatusFailed,
		ResponseBody: []byte(`{"code":9,"message":"Cart is empty"}`),
	}, decode)
	mustStatusCode(t, err, codes.FailedPrecondition)

	resp, err := replayStored(service, domain.IdempotencyRecord{
		Status:       domain.IdempotencyStatusDone,
		ResponseBody: []byte(`{"success":true}`),
	}, decode)
	require.NoError(t, err)
	require.True(t, resp.GetFields()["success"].GetBoolValue())
}

func TestIdempotent_Verdicts(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"customerName": "Jane"})
	require.NoError(t, err)
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "key-1"))
	decode := func() *structpb.Struct { return &structpb.Struct{} }
	call := func(context.Context) (*structpb.Struct, error) {
		t.Fatal("call must not run")
		return nil, nil
	}

	cases := []struct {
		name   string
		record domain.IdempotencyRecord
		err    error
		code   codes.Code
	}{
		{"conflict", domain.IdempotencyRecord{}, domain.ErrIdempotencyHashMismatch, codes.AlreadyExists},
		{"in flight", domain.IdempotencyRecord{Status: domain.IdempotencyStatusProcessing}, domain.ErrIdempotencyKeyAlreadyExists, codes.Aborted},
		{"empty replay", domain.IdempotencyRecord{Status: domain.IdempotencyStatusDone}, domain.ErrIdempotencyKeyAlreadyExists, codes.Internal},
		{"storage error", domain.IdempotencyRecord{}, errors.New("db down"), codes.Internal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := newInternalService(&stubIdempotencyRepository{createRecord: tc.record, createErr: tc.err})
			_, err := idempotent(ctx, service, MethodCheckout, req, decode, call)
			mustStatusCode(t, err, tc.code)
		})
	}
}

func TestUtilityHelpers(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{"customerName": "Jane", "customerEmail": "j@e.com"})
	require.NoError(t, err)

	first, err := requestFingerprint(MethodCheckout+":guest", req)
	require.NoError(t, err)
	second, err := requestFingerprint(MethodCheckout+":guest", req)
	require.NoError(t, err)
	require.Equal(t, first, second)

	other, err := requestFingerprint(MethodCheckout+":alice", req)
	require.NoError(t, err)
	require.NotEqual(t, first, other)

	_, err = requestFingerprint(MethodCheckout, nil)
	require.Error(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  key-1 "))
	key, err := readIdempotencyKey(ctx)
	require.NoError(t, err)
	require.Equal(t, "key-1", key)

	_, err = readIdempotencyKey(context.Background())
	mustStatusCode(t, err, codes.InvalidArgument)

	require.Equal(t, domain.GuestUserID, readUserID(context.Background()))
	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-user-id", "alice"))
	require.Equal(t, "alice", readUserID(ctx))
}
