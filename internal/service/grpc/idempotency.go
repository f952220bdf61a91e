package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const replayFailedMessage = "previous request with the same idempotency key failed"

// storedStatus кэширует gRPC-ошибку под ключом идемпотентности.
type storedStatus struct {
	Code    codes.Code `json:"code"`
	Message string     `json:"message"`
}

// idempotent выполняет call не более одного раза на ключ из метаданных idempotency-key.
// Повтор с тем же ключом и тем же запросом получает сохранённый ответ или ошибку.
func idempotent[T proto.Message](
	ctx context.Context,
	s *StorefrontService,
	scope string,
	req proto.Message,
	decode func() T,
	call func(context.Context) (T, error),
) (T, error) {
	var zero T
	if s.guard == nil {
		return call(ctx)
	}

	key, err := readIdempotencyKey(ctx)
	if err != nil {
		return zero, err
	}
	entry := s.logger.WithField("idempotency_key", key)

	fingerprint, err := requestFingerprint(scope, req)
	if err != nil {
		entry.WithError(err).Warn("failed to fingerprint idempotent request")
		return zero, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	verdict, record, err := s.guard.Begin(key, fingerprint)
	if err != nil && !errors.Is(err, idempotency.ErrEmptyReplay) {
		entry.WithError(err).Warn("failed to reserve idempotency key")
		return zero, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	switch verdict {
	case idempotency.Conflict:
		return zero, status.Error(codes.AlreadyExists, "idempotency key is already used with different request payload")
	case idempotency.InFlight:
		return zero, status.Error(codes.Aborted, "request with the same idempotency key is already processing")
	case idempotency.Replay:
		if err != nil {
			return zero, status.Error(codes.Internal, "idempotency cache is empty")
		}
		return replayStored(s, record, decode)
	}

	resp, callErr := call(ctx)
	if callErr != nil {
		s.rememberFailure(key, callErr)
		return resp, callErr
	}

	body, err := protojson.Marshal(resp)
	if err == nil {
		err = s.guard.Complete(key, body, int(codes.OK), false)
	}
	if err != nil {
		entry.WithError(err).Warn("failed to store idempotent success response")
	}
	return resp, nil
}

func replayStored[T proto.Message](s *StorefrontService, record domain.IdempotencyRecord, decode func() T) (T, error) {
	var zero T
	if record.Status == domain.IdempotencyStatusFailed {
		return zero, storedFailure(record)
	}
	if len(record.ResponseBody) == 0 {
		return zero, status.Error(codes.Internal, "idempotency cache is empty")
	}

	resp := decode()
	if err := protojson.Unmarshal(record.ResponseBody, resp); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", record.Key).Warn("failed to decode cached idempotency response")
		return zero, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return resp, nil
}

func (s *StorefrontService) rememberFailure(key string, callErr error) {
	st := status.Convert(callErr)
	stored := storedStatus{Code: st.Code(), Message: st.Message()}
	if stored.Code == codes.OK {
		stored.Code = codes.Internal
	}

	body, err := json.Marshal(stored)
	if err != nil {
		body = nil
	}
	if err := s.guard.Complete(key, body, int(stored.Code), true); err != nil {
		s.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotency failure response")
	}
}

// storedFailure восстанавливает ошибку из кэша: сначала из тела, затем по коду записи.
func storedFailure(record domain.IdempotencyRecord) error {
	var stored storedStatus
	if len(record.ResponseBody) > 0 && json.Unmarshal(record.ResponseBody, &stored) == nil && knownCode(int(stored.Code)) {
		code := stored.Code
		if code == codes.OK {
			code = codes.Internal
		}
		message := stored.Message
		if message == "" {
			message = replayFailedMessage
		}
		return status.Error(code, message)
	}

	if knownCode(record.StatusCode) && record.StatusCode != int(codes.OK) {
		return status.Error(codes.Code(uint32(record.StatusCode)), replayFailedMessage) //nolint:gosec // проверено knownCode
	}
	return status.Error(codes.Internal, replayFailedMessage)
}

func knownCode(value int) bool {
	return value >= int(codes.OK) && value <= int(codes.Unauthenticated)
}

func readIdempotencyKey(ctx context.Context) (string, error) {
	for _, read := range []func(context.Context) (metadata.MD, bool){metadata.FromIncomingContext, metadata.FromOutgoingContext} {
		if md, ok := read(ctx); ok {
			if key := trimmed(md.Get(idempotencyKeyHeader)); key != "" {
				return key, nil
			}
		}
	}
	return "", status.Error(codes.InvalidArgument, "idempotency-key metadata is required")
}

// requestFingerprint хэширует scope и детерминированную сериализацию запроса.
func requestFingerprint(scope string, req proto.Message) (string, error) {
	if req == nil {
		return "", errors.New("request is nil")
	}
	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(req)
	if err != nil {
		return "", err
	}
	return idempotency.Fingerprint([]byte(scope), data), nil
}
