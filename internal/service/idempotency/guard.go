package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Verdict — решение Guard по входящему запросу с ключом идемпотентности.
type Verdict int

const (
	// Execute: ключ новый, запрос нужно выполнить и затем вызвать Complete.
	Execute Verdict = iota
	// Replay: ответ уже сохранён (успех или ошибка), его нужно вернуть как есть.
	Replay
	// InFlight: запрос с тем же ключом ещё выполняется.
	InFlight
	// Conflict: ключ уже использован с другим запросом.
	Conflict
)

func (v Verdict) String() string {
	switch v {
	case Execute:
		return "execute"
	case Replay:
		return "replay"
	case InFlight:
		return "in_flight"
	case Conflict:
		return "conflict"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ErrEmptyReplay означает, что запись завершена, но сохранённого ответа нет.
var ErrEmptyReplay = errors.New("idempotency record has no stored response")

// Guard реализует общий для HTTP и gRPC протокол ключей идемпотентности
// поверх domain.IdempotencyRepository.
type Guard struct {
	repo domain.IdempotencyRepository
	ttl  time.Duration
	now  func() time.Time
}

// GuardOption настраивает Guard.
type GuardOption func(*Guard)

// WithTTL задаёт срок жизни ключа.
func WithTTL(ttl time.Duration) GuardOption {
	return func(g *Guard) { g.ttl = ttl }
}

// WithGuardClock подменяет часы.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

// NewGuard возвращает nil, если repo не задан: идемпотентность тогда выключена.
func NewGuard(repo domain.IdempotencyRepository, options ...GuardOption) *Guard {
	if repo == nil {
		return nil
	}
	g := &Guard{repo: repo, ttl: domain.DefaultIdempotencyTTL}
	for _, apply := range options {
		apply(g)
	}
	if g.ttl <= 0 {
		g.ttl = domain.DefaultIdempotencyTTL
	}
	if g.now == nil {
		g.now = func() time.Time { return time.Now().UTC() }
	}
	return g
}

// Begin резервирует ключ. Для Replay возвращается сохранённая запись;
// ошибка означает сбой хранилища или повреждённую запись.
func (g *Guard) Begin(key, fingerprint string) (Verdict, domain.IdempotencyRecord, error) {
	record, err := g.repo.CreateProcessing(key, fingerprint, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return Execute, record, nil
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return Conflict, record, nil
	case !errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists):
		return Execute, record, fmt.Errorf("reserve idempotency key: %w", err)
	}

	switch record.Status {
	case domain.IdempotencyStatusProcessing:
		return InFlight, record, nil
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		if len(record.ResponseBody) == 0 && record.StatusCode == 0 {
			return Replay, record, ErrEmptyReplay
		}
		return Replay, record, nil
	default:
		return Replay, record, fmt.Errorf("unknown idempotency record status %q", record.Status)
	}
}

// Complete сохраняет ответ на запрос; failed=true фиксирует ошибку, которую тоже повторяют.
func (g *Guard) Complete(key string, body []byte, statusCode int, failed bool) error {
	if failed {
		return g.repo.MarkFailed(key, body, statusCode)
	}
	return g.repo.MarkDone(key, body, statusCode)
}

// Fingerprint склеивает части запроса через ':' и возвращает hex(sha256).
func Fingerprint(parts ...[]byte) string {
	h := sha256.New()
	for i, part := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{':'})
		}
		_, _ = h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
