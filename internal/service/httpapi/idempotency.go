package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/service/dto"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

const (
	checkoutRoute = "POST /api/checkout"

	// HeaderIdempotentReplay выставляется на ответах, восстановленных из кэша.
	HeaderIdempotentReplay = "Idempotent-Replayed"
)

// checkoutFingerprint учитывает маршрут, пользователя и нормализованное тело.
func checkoutFingerprint(uid string, req dto.CheckoutRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	return idempotency.Fingerprint([]byte(checkoutRoute), []byte(uid), body), nil
}

// checkoutIdempotent оформляет заказ под ключом Idempotency-Key. Ошибки оформления
// тоже сохраняются и повторяются.
func (h *Handler) checkoutIdempotent(w http.ResponseWriter, r *http.Request, key, uid string, req dto.CheckoutRequest) {
	logger := h.logger.WithField("idempotency_key", key)

	fingerprint, err := checkoutFingerprint(uid, req)
	if err != nil {
		writeError(w, logger, err, "Failed to process checkout")
		return
	}

	verdict, record, err := h.idem.Begin(key, fingerprint)
	if err == nil && verdict == idempotency.Replay && (record.StatusCode < http.StatusContinue || len(record.ResponseBody) == 0) {
		err = idempotency.ErrEmptyReplay
	}
	if err != nil {
		logger.WithError(err).Warn("idempotency key cannot be served")
		writeJSON(w, http.StatusInternalServerError, dto.Envelope{
			Success: false,
			Message: "Failed to process checkout",
			Error:   dto.InternalErrorMessage,
		})
		return
	}

	switch verdict {
	case idempotency.Conflict:
		writeJSON(w, http.StatusConflict, dto.Envelope{
			Success: false,
			Message: "Idempotency key is already used with a different request",
		})
		return
	case idempotency.InFlight:
		writeJSON(w, http.StatusConflict, dto.Envelope{
			Success: false,
			Message: "Request with the same idempotency key is already processing",
		})
		return
	case idempotency.Replay:
		w.Header().Set(HeaderIdempotentReplay, "true")
		writeRaw(w, record.StatusCode, record.ResponseBody)
		return
	}

	status, envelope := h.placeOrder(r, uid, req)
	body, err := json.Marshal(envelope)
	if err != nil {
		writeError(w, logger, err, "Failed to process checkout")
		return
	}
	if err := h.idem.Complete(key, body, status, status >= http.StatusBadRequest); err != nil {
		logger.WithError(err).Warn("failed to store idempotent checkout response")
	}
	writeRaw(w, status, body)
}
