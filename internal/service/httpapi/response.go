package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/dto"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForError маппит категорию доменной ошибки в HTTP-статус.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse строит ответ для доменной ошибки. Для внутренних ошибок детали
// пишутся только в лог, а клиент получает failMessage.
func errorResponse(logger *log.Entry, err error, failMessage string) (int, dto.Envelope) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.WithError(err).Error(failMessage)
		return status, dto.Envelope{
			Success: false,
			Message: failMessage,
			Error:   dto.InternalErrorMessage,
		}
	}
	return status, dto.Envelope{Success: false, Message: dto.PublicMessage(err)}
}

func writeError(w http.ResponseWriter, logger *log.Entry, err error, failMessage string) {
	status, body := errorResponse(logger, err, failMessage)
	writeJSON(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
