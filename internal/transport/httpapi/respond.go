package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/grubdash/internal/domain"
)

const invalidJSONMessage = "Request body must be valid JSON"

type envelope struct {
	Data any `json:"data"`
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// fail переводит ошибку сервиса в HTTP-ответ. Всё, что не *domain.Error, отдаётся как 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, resource, operation string, err error) {
	domainErr, ok := domain.AsError(err)
	if !ok {
		h.logger.WithError(err).WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if h.metrics != nil {
		h.metrics.RecordRejection(resource, operation, string(domainErr.Kind))
	}
	writeError(w, domainErr.Status(), domainErr.Message)
}

// decode читает тело вида {"data": {...}}. Пустое тело и data, не являющееся
// объектом, равносильны пустому объекту: об отсутствующих полях сообщит цепочка.
// Поля payload принимают любой JSON-тип, поэтому ошибкой остаётся только
// синтаксически неверное тело или тело, которое само не является объектом.
func decode[T any](r *http.Request) (T, error) {
	var (
		payload T
		body    struct {
			Data json.RawMessage `json:"data"`
		}
	)
	if r.Body == nil {
		return payload, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return payload, domain.Validationf(invalidJSONMessage)
	}

	data := bytes.TrimSpace(body.Data)
	if len(data) == 0 || data[0] != '{' {
		return payload, nil
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, domain.Validationf(invalidJSONMessage)
	}
	return payload, nil
}
