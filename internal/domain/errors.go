package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation: клиентская ошибка: поле отсутствует, пустое или некорректное.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound возвращается, если запись с указанным идентификатором не найдена.
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists сигнализирует о попытке повторно сохранить запись с занятым ID.
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ErrorKind различает два вида ошибок, которые видит клиент.
type ErrorKind string

const (
	// KindValidation соответствует HTTP 400.
	KindValidation ErrorKind = "validation"
	// KindNotFound соответствует HTTP 404.
	KindNotFound ErrorKind = "not_found"
)

// Error: структурированная ошибка цепочки проверок: вид и человекочитаемое сообщение.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Status возвращает HTTP-код, соответствующий виду ошибки.
func (e *Error) Status() int {
	if e.Kind == KindNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// Is позволяет сравнивать структурированную ошибку с ErrValidation и ErrNotFound.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrNotFound:
		return e.Kind == KindNotFound
	default:
		return false
	}
}

// Validationf создаёт ошибку валидации (400).
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf создаёт ошибку отсутствующей записи (404).
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// AsError извлекает *Error из цепочки обёрток.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// IsNotFound проверяет, что ошибка означает отсутствие записи.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
