// Package response формирует JSON-ответы HTTP-обработчиков в едином конверте
// {"status":"OK"|"Error","error":...,"data":...} и сопоставляет ошибки сервисов с HTTP-статусами.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/hackstore/internal/lib/jwt"
	"github.com/magabrotheeeer/hackstore/internal/services"
	"github.com/magabrotheeeer/hackstore/internal/storage/repository"
)

// Response стандартная структура JSON-ответа сервера.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse структура ошибки для Swagger-документации.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
}

const (
	// StatusOK значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// OKWithData возвращает успешный Response с данными.
func OKWithData(data any) Response {
	return Response{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError собирает нарушения валидации в одно сообщение через запятую.
func ValidationError(errs validator.ValidationErrors) Response {
	var errsMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "min":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at least %s", err.Field(), err.Param()))
		case "max":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be at most %s", err.Field(), err.Param()))
		case "gt", "gte":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be greater than %s", err.Field(), err.Param()))
		case "oneof":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be one of [%s]", err.Field(), err.Param()))
		case "alphanum":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s can contain only numbers and letters", err.Field()))
		case "url":
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s must be a valid url", err.Field()))
		default:
			errsMsgs = append(errsMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}
	return Response{
		Status: StatusError,
		Error:  strings.Join(errsMsgs, ", "),
	}
}

// StatusFor HTTP-статус и публичное сообщение для ошибки сервиса.
// Неизвестные ошибки скрываются за 500 и "internal error".
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, services.ErrInvalidCredentials.Error()
	case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, services.ErrTokenRevoked):
		return http.StatusUnauthorized, "invalid or expired token"
	case errors.Is(err, services.ErrUserInactive):
		return http.StatusForbidden, services.ErrUserInactive.Error()
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, services.ErrForbidden.Error()
	}

	for _, target := range []error{
		services.ErrUserNotFound,
		services.ErrDepositNotFound,
		services.ErrPackageNotFound,
		services.ErrTransactionNotFound,
		services.ErrTicketNotFound,
		services.ErrBankNotFound,
	} {
		if errors.Is(err, target) {
			return http.StatusNotFound, target.Error()
		}
	}
	for _, target := range []error{
		services.ErrAmountTooSmall,
		services.ErrBankUnavailable,
		repository.ErrInvalidPatch,
		repository.ErrInvalidTransaction,
	} {
		if errors.Is(err, target) {
			return http.StatusBadRequest, target.Error()
		}
	}
	for _, target := range []error{
		services.ErrUsernameTaken,
		repository.ErrUsernameTaken,
		services.ErrTicketClosed,
		services.ErrAlreadyRefunded,
		services.ErrNotRefundable,
		repository.ErrInvalidTransition,
		repository.ErrVersionConflict,
	} {
		if errors.Is(err, target) {
			return http.StatusConflict, target.Error()
		}
	}
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return http.StatusUnprocessableEntity, repository.ErrInsufficientBalance.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

// JSON пишет тело с указанным статусом.
func JSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

// Fail пишет ошибку сервиса с подходящим статусом.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := StatusFor(err)
	JSON(w, r, status, Error(msg))
}
