package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ihh0/bookstore-server/internal/repository"
	"github.com/ihh0/bookstore-server/internal/service"
)

func mapStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrBookNotFound),
		errors.Is(err, repository.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrInsufficientStock),
		errors.Is(err, repository.ErrISBNExists),
		errors.Is(err, service.ErrOrderAlreadyCanceled),
		errors.Is(err, service.ErrOrderNotCancelable),
		errors.Is(err, service.ErrInvalidStatusChange):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func formatValidationError(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"error": "invalid input"}
	}

	errs := make(map[string]string)
	for _, fieldErr := range validationErrors {
		field := strings.ToLower(fieldErr.Field())

		switch fieldErr.Tag() {
		case "required":
			errs[field] = fmt.Sprintf("%s is required", field)
		case "min":
			errs[field] = fmt.Sprintf("%s must be at least %s", field, fieldErr.Param())
		case "max":
			errs[field] = fmt.Sprintf("%s must be at most %s", field, fieldErr.Param())
		case "gt":
			errs[field] = fmt.Sprintf("%s must be greater than %s", field, fieldErr.Param())
		case "gte":
			errs[field] = fmt.Sprintf("%s must be greater than or equal to %s", field, fieldErr.Param())
		case "oneof":
			errs[field] = fmt.Sprintf("%s must be one of: %s", field, fieldErr.Param())
		default:
			errs[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return errs
}
