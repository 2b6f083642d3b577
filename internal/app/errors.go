package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func invalidCursor() *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_CURSOR", "Cursor is malformed or expired", nil)
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}

func unauthenticated() *DomainError {
	return domainError(http.StatusUnauthorized, "UNAUTHENTICATED", "Sign in to continue", nil)
}

func rateLimited() *DomainError {
	return domainError(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, slow down", nil)
}
