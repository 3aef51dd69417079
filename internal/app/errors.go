package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"tempo/api/internal/auth"
)

// DomainError carries an HTTP status and a stable machine-readable code so
// handlers can translate service failures without inspecting messages.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details map[string]any) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message, Details: details}
}

func errNotFound(what string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", what+" not found", nil)
}

func errForbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func errValidation(message string, details map[string]any) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, details)
}

func errInvalidDateRange(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "INVALID_DATE_RANGE", message, nil)
}

func errInvalidState(message string) *DomainError {
	return domainError(http.StatusConflict, "INVALID_STATE", message, nil)
}

func errCrossProject(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "CROSS_PROJECT", message, nil)
}

func errActiveSprintConflict(activeSprintID string) *DomainError {
	return domainError(http.StatusConflict, "ACTIVE_SPRINT_EXISTS",
		"another sprint is already active in this project",
		map[string]any{"activeSprintId": activeSprintID})
}

// mapError flattens any error into the wire shape used by writeError.
func mapError(err error) (int, string, string, map[string]any) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Status, de.Code, de.Message, de.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "resource not found", nil
	}
	if errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid token", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "internal server error", nil
}
