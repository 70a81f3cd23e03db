package chat

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConversationExists = errors.New("conversation already exists for this pair")
	ErrConnectionClosed   = errors.New("connection closed")
)

// ValidationError rejects a request before anything is persisted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// NotJoinedError is returned for domain events received before join.
type NotJoinedError struct {
	Event string
}

func (e *NotJoinedError) Error() string {
	return fmt.Sprintf("%s: connection has not joined", e.Event)
}

// PersistenceError wraps a storage failure or timeout.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Error codes sent to clients in failure events.
const (
	CodeValidation  = "validation"
	CodeNotJoined   = "not_joined"
	CodePersistence = "persistence"
	CodeBadRequest  = "bad_request"
)

func errorCode(err error) string {
	var (
		validation *ValidationError
		notJoined  *NotJoinedError
		persist    *PersistenceError
	)
	switch {
	case errors.As(err, &validation):
		return CodeValidation
	case errors.As(err, &notJoined):
		return CodeNotJoined
	case errors.As(err, &persist):
		return CodePersistence
	default:
		return CodeBadRequest
	}
}
