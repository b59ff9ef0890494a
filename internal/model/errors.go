package model

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrInvalidResponse     = errors.New("invalid response")
	ErrDecoding            = errors.New("decoding error")
	ErrUnsupportedProvider = errors.New("provider does not support streaming")
	ErrSecretDoesNotExist  = errors.New("secret does not exist")
	ErrSendInProgress      = errors.New("send already in progress")
)

// NetworkError is a transport failure: timeout, DNS, connection reset. It is
// safe to retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

type ServerError struct {
	StatusCode int
	Reason     string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error: %s", e.Reason)
}

// StatusError maps a backend HTTP status to the error taxonomy. It returns
// nil for 2xx.
func StatusError(statusCode int) error {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return nil
	case statusCode == http.StatusBadRequest:
		return &ServerError{StatusCode: statusCode, Reason: "config mismatch"}
	case statusCode == http.StatusUnauthorized:
		return ErrInvalidCredential
	case statusCode == http.StatusInternalServerError:
		return &ServerError{StatusCode: statusCode, Reason: "server fault"}
	default:
		return &ServerError{StatusCode: statusCode, Reason: fmt.Sprintf("status %d", statusCode)}
	}
}

func IsTransient(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
