package telenet

import (
	"errors"
	"fmt"

	"github.com/raterudder/telenet-exporter/pkg/catalog"
	"github.com/raterudder/telenet-exporter/pkg/types"
)

// ConnectionError is a transport level failure talking to the portal.
type ConnectionError struct {
	Caller string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("[%s] connection failed for %s: %v", e.Caller, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ServiceError is an unexpected answer from the portal: a status that
// stayed wrong after the retry budget, a malformed login challenge or a
// fatal upstream error code.
type ServiceError struct {
	Caller string
	Status int
	Msg    string
	Err    error
}

func (e *ServiceError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Status == 0 {
		return fmt.Sprintf("[%s] %s", e.Caller, msg)
	}
	return fmt.Sprintf("[%s] HTTP %d: %s", e.Caller, e.Status, msg)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// CredentialsError means the portal rejected the username or password.
type CredentialsError struct {
	Msg string
}

func (e *CredentialsError) Error() string {
	return "invalid credentials: " + e.Msg
}

// ErrorKind is the classification a refresh failure is reported under.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindConnection
	KindService
	KindCredentials
	KindUnknown
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnection:
		return "connection"
	case KindService:
		return "service"
	case KindCredentials:
		return "credentials"
	default:
		return "unknown"
	}
}

// Classify maps an error to exactly one ErrorKind. A soft absence that
// escaped to the top of a refresh counts as a service failure, as does an
// account without products.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var credErr *CredentialsError
	if errors.As(err, &credErr) {
		return KindCredentials
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return KindService
	}
	var connErr *ConnectionError
	if errors.As(err, &connErr) {
		return KindConnection
	}
	if errors.Is(err, types.ErrNoData) || errors.Is(err, catalog.ErrNoProducts) {
		return KindService
	}
	return KindUnknown
}
