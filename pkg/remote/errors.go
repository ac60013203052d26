package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies remote call failures
type Kind string

// failure kinds
const (
	KindTransport Kind = "transport" // connection refused, dns, reset, unreadable body
	KindClient    Kind = "client"    // 4xx
	KindServer    Kind = "server"    // 5xx, success:false, undecodable payload
	KindTimeout   Kind = "timeout"
)

// Error is a failed remote call
type Error struct {
	Kind    Kind
	Status  int // http status, 0 if no response
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s error %d: %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the failure kind of err, empty if err is not a remote error
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsNotFound reports whether the remote answered 404
func IsNotFound(err error) bool {
	var re *Error
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

func statusKind(status int) Kind {
	if status >= 400 && status < 500 {
		return KindClient
	}
	return KindServer
}
