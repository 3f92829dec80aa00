// Package errors defines the error kinds surfaced by the relay core. Every error
// a caller sees from the command client carries one of four kinds, so callers can
// decide whether to retry (transport, timeout), fix their request (protocol) or
// report the design tool's answer (domain).
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// Transport covers refused, closed or not-yet-established connections.
	Transport Kind = "transport"
	// Protocol covers frames the relay refused: bad channel, relay before join, malformed JSON.
	Protocol Kind = "protocol"
	// Domain covers failures reported by the execution agent's handlers.
	Domain Kind = "domain"
	// Timeout is synthesized locally when no terminal envelope arrives in time.
	Timeout Kind = "timeout"
	// Unknown is returned by KindOf for errors created outside this package.
	Unknown Kind = "unknown"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *E) Unwrap() error { return e.Err }

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// KindOf returns the kind of the first *E in err's chain.
func KindOf(err error) Kind {
	var e *E
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
