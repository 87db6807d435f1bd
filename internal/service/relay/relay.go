// Package relay forwards user text to the external intent engine and extracts its reply.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Relay is the boundary to the conversational engine. Implementations scope each call
// to sessionID so the engine can keep its own multi-turn context.
type Relay interface {
	Detect(ctx context.Context, sessionID, text, languageHint string) (string, error)
}

// Kind classifies relay failures.
type Kind string

const (
	KindUnavailable Kind = "unavailable"
	KindTimeout     Kind = "timeout"
	KindMalformed   Kind = "malformed"
)

// Error is returned by every relay failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("relay %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the relay kind of err, or "" when err is not a relay error.
func KindOf(err error) Kind {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return ""
}

// classify turns a transport failure into a relay error. callCtx is the context the
// call ran under, so its deadline decides between Timeout and Unavailable.
func classify(callCtx context.Context, err error) *Error {
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindUnavailable, Err: err}
}

// replyOrFallback returns text, or fallback when the engine produced nothing usable.
func replyOrFallback(text, fallback string) string {
	if strings.TrimSpace(text) == "" {
		return fallback
	}
	return text
}

// Unavailable answers every call with KindUnavailable. It stands in when no engine is
// configured so history stays reachable.
type Unavailable struct{}

// Detect always fails.
func (Unavailable) Detect(context.Context, string, string, string) (string, error) {
	return "", &Error{Kind: KindUnavailable, Err: errors.New("no intent engine configured")}
}
