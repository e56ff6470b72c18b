package ai

import (
	"errors"
	"strings"
)

var (
	ErrMaxRetries = errors.New("max retries reached due to rate limiting")
	ErrNoChain    = errors.New("no chain built for this document")
)

// ErrorKind classifies a failed Ask.
type ErrorKind string

const (
	// KindRateLimited means every attempt was rejected with HTTP 429.
	KindRateLimited ErrorKind = "rate_limited"
	// KindUpstream covers any other provider failure. It is never retried.
	KindUpstream ErrorKind = "upstream"
	// KindCanceled means the caller's context ended first.
	KindCanceled ErrorKind = "canceled"
)

// AnswerError is the failure side of Ask. Err is the provider error unchanged
// for KindUpstream, ErrMaxRetries for KindRateLimited, and the context error
// for KindCanceled.
type AnswerError struct {
	Kind     ErrorKind
	Attempts int
	Err      error
}

func (e *AnswerError) Error() string {
	return e.Err.Error()
}

func (e *AnswerError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err, or "" when err is not an *AnswerError.
func KindOf(err error) ErrorKind {
	var answerErr *AnswerError
	if errors.As(err, &answerErr) {
		return answerErr.Kind
	}
	return ""
}

// compose wraps node failures as "[NodeRunError] <cause>\n---\nnode path: [...]".
var chainErrorPrefixes = []string{"[NodeRunError] ", "[GraphRunError] "}

// providerError strips the chain's node-path wrappers and returns the error
// the chat model produced.
func providerError(err error) error {
	for err != nil {
		if !isChainError(err) {
			return err
		}
		inner := errors.Unwrap(err)
		if inner == nil {
			return err
		}
		err = inner
	}
	return err
}

func isChainError(err error) bool {
	msg := err.Error()
	for _, prefix := range chainErrorPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}
