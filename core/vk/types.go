package vk

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// PollServer is the descriptor returned by groups.getLongPollServer.
type PollServer struct {
	Key    string `json:"key"`
	Server string `json:"server"`
	TS     string `json:"ts"`
}

// Profile carries the user fields the bot caches.
type Profile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// APIError is the VK method error envelope.
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("vk api error %d: %s", e.Code, e.Message)
}

// envelope wraps every VK method response: either response or error is set.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *APIError       `json:"error"`
}

var tokenRe = regexp.MustCompile(`(access_token=)[A-Za-z0-9._-]+`)

// redactToken prevents accidental leakage of the community access token in
// error text that may end up in logs.
func redactToken(s string) string {
	if s == "" {
		return s
	}
	return tokenRe.ReplaceAllString(s, "${1}<redacted>")
}

// redactedError hides the token in the message while keeping the original
// transport error reachable for errors.Is/As classification.
type redactedError struct {
	msg   string
	cause error
}

func redactError(err error) error {
	if err == nil {
		return nil
	}
	return &redactedError{msg: redactToken(err.Error()), cause: err}
}

func (e *redactedError) Error() string { return e.msg }

func (e *redactedError) Unwrap() error { return e.cause }
