package providers

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout is returned when a long-running vendor operation does not finish
// within its poll budget.
var ErrTimeout = errors.New("video generation timed out")

// NoOutputError reports a vendor response without usable media. Detail holds
// the vendor's diagnostics, if any.
type NoOutputError struct {
	Media  string
	Detail string
}

func (e *NoOutputError) Error() string {
	media := e.Media
	if media == "" {
		media = "image"
	}
	msg := "No " + media + " output"
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// AuthError reports credentials rejected by a vendor.
type AuthError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = "credentials rejected"
	}
	return fmt.Sprintf("%s auth error (status %d): %s", e.Provider, e.StatusCode, msg)
}
