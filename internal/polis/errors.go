// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package polis

import (
	"errors"
	"fmt"
)

// AuthError reports that the external service rejected our credentials or a
// participant token (HTTP 401). An expired token looks identical to a revoked
// one from the outside, so callers retry with the long backoff class rather
// than failing the item permanently before the retry budget runs out.
type AuthError struct {
	Operation string
	Message   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("polis auth error during %s: %s", e.Operation, e.Message)
}

// UnavailableError reports that the external service could not be reached:
// connection refused, timeout, or a gateway-class 5xx. Always transient and
// always eligible for retry with the long backoff class.
type UnavailableError struct {
	Operation string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("polis unavailable during %s: %v", e.Operation, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// APIError reports any other non-success HTTP response. Retried with the
// normal backoff class.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("polis %s request failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsUnavailableError reports whether err is (or wraps) an UnavailableError.
func IsUnavailableError(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
