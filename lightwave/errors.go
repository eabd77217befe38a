package lightwave

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the LinkPlus SDK.
var (
	// ErrInvalidCredential means every refresh token available (including the seed)
	// was rejected. A new seed refresh token must be obtained from the LinkPlus site.
	ErrInvalidCredential = errors.New("lightwave: refresh token chain exhausted, a new seed refresh token is required")

	// ErrAuthExhausted means a request was still unauthorized after one forced refresh.
	ErrAuthExhausted = errors.New("lightwave: request unauthorized after token refresh")

	ErrNotFound          = errors.New("lightwave: resource not found")
	ErrInvalidArgument   = errors.New("lightwave: invalid argument")
	ErrMalformedResponse = errors.New("lightwave: malformed response")
	ErrNoStructures      = errors.New("lightwave: no structures found")

	// ErrNoSnapshot is returned by a Store whose slot is empty.
	ErrNoSnapshot = errors.New("lightwave: no token snapshot stored")
)

// InvalidCredentialError carries the token decisions made for the failed request.
type InvalidCredentialError struct {
	Trail []string
}

func (e *InvalidCredentialError) Error() string {
	if len(e.Trail) == 0 {
		return ErrInvalidCredential.Error()
	}
	return fmt.Sprintf("%s (trail: %s)", ErrInvalidCredential.Error(), strings.Join(e.Trail, "; "))
}

func (e *InvalidCredentialError) Is(target error) bool {
	return target == ErrInvalidCredential
}

// RequestFailedError is a non-success status from the resource API that was not an
// authorization failure.
type RequestFailedError struct {
	StatusCode int
	Body       string
}

func (e *RequestFailedError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("lightwave: API request failed with status %d", e.StatusCode)
	}
	return fmt.Sprintf("lightwave: API request failed with status %d: %s", e.StatusCode, e.Body)
}

// MalformedResponseError reports JSON that is missing expected fields. Fragment holds
// the offending JSON.
type MalformedResponseError struct {
	Message  string
	Fragment string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("lightwave: malformed response: %s", e.Message)
}

func (e *MalformedResponseError) Is(target error) bool {
	return target == ErrMalformedResponse
}

// NotFoundError reports a structure or feature id unknown to the API.
type NotFoundError struct {
	Kind string
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("lightwave: %s not found", e.Kind)
	}
	return fmt.Sprintf("lightwave: %s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsInvalidCredential returns true if the user must supply a new seed refresh token.
func IsInvalidCredential(err error) bool {
	return errors.Is(err, ErrInvalidCredential)
}

// IsAuthExhausted returns true if a request stayed unauthorized after a refresh.
func IsAuthExhausted(err error) bool {
	return errors.Is(err, ErrAuthExhausted)
}

// IsNotFound returns true if the error indicates an unknown structure, device or feature.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var reqErr *RequestFailedError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

func malformed(message string, fragment []byte) error {
	return &MalformedResponseError{Message: message, Fragment: string(fragment)}
}
