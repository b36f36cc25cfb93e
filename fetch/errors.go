// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package fetch

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMaxAttempts indicates a retry policy with zero or negative attempts.
	ErrInvalidMaxAttempts = errors.New("max attempts must be greater than zero")

	// ErrRetriesExhausted indicates every attempt failed on a transient condition.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNonRetryable indicates a response that retrying cannot fix.
	ErrNonRetryable = errors.New("non-retryable response")
)

// Error describes a failed fetch. Reason is one of the package sentinels, so
// callers can tell exhausted retries from non-retryable responses with
// errors.Is without string matching.
type Error struct {
	URL        string
	StatusCode int   // last HTTP status observed; 0 for transport failures
	Attempts   int   // attempts actually made
	Reason     error // ErrRetriesExhausted or ErrNonRetryable
	Err        error // underlying cause, nil for pure status failures
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v after %d attempt(s): %v", e.URL, e.Reason, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v after %d attempt(s): status %d", e.URL, e.Reason, e.Attempts, e.StatusCode)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Reason, e.Err}
	}
	return []error{e.Reason}
}
