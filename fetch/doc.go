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


// Package fetch provides a retrying HTTP client for unreliable remote
// sources.
//
// The client retries transient conditions (connection errors, timeouts,
// HTTP 429/500/502/503/504) with exponential backoff, honors Retry-After
// hints, and reuses connections through a pooled transport. Non-transient
// responses such as 404 fail immediately. Failures carry a typed *Error
// whose unwrap chain distinguishes ErrRetriesExhausted from ErrNonRetryable.
//
// The retry schedule itself is a declarative Policy value that can also
// drive retries for non-HTTP operations via Policy.Do, and can be tested
// without a real clock via Policy.WithSleep.
package fetch
