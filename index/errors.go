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

package index

import "errors"

// Sentinel errors for index operations.
var (
	// ErrEmptyVector indicates an insert with a zero-length vector.
	ErrEmptyVector = errors.New("empty vector")

	// ErrDimensionMismatch indicates a vector whose dimension differs from
	// the dimension fixed by the first insert.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)
