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


package search

import "errors"

var (
	// ErrEmbedderRequired is returned when an image embedder is not provided.
	ErrEmbedderRequired = errors.New("image embedder required")

	// ErrModelMismatch is returned when the embedder produces vectors of a
	// different dimension than the index was built with.
	ErrModelMismatch = errors.New("embedder does not match index dimension")

	// ErrMetadataMismatch is returned when the metadata row count differs
	// from the index size.
	ErrMetadataMismatch = errors.New("metadata rows do not match index size")

	// ErrNoQueryVector is returned when the embedder yields no vector for
	// the query image.
	ErrNoQueryVector = errors.New("no vector for query image")
)
