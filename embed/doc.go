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

// Package embed defines the embedding boundary between the pipeline and the
// model that turns card images into vectors.
//
// The pipeline depends only on the ImageEmbedder interface; the model behind
// it is an implementation detail. Two implementations ship with the module:
//
//   - embed/clipd: production client for a CLIP sidecar service over HTTP
//   - embed/mock: deterministic test double, also used for dry runs
//
// # Batch contract
//
// EmbedImages is positional: the returned batch always has the same length
// as the input, and a nil input slot (an image that failed to decode) yields
// a nil vector in the same position. A nil vector is not an error; callers
// skip that record and move on. Errors are reserved for whole-batch failures
// such as an unreachable service.
//
// Vectors are unit-norm so inner product equals cosine similarity. The
// dimension is fixed per model and reported by Dimension.
//
// # Constructor Return Type Pattern
//
// Production constructors (clipd.NewClient) return the ImageEmbedder
// interface to keep callers decoupled from the transport. The test double
// (mock.NewMockEmbedder) returns its concrete type so tests can inject
// behavior and assert call counts.
package embed
