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


package export

import "errors"

var (
	// ErrIndexDirRequired is returned when a build directory is not provided.
	ErrIndexDirRequired = errors.New("index directory required")

	// ErrOutDirRequired is returned when an output directory is not provided.
	ErrOutDirRequired = errors.New("output directory required")

	// ErrInvalidMode is returned for an unrecognized quantization mode.
	ErrInvalidMode = errors.New("unknown quantization mode")

	// ErrShapeMismatch is returned when the embeddings file size disagrees
	// with the shape recorded in the manifest.
	ErrShapeMismatch = errors.New("embeddings shape does not match manifest")

	// ErrRecordMismatch is returned when the metadata row count disagrees
	// with the manifest.
	ErrRecordMismatch = errors.New("metadata rows do not match manifest")
)
