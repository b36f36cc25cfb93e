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


// Package imaging validates cached image files and prepares embedding
// inputs.
//
// Validation is two-stage: a structural header parse rejects non-image
// payloads (an HTML error page saved with an image extension) without
// paying for a pixel decode, and a full decode rejects truncated or
// corrupted files that pass header checks. Only files passing both stages
// may enter the embedding pipeline.
//
// The Preprocessor applies the canonical transformation shared by index
// builds and queries: flatten to RGB over black, optional contrast
// enhancement, pad to square with centered black borders, Catmull-Rom
// resize to the target edge length.
package imaging
