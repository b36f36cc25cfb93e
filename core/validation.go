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


package core

import "fmt"

// ValidateFace validates a Face according to domain rules.
//
// Validation rules:
//   - FaceID must not be empty (it is the stable external identifier)
//   - ImageURL must not be empty (a face without an image is not embeddable)
//
// NOT validated (pass-through catalog metadata):
//   - Name, Set, CollectorNumber, Frame, Layout, Lang, Colors, CardURL,
//     ScryfallURI (any of these may be empty in the source data)
func ValidateFace(face *Face) error {
	if face == nil {
		return fmt.Errorf("%w: face is nil", ErrInvalidFace)
	}

	if face.FaceID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFace, ErrEmptyFaceID)
	}

	if face.ImageURL == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFace, ErrEmptyImageURL)
	}

	return nil
}
