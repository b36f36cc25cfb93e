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

import "errors"

// Domain validation errors
var (
	// ErrInvalidFace indicates a Face failed validation.
	ErrInvalidFace = errors.New("invalid face")

	// ErrEmptyFaceID indicates the FaceID field is empty.
	ErrEmptyFaceID = errors.New("face id cannot be empty")

	// ErrEmptyImageURL indicates the ImageURL field is empty.
	ErrEmptyImageURL = errors.New("image url cannot be empty")
)

// Fatal pipeline errors. Each aborts the run immediately with a non-zero
// exit, unlike per-record failures which are collected and reported.
var (
	// ErrNoRecords indicates the catalog produced zero embeddable faces.
	ErrNoRecords = errors.New("no records to process")

	// ErrNoValidImages indicates no cached image survived validation.
	ErrNoValidImages = errors.New("no valid images to embed")

	// ErrNoVectors indicates embedding produced zero usable vectors.
	ErrNoVectors = errors.New("no vectors to index")
)
