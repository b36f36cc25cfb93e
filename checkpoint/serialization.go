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

package checkpoint

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
)

// vectorMUS encodes a face vector as a varint length followed by raw
// little-endian float32 components.
var vectorMUS = ord.NewSliceSer[float32](raw.Float32)

// MarshalVector serializes a face vector to bytes.
func MarshalVector(vec []float32) []byte {
	buf := make([]byte, vectorMUS.Size(vec))
	vectorMUS.Marshal(vec, buf)
	return buf
}

// UnmarshalVector deserializes a face vector from bytes.
func UnmarshalVector(data []byte) ([]float32, error) {
	vec, _, err := vectorMUS.Unmarshal(data)
	return vec, err
}
