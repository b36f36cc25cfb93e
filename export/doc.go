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


// Package export converts a completed build's artifacts into browser-ready
// files: a raw or int8-quantized vector blob plus a single meta.json holding
// the shape, quantization parameters, and metadata records in index order.
// Shapes are cross-checked against the build manifest before anything is
// written.
package export
