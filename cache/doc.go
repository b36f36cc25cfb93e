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


// Package cache implements the content-addressed image cache.
//
// Entries are keyed by a hash of their source URL (not of the bytes), so
// repeated runs are idempotent and cache hits skip the network entirely.
// All writes go through an atomic temp-file-then-rename sequence: a killed
// process never corrupts a previously valid entry, and a half-written entry
// is indistinguishable from one that was never downloaded. The same atomic
// write helpers are used for every artifact this repository persists.
package cache
