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

// Package checkpoint persists face vectors between build runs so an
// interrupted build can resume without re-embedding finished work.
//
// Vectors live in an embedded BadgerDB keyed by face ID. A build flushes
// newly embedded vectors periodically, loads the saved set on restart to
// skip finished faces, and clears the store once the final artifacts are
// written.
package checkpoint
