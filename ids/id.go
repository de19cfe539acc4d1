// Copyright 2015 Google Inc. All Rights Reserved.
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

// Package ids defines the globally unique file identifier used throughout
// the IGFS core, plus the two reserved identifiers (root, trash).
package ids

import (
	"github.com/google/uuid"
)

// FileId is a globally unique identifier for a file or directory. It is
// 128 bits wide, generated as a UUID so node-local time plus counter
// schemes remain an option without changing the wire representation.
type FileId uuid.UUID

// Nil is the zero value; never assigned to a live file.
var Nil FileId

// ROOT_ID is the identifier of the tree root. It is a well-known value so
// that every node in the cluster agrees on it without coordination.
var ROOT_ID = FileId(uuid.MustParse("00000000-0000-0000-0000-000000000001"))

// TRASH_ID is the identifier of the soft-delete holding directory. softDelete
// moves subtrees here pending asynchronous purge.
var TRASH_ID = FileId(uuid.MustParse("00000000-0000-0000-0000-000000000002"))

// New mints a fresh, process-unique FileId. Collisions across the cluster
// are avoided probabilistically by uuid's randomness; the metadata manager
// (out of scope for this package) is responsible for any stronger guarantee
// it needs.
func New() FileId {
	return FileId(uuid.New())
}

func (id FileId) String() string {
	return uuid.UUID(id).String()
}

// IsReserved reports whether id is one of the two well-known identifiers
// that the core must never delete.
func (id FileId) IsReserved() bool {
	return id == ROOT_ID || id == TRASH_ID
}
