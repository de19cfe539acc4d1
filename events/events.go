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

// Package events defines the event kinds the core emits and the EventBus
// contract it emits them through.
package events

import "time"

// Kind names one of the event kinds the core records.
type Kind string

const (
	FileOpenedRead  Kind = "file-opened-read"
	FileClosedRead  Kind = "file-closed-read"
	FileOpenedWrite Kind = "file-opened-write"
	FileClosedWrite Kind = "file-closed-write"
	FileCreated     Kind = "file-created"
	FileDeleted     Kind = "file-deleted"
	FileRenamed     Kind = "file-renamed"
	DirCreated      Kind = "dir-created"
	DirDeleted      Kind = "dir-deleted"
	DirRenamed      Kind = "dir-renamed"
	MetaUpdated     Kind = "meta-updated"
)

// Event is one occurrence recorded against a path (and, for renames, a
// destination path).
type Event struct {
	Kind      Kind
	Path      string
	DestPath  string // rename only
	Node      string // local node id
	Bytes     int64  // read/write close events
	Timestamp time.Time
}

// Bus is the external event-recording contract. isRecordable lets a
// deployment turn off specific event kinds without the core needing to
// know why.
type Bus interface {
	IsRecordable(kind Kind) bool
	Record(e Event)
}

// NopBus discards every event. Useful as a default when no bus is wired.
type NopBus struct{}

func (NopBus) IsRecordable(Kind) bool { return false }
func (NopBus) Record(Event)           {}

var _ Bus = NopBus{}
