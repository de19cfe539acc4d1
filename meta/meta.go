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

// Package meta defines the metadata model (FileInfo, ListingEntry) and the
// MetadataManager contract that the core dispatches tree mutations through.
// The core never holds its own copy of the tree; it is a client of this
// interface, same as fs.fileSystem is a client of gcs.Bucket.
package meta

import (
	"context"

	"github.com/igfs-project/igfs/ids"
)

// ListingEntry is one child of a directory's listing. The listing map
// preserves no order; uniqueness of Name within a directory is an invariant
// enforced by the manager, not by this type.
type ListingEntry struct {
	Name   string
	FileId ids.FileId
	IsFile bool
}

// FileInfo is the metadata record for one file or directory, as held by the
// metadata manager and read by the core.
type FileInfo struct {
	Id           ids.FileId
	IsDirectory  bool
	Length       uint64            // files only
	BlockSize    uint32            // files only
	AffinityKey  *ids.FileId       // optional
	EvictExclude bool
	Properties   map[string]string
	Listing      map[string]ListingEntry // directories only
}

// Clone returns a deep-enough copy for safe handoff across goroutines:
// Properties and Listing are copied, the rest is by value.
func (fi FileInfo) Clone() FileInfo {
	out := fi
	if fi.Properties != nil {
		out.Properties = make(map[string]string, len(fi.Properties))
		for k, v := range fi.Properties {
			out.Properties[k] = v
		}
	}
	if fi.Listing != nil {
		out.Listing = make(map[string]ListingEntry, len(fi.Listing))
		for k, v := range fi.Listing {
			out.Listing[k] = v
		}
	}
	return out
}

// NewDirInfo builds the FileInfo for a freshly-created directory.
func NewDirInfo(id ids.FileId, evictExclude bool, props map[string]string) FileInfo {
	return FileInfo{
		Id:           id,
		IsDirectory:  true,
		EvictExclude: evictExclude,
		Properties:   props,
		Listing:      make(map[string]ListingEntry),
	}
}

// NewFileInfo builds the FileInfo for a freshly-created file.
func NewFileInfo(id ids.FileId, blockSize uint32, affinityKey *ids.FileId, evictExclude bool, props map[string]string) FileInfo {
	return FileInfo{
		Id:           id,
		IsDirectory:  false,
		BlockSize:    blockSize,
		AffinityKey:  affinityKey,
		EvictExclude: evictExclude,
		Properties:   props,
	}
}

// Manager is the external metadata-manager contract. It is implemented
// here in-memory (see store.go); a cluster-backed tree representation is
// an external collaborator.
//
// All methods may be called concurrently from any number of goroutines; the
// manager is responsible for its own locking. Methods taking a parentId and
// name look up or mutate exactly one listing entry of that parent.
type Manager interface {
	// FileId resolves path to a FileId, or returns ids.Nil if it does not
	// exist.
	FileId(ctx context.Context, p string) (ids.FileId, error)

	// FileIds resolves every path segment from root to leaf, returning
	// ids.Nil for segments that do not exist (and for every segment after
	// the first missing one).
	FileIds(ctx context.Context, p string) ([]ids.FileId, error)

	// Info returns the FileInfo for id, or ok == false if id does not exist.
	Info(ctx context.Context, id ids.FileId) (FileInfo, bool, error)

	// DirectoryListing returns the listing of directory id.
	DirectoryListing(ctx context.Context, id ids.FileId) (map[string]ListingEntry, error)

	// PutIfAbsent inserts info as parentId's child named name if no entry by
	// that name exists yet. It returns the zero FileId and true if info's
	// own Id was stored; otherwise it returns the id of the entry that was
	// already there.
	PutIfAbsent(ctx context.Context, parentId ids.FileId, name string, info FileInfo) (existing ids.FileId, inserted bool, err error)

	// Lock takes an exclusive write lock on a file's metadata record and
	// returns the locked snapshot.
	Lock(ctx context.Context, id ids.FileId) (FileInfo, error)

	// Move atomically relocates srcId from (srcParentId, srcName) to
	// (destParentId, destName).
	Move(ctx context.Context, srcId ids.FileId, srcName string, srcParentId ids.FileId, destName string, destParentId ids.FileId) error

	// RemoveIfEmpty removes the (parentId, name) -> id entry. For a
	// directory it fails unless the directory's listing is empty.
	// rmvLocked indicates the caller already holds id's write lock (the
	// create-overwrite and append-create races release locks themselves;
	// this flag tells the manager not to attempt to take it again).
	RemoveIfEmpty(ctx context.Context, parentId ids.FileId, name string, id ids.FileId, path string, rmvLocked bool) error

	// SoftDelete moves the subtree rooted at id (reached via
	// (parentId, name), both optional for id == ids.ROOT_ID) under
	// ids.TRASH_ID for asynchronous purge. It returns the id actually
	// moved, or ids.Nil if id did not exist.
	SoftDelete(ctx context.Context, parentId *ids.FileId, name *string, id ids.FileId) (ids.FileId, error)

	// UpdateProperties merges props into id's Properties.
	UpdateProperties(ctx context.Context, id ids.FileId, props map[string]string) error

	// UpdateTimes sets id's access/modification-time properties.
	UpdateTimes(ctx context.Context, id ids.FileId, accessTime, modificationTime int64) error

	// PendingDeletes returns the ids of subtrees currently queued for
	// asynchronous purge (i.e. moved under trash but not yet reclaimed).
	PendingDeletes(ctx context.Context) ([]ids.FileId, error)

	// Exists reports whether id is still present.
	Exists(ctx context.Context, id ids.FileId) (bool, error)

	// Sampling reads (val == nil) or sets the metrics-sampling rate.
	Sampling(ctx context.Context, val *float64) (float64, error)

	// AwaitInit blocks until the manager has finished initializing, or ctx
	// is cancelled.
	AwaitInit(ctx context.Context) error

	// Dual variants: secondary-FS-aware counterparts used when the
	// resolved mode is DUAL_SYNC or DUAL_ASYNC.
	DualMkdirs(ctx context.Context, p string, props map[string]string) (FileInfo, error)
	DualCreate(ctx context.Context, p string, overwrite bool, props map[string]string) (FileInfo, SecondaryWriteHandle, error)
	DualAppend(ctx context.Context, p string, create bool, props map[string]string) (FileInfo, SecondaryWriteHandle, error)
	DualDelete(ctx context.Context, p string, recursive bool) (bool, error)
	DualUpdate(ctx context.Context, p string, props map[string]string) (FileInfo, error)
	DualRename(ctx context.Context, src, dest string) error
}

// SecondaryWriteHandle is the paired secondary-FS output stream that a dual
// create/append hands back for the core to register a Batch against. It is
// deliberately minimal: the core only ever writes to it and closes it.
type SecondaryWriteHandle interface {
	Write(p []byte) (n int, err error)
	Close() error
}
