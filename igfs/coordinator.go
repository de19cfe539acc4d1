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

package igfs

import (
	"context"
	"fmt"
	"sort"

	"github.com/igfs-project/igfs/data"
	"github.com/igfs-project/igfs/events"
	"github.com/igfs-project/igfs/ids"
	"github.com/igfs-project/igfs/igfserrs"
	"github.com/igfs-project/igfs/logging"
	"github.com/igfs-project/igfs/meta"
	igfspath "github.com/igfs-project/igfs/path"
	"github.com/igfs-project/igfs/secondary"
)

const defaultBufSize = 1 << 16 // 64 KiB; Create and Append do not read it, since they use bufSize only for a sign check.

// FileImpl is the value info() and affinity-adjacent callers receive: a
// path paired with its resolved metadata and the block size new reads
// should plan around.
type FileImpl struct {
	Path           string
	Info           meta.FileInfo
	GroupBlockSize uint32
}

// MetadataCoordinator dispatches every mutating and read operation by the
// mode resolved for its path. It is the largest single component: the
// two-store (metadata + data manager) transactional coordination lives
// here.
type MetadataCoordinator struct {
	metadata  meta.Manager
	dataMgr   data.Manager
	secondary secondary.FS // nil if no secondary FS is configured
	modes     *ModeResolver
	writers   *WriterRegistry
	streams   *StreamFactory
	eviction  EvictionPolicy
	handle    coordinatorHandle
}

// NewMetadataCoordinator wires the coordinator's collaborators. secondary
// and eviction may be nil.
func NewMetadataCoordinator(
	metadata meta.Manager,
	dataMgr data.Manager,
	secondaryFS secondary.FS,
	modes *ModeResolver,
	writers *WriterRegistry,
	streams *StreamFactory,
	eviction EvictionPolicy,
	handle coordinatorHandle,
) *MetadataCoordinator {
	return &MetadataCoordinator{
		metadata:  metadata,
		dataMgr:   dataMgr,
		secondary: secondaryFS,
		modes:     modes,
		writers:   writers,
		streams:   streams,
		eviction:  eviction,
		handle:    handle,
	}
}

// mutatingPreamble implements the common preamble shared by mkdirs, create,
// append, rename, delete, update and setTimes: parse, resolve mode, reject
// PROXY outright, and await in-flight secondary batches in dual modes.
func (c *MetadataCoordinator) mutatingPreamble(op, pathStr string, extra ...string) (igfspath.Path, Mode, error) {
	p, err := igfspath.Parse(pathStr)
	if err != nil {
		return igfspath.Path{}, 0, igfserrs.Wrap(igfserrs.InvalidArgument, op, pathStr, err)
	}

	mode := c.modes.ResolveMode(p)
	if mode == PROXY {
		return igfspath.Path{}, 0, igfserrs.New(igfserrs.InvalidPath, op, pathStr)
	}

	if mode.IsDual() {
		awaited := append([]string{p.String()}, extra...)
		c.writers.Await(awaited...)
	}

	return p, mode, nil
}

//
// 4.5.1 exists
//

// Exists reports whether path exists in metadata (PRIMARY), metadata or the
// secondary FS (DUAL_*), or only the secondary FS (PROXY).
func (c *MetadataCoordinator) Exists(ctx context.Context, pathStr string) (bool, error) {
	p, err := igfspath.Parse(pathStr)
	if err != nil {
		return false, igfserrs.Wrap(igfserrs.InvalidArgument, "Exists", pathStr, err)
	}
	mode := c.modes.ResolveMode(p)

	if mode == PROXY {
		if c.secondary == nil {
			return false, igfserrs.New(igfserrs.InvalidPath, "Exists", pathStr)
		}
		return c.secondary.Exists(ctx, p.String())
	}

	id, err := c.metadata.FileId(ctx, p.String())
	if err != nil {
		return false, igfserrs.Wrap(igfserrs.Internal, "Exists", pathStr, err)
	}
	if id != ids.Nil {
		return true, nil
	}
	if mode.IsDual() && c.secondary != nil {
		return c.secondary.Exists(ctx, p.String())
	}
	return false, nil
}

//
// 4.5.2 info
//

// resolveInfo implements the shared PRIMARY/DUAL_*/PROXY info resolution
// used by both Info and Affinity: PRIMARY consults only metadata; DUAL_*
// falls back to a synthesized FileInfo from the secondary FS without
// inserting it into metadata; PROXY consults only the secondary FS.
func (c *MetadataCoordinator) resolveInfo(ctx context.Context, p igfspath.Path, mode Mode) (meta.FileInfo, bool, error) {
	if mode == PROXY {
		if c.secondary == nil {
			return meta.FileInfo{}, false, igfserrs.New(igfserrs.InvalidPath, "Info", p.String())
		}
		return c.synthesizeFromSecondary(ctx, p)
	}

	id, err := c.metadata.FileId(ctx, p.String())
	if err != nil {
		return meta.FileInfo{}, false, igfserrs.Wrap(igfserrs.Internal, "Info", p.String(), err)
	}
	if id != ids.Nil {
		info, ok, err := c.metadata.Info(ctx, id)
		if err != nil {
			return meta.FileInfo{}, false, igfserrs.Wrap(igfserrs.Internal, "Info", p.String(), err)
		}
		if ok {
			return info, true, nil
		}
	}

	if mode.IsDual() && c.secondary != nil {
		return c.synthesizeFromSecondary(ctx, p)
	}
	return meta.FileInfo{}, false, nil
}

func (c *MetadataCoordinator) synthesizeFromSecondary(ctx context.Context, p igfspath.Path) (meta.FileInfo, bool, error) {
	st, err := c.secondary.Info(ctx, p.String())
	if err != nil {
		return meta.FileInfo{}, false, igfserrs.Wrap(igfserrs.Internal, "Info", p.String(), err)
	}
	if !st.Exists {
		return meta.FileInfo{}, false, nil
	}
	info := meta.FileInfo{IsDirectory: st.IsDirectory, Length: st.Length, Properties: st.Properties}
	if st.IsDirectory {
		info.Listing = map[string]meta.ListingEntry{}
	}
	return info, true, nil
}

// Info resolves path to a FileImpl, or ok == false if it does not exist.
func (c *MetadataCoordinator) Info(ctx context.Context, pathStr string) (*FileImpl, bool, error) {
	p, err := igfspath.Parse(pathStr)
	if err != nil {
		return nil, false, igfserrs.Wrap(igfserrs.InvalidArgument, "Info", pathStr, err)
	}
	mode := c.modes.ResolveMode(p)

	info, ok, err := c.resolveInfo(ctx, p, mode)
	if err != nil || !ok {
		return nil, ok, err
	}
	return &FileImpl{Path: p.String(), Info: info, GroupBlockSize: c.dataMgr.GroupBlockSize()}, true, nil
}

//
// 4.5.3 mkdirs
//

// Mkdirs creates every missing directory segment of path. props defaults
// to {"permission": "0777"} when nil.
func (c *MetadataCoordinator) Mkdirs(ctx context.Context, pathStr string, props map[string]string) error {
	p, mode, err := c.mutatingPreamble("Mkdirs", pathStr)
	if err != nil {
		return err
	}
	if props == nil {
		props = map[string]string{"permission": "0777"}
	}

	if mode.IsDual() {
		_, err := c.metadata.DualMkdirs(ctx, p.String(), props)
		if err != nil {
			return igfserrs.Wrap(igfserrs.Internal, "Mkdirs", pathStr, err)
		}
		return nil
	}

	return c.mkdirsPrimary(ctx, p, props)
}

func (c *MetadataCoordinator) mkdirsPrimary(ctx context.Context, p igfspath.Path, props map[string]string) error {
	parentId := ids.ROOT_ID
	cur := igfspath.Root()

	for _, name := range p.Components() {
		cur = cur.Child(name)
		candidate := meta.NewDirInfo(ids.New(), evictExcludeOf(c.eviction, cur), props)

		existing, inserted, err := c.metadata.PutIfAbsent(ctx, parentId, name, candidate)
		if err != nil {
			return igfserrs.Wrap(igfserrs.Internal, "Mkdirs", cur.String(), err)
		}
		if inserted {
			parentId = candidate.Id
			c.handle.emit(events.Event{Kind: events.DirCreated, Path: cur.String(), Node: c.handle.localNode()})
			continue
		}

		info, ok, err := c.metadata.Info(ctx, existing)
		if err != nil {
			return igfserrs.Wrap(igfserrs.Internal, "Mkdirs", cur.String(), err)
		}
		if !ok {
			// Raced with a concurrent delete of the very segment we just
			// lost the PutIfAbsent race for; retry the whole walk from the
			// top rather than threading partial-path state through the
			// loop.
			return c.mkdirsPrimary(ctx, p, props)
		}
		if !info.IsDirectory {
			return igfserrs.New(igfserrs.ParentNotDirectory, "Mkdirs", cur.String())
		}
		parentId = existing
	}
	return nil
}

//
// 4.5.4 create
//

// Create opens a new write stream at path. overwrite controls whether an
// existing file at path is replaced; affinityKey, if non-nil, pins the
// file's blocks. A negative bufSize is rejected; otherwise bufSize is not
// used, and bufSize == 0 is not replaced with any default.
func (c *MetadataCoordinator) Create(ctx context.Context, pathStr string, bufSize int, overwrite bool, affinityKey *ids.FileId, props map[string]string) (*WriteStream, error) {
	if bufSize < 0 {
		return nil, igfserrs.New(igfserrs.InvalidArgument, "Create", pathStr)
	}

	p, mode, err := c.mutatingPreamble("Create", pathStr)
	if err != nil {
		return nil, err
	}

	if mode.IsDual() {
		info, secHandle, err := c.metadata.DualCreate(ctx, p.String(), overwrite, props)
		if err != nil {
			return nil, igfserrs.Wrap(igfserrs.Internal, "Create", pathStr, err)
		}
		batch, err := c.writers.Enqueue(p.String(), secHandle, func(h meta.SecondaryWriteHandle) error {
			return h.Close()
		})
		if err != nil {
			return nil, err
		}
		return c.streams.NewWriteStream(p.String(), info, batch, c.handle), nil
	}

	return c.createPrimary(ctx, p, overwrite, affinityKey, props)
}

func (c *MetadataCoordinator) createPrimary(ctx context.Context, p igfspath.Path, overwrite bool, affinityKey *ids.FileId, props map[string]string) (*WriteStream, error) {
	parent, ok := p.Parent()
	if !ok {
		return nil, igfserrs.New(igfserrs.InvalidPath, "Create", p.String())
	}
	if err := c.mkdirsPrimary(ctx, parent, map[string]string{"permission": "0777"}); err != nil {
		return nil, err
	}
	parentId, err := c.metadata.FileId(ctx, parent.String())
	if err != nil {
		return nil, igfserrs.Wrap(igfserrs.Internal, "Create", p.String(), err)
	}

	for {
		key := affinityKey
		if key == nil {
			k := c.dataMgr.NextAffinityKey()
			key = &k
		}
		candidate := meta.NewFileInfo(ids.New(), c.dataMgr.GroupBlockSize(), key, evictExcludeOf(c.eviction, p), props)

		existing, inserted, err := c.metadata.PutIfAbsent(ctx, parentId, p.Name(), candidate)
		if err != nil {
			return nil, igfserrs.Wrap(igfserrs.Internal, "Create", p.String(), err)
		}
		if inserted {
			locked, err := c.metadata.Lock(ctx, candidate.Id)
			if err != nil {
				return nil, igfserrs.Wrap(igfserrs.Internal, "Create", p.String(), err)
			}
			c.handle.emit(events.Event{Kind: events.FileCreated, Path: p.String(), Node: c.handle.localNode()})
			return c.streams.NewWriteStream(p.String(), locked, nil, c.handle), nil
		}

		existingInfo, ok, err := c.metadata.Info(ctx, existing)
		if err != nil {
			return nil, igfserrs.Wrap(igfserrs.Internal, "Create", p.String(), err)
		}
		if !ok {
			// Raced with a concurrent delete of the collider; retry.
			continue
		}
		if existingInfo.IsDirectory {
			return nil, igfserrs.New(igfserrs.PathAlreadyExists, "Create", p.String())
		}
		if !overwrite {
			return nil, igfserrs.New(igfserrs.PathAlreadyExists, "Create", p.String())
		}

		pid := parentId
		desc := FileDescriptor{ParentId: &pid, FileName: p.Name(), FileId: existing, IsFile: true}
		if err := c.deleteFile(ctx, desc, p.String(), false); err != nil {
			return nil, err
		}
		c.handle.emit(events.Event{Kind: events.FileDeleted, Path: p.String(), Node: c.handle.localNode()})
	}
}

//
// 4.5.5 append
//

// Append opens a write stream at the end of an existing file at path, or
// creates it first if create is true.
func (c *MetadataCoordinator) Append(ctx context.Context, pathStr string, bufSize int, create bool, props map[string]string) (*WriteStream, error) {
	if bufSize < 0 {
		return nil, igfserrs.New(igfserrs.InvalidArgument, "Append", pathStr)
	}

	p, mode, err := c.mutatingPreamble("Append", pathStr)
	if err != nil {
		return nil, err
	}

	if mode.IsDual() {
		info, secHandle, err := c.metadata.DualAppend(ctx, p.String(), create, props)
		if err != nil {
			return nil, igfserrs.Wrap(igfserrs.Internal, "Append", pathStr, err)
		}
		batch, err := c.writers.Enqueue(p.String(), secHandle, func(h meta.SecondaryWriteHandle) error {
			return h.Close()
		})
		if err != nil {
			return nil, err
		}
		return c.streams.NewWriteStream(p.String(), info, batch, c.handle), nil
	}

	id, err := c.metadata.FileId(ctx, p.String())
	if err != nil {
		return nil, igfserrs.Wrap(igfserrs.Internal, "Append", pathStr, err)
	}

	if id == ids.Nil {
		if !create {
			return nil, igfserrs.New(igfserrs.FileNotFound, "Append", pathStr)
		}
		parent, ok := p.Parent()
		if !ok {
			return nil, igfserrs.New(igfserrs.InvalidPath, "Append", pathStr)
		}
		parentId, err := c.metadata.FileId(ctx, parent.String())
		if err != nil || parentId == ids.Nil {
			return nil, igfserrs.New(igfserrs.ParentNotDirectory, "Append", pathStr)
		}
		candidate := meta.NewFileInfo(ids.New(), c.dataMgr.GroupBlockSize(), nil, evictExcludeOf(c.eviction, p), props)
		existing, inserted, err := c.metadata.PutIfAbsent(ctx, parentId, p.Name(), candidate)
		if err != nil {
			return nil, igfserrs.Wrap(igfserrs.Internal, "Append", pathStr, err)
		}
		id = candidate.Id
		if !inserted {
			// A racing creator won; adopt its id.
			id = existing
		} else {
			c.handle.emit(events.Event{Kind: events.FileCreated, Path: pathStr, Node: c.handle.localNode()})
		}
	}

	info, ok, err := c.metadata.Info(ctx, id)
	if err != nil {
		return nil, igfserrs.Wrap(igfserrs.Internal, "Append", pathStr, err)
	}
	if !ok {
		return nil, igfserrs.New(igfserrs.FileNotFound, "Append", pathStr)
	}
	if info.IsDirectory {
		return nil, igfserrs.New(igfserrs.InvalidPath, "Append", pathStr)
	}

	locked, err := c.metadata.Lock(ctx, id)
	if err != nil {
		return nil, igfserrs.Wrap(igfserrs.Internal, "Append", pathStr, err)
	}
	return c.streams.NewWriteStream(pathStr, locked, nil, c.handle), nil
}

//
// 4.5.6 rename
//

// Rename moves src to dest.
func (c *MetadataCoordinator) Rename(ctx context.Context, srcStr, destStr string) error {
	src, err := igfspath.Parse(srcStr)
	if err != nil {
		return igfserrs.Wrap(igfserrs.InvalidArgument, "Rename", srcStr, err)
	}
	dest, err := igfspath.Parse(destStr)
	if err != nil {
		return igfserrs.Wrap(igfserrs.InvalidArgument, "Rename", destStr, err)
	}

	if src.IsSame(dest) {
		return nil
	}

	srcMode := c.modes.ResolveMode(src)
	if srcMode == PROXY {
		return igfserrs.New(igfserrs.InvalidPath, "Rename", srcStr)
	}

	if _, ok := src.Parent(); !ok {
		return igfserrs.New(igfserrs.InvalidPath, "Rename", srcStr)
	}
	if dest.IsSubDirectoryOf(src) {
		return igfserrs.New(igfserrs.InvalidPath, "Rename", srcStr)
	}
	if evictExcludeOf(c.eviction, src) != evictExcludeOf(c.eviction, dest) {
		return igfserrs.New(igfserrs.InvalidPath, "Rename", srcStr)
	}

	if srcMode.IsDual() {
		c.writers.Await(src.String(), dest.String())
	}

	childModes := c.modes.ResolveChildrenModes(src)
	for m := range childModes {
		if m.IsDual() {
			if err := c.metadata.DualRename(ctx, src.String(), dest.String()); err != nil {
				return igfserrs.Wrap(igfserrs.Internal, "Rename", srcStr, err)
			}
			c.handle.emit(events.Event{Kind: events.FileRenamed, Path: srcStr, DestPath: destStr, Node: c.handle.localNode()})
			return nil
		}
	}

	srcDesc, ok, err := resolveDescriptor(ctx, c.metadata, src)
	if err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "Rename", srcStr, err)
	}
	if !ok {
		if c.secondary != nil {
			if exists, _ := c.secondary.Exists(ctx, src.String()); exists {
				return igfserrs.New(igfserrs.SecondaryConflict, "Rename", srcStr)
			}
		}
		return igfserrs.New(igfserrs.FileNotFound, "Rename", srcStr)
	}

	destDesc, destOk, err := resolveDescriptor(ctx, c.metadata, dest)
	if err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "Rename", destStr, err)
	}

	var destParentId ids.FileId
	var destName string
	if !destOk {
		destParent, ok := dest.Parent()
		if !ok {
			return igfserrs.New(igfserrs.InvalidPath, "Rename", destStr)
		}
		destParentDesc, ok, err := resolveDescriptor(ctx, c.metadata, destParent)
		if err != nil {
			return igfserrs.Wrap(igfserrs.Internal, "Rename", destStr, err)
		}
		if !ok || destParentDesc.IsFile {
			return igfserrs.New(igfserrs.ParentNotDirectory, "Rename", destStr)
		}
		destParentId = destParentDesc.FileId
		destName = dest.Name()
	} else if destDesc.IsFile {
		return igfserrs.New(igfserrs.ParentNotDirectory, "Rename", destStr)
	} else {
		destParentId = destDesc.FileId
		destName = src.Name()
	}

	if srcDesc.ParentId == nil {
		return igfserrs.New(igfserrs.InvalidPath, "Rename", srcStr)
	}

	if err := c.metadata.Move(ctx, srcDesc.FileId, srcDesc.FileName, *srcDesc.ParentId, destName, destParentId); err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "Rename", srcStr, err)
	}

	finalPath := dest.String()
	if destOk && !destDesc.IsFile {
		finalPath = dest.Child(src.Name()).String()
	}

	kind := events.FileRenamed
	if !srcDesc.IsFile {
		kind = events.DirRenamed
	}
	c.handle.emit(events.Event{Kind: kind, Path: srcStr, DestPath: finalPath, Node: c.handle.localNode()})
	return nil
}

//
// 4.5.7 delete
//

// Delete removes path. recursive controls whether a non-empty directory
// may be removed (moved to trash for asynchronous purge).
func (c *MetadataCoordinator) Delete(ctx context.Context, pathStr string, recursive bool) (bool, error) {
	p, err := igfspath.Parse(pathStr)
	if err != nil {
		return false, igfserrs.Wrap(igfserrs.InvalidArgument, "Delete", pathStr, err)
	}
	if p.IsRoot() && !recursive {
		return false, nil
	}

	mode := c.modes.ResolveMode(p)
	if mode == PROXY {
		return false, igfserrs.New(igfserrs.InvalidPath, "Delete", pathStr)
	}
	if mode.IsDual() {
		c.writers.Await(p.String())
	}

	childModes := c.modes.ResolveChildrenModes(p)

	desc, ok, err := resolveDescriptor(ctx, c.metadata, p)
	if err != nil {
		return false, igfserrs.Wrap(igfserrs.Internal, "Delete", pathStr, err)
	}

	deleted := false
	if childModes[PRIMARY] && ok {
		if err := c.delete0(ctx, desc, p, recursive); err != nil {
			return false, err
		}
		deleted = true
	}

	for m := range childModes {
		if m.IsDual() {
			ok2, err := c.metadata.DualDelete(ctx, p.String(), recursive)
			if err != nil {
				return false, igfserrs.Wrap(igfserrs.Internal, "Delete", pathStr, err)
			}
			deleted = deleted || ok2
			break
		}
	}

	if deleted && ok {
		kind := events.FileDeleted
		if !desc.IsFile {
			kind = events.DirDeleted
		}
		c.handle.emit(events.Event{Kind: kind, Path: pathStr, Node: c.handle.localNode()})
	}
	return deleted, nil
}

// delete0 implements the PRIMARY deletion rules.
func (c *MetadataCoordinator) delete0(ctx context.Context, desc FileDescriptor, p igfspath.Path, recursive bool) error {
	if desc.FileId.IsReserved() {
		return nil
	}

	if desc.IsFile {
		return c.deleteFile(ctx, desc, p.String(), true)
	}

	if recursive {
		pid := desc.ParentId
		name := &desc.FileName
		if pid == nil {
			name = nil
		}
		_, err := c.metadata.SoftDelete(ctx, pid, name, desc.FileId)
		if err != nil {
			return igfserrs.Wrap(igfserrs.Internal, "Delete", p.String(), err)
		}
		return nil
	}

	listing, err := c.metadata.DirectoryListing(ctx, desc.FileId)
	if err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "Delete", p.String(), err)
	}
	if len(listing) > 0 {
		return igfserrs.New(igfserrs.DirectoryNotEmpty, "Delete", p.String())
	}
	if desc.ParentId == nil {
		return nil
	}
	return c.metadata.RemoveIfEmpty(ctx, *desc.ParentId, desc.FileName, desc.FileId, p.String(), false)
}

func (c *MetadataCoordinator) deleteFile(ctx context.Context, desc FileDescriptor, path string, rmvLocked bool) error {
	if desc.ParentId == nil {
		return igfserrs.New(igfserrs.InvalidPath, "Delete", path)
	}
	if err := c.metadata.RemoveIfEmpty(ctx, *desc.ParentId, desc.FileName, desc.FileId, path, rmvLocked); err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "Delete", path, err)
	}
	return nil
}

//
// 4.5.8 update / setTimes
//

// Update merges props into path's metadata.
func (c *MetadataCoordinator) Update(ctx context.Context, pathStr string, props map[string]string) error {
	p, mode, err := c.mutatingPreamble("Update", pathStr)
	if err != nil {
		return err
	}

	if mode.IsDual() {
		_, err := c.metadata.DualUpdate(ctx, p.String(), props)
		if err != nil {
			return igfserrs.Wrap(igfserrs.Internal, "Update", pathStr, err)
		}
		c.handle.emit(events.Event{Kind: events.MetaUpdated, Path: p.String(), Node: c.handle.localNode()})
		return nil
	}

	id, err := c.metadata.FileId(ctx, p.String())
	if err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "Update", pathStr, err)
	}
	if id == ids.Nil {
		return igfserrs.New(igfserrs.FileNotFound, "Update", pathStr)
	}
	if err := c.metadata.UpdateProperties(ctx, id, props); err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "Update", pathStr, err)
	}
	c.handle.emit(events.Event{Kind: events.MetaUpdated, Path: p.String(), Node: c.handle.localNode()})
	return nil
}

// SetTimes sets path's access and modification times.
func (c *MetadataCoordinator) SetTimes(ctx context.Context, pathStr string, accessTime, modificationTime int64) error {
	p, mode, err := c.mutatingPreamble("SetTimes", pathStr)
	if err != nil {
		return err
	}

	id, err := c.metadata.FileId(ctx, p.String())
	if err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "SetTimes", pathStr, err)
	}
	if id == ids.Nil {
		if mode.IsDual() {
			_, err := c.metadata.DualUpdate(ctx, p.String(), map[string]string{
				"accessTime":       fmt.Sprintf("%d", accessTime),
				"modificationTime": fmt.Sprintf("%d", modificationTime),
			})
			if err != nil {
				return igfserrs.Wrap(igfserrs.Internal, "SetTimes", pathStr, err)
			}
			c.handle.emit(events.Event{Kind: events.MetaUpdated, Path: p.String(), Node: c.handle.localNode()})
			return nil
		}
		return igfserrs.New(igfserrs.FileNotFound, "SetTimes", pathStr)
	}

	if err := c.metadata.UpdateTimes(ctx, id, accessTime, modificationTime); err != nil {
		return igfserrs.Wrap(igfserrs.Internal, "SetTimes", pathStr, err)
	}
	c.handle.emit(events.Event{Kind: events.MetaUpdated, Path: p.String(), Node: c.handle.localNode()})
	return nil
}

//
// 4.5.9 listPaths / listFiles
//

// ListPaths returns the union of path's metadata and (when applicable)
// secondary-FS listing, de-duplicated by name. If path is itself a file,
// it returns a singleton view of just that path.
func (c *MetadataCoordinator) ListPaths(ctx context.Context, pathStr string) ([]string, error) {
	names, isFile, err := c.listNames(ctx, pathStr, false)
	if err != nil {
		return nil, err
	}
	if isFile {
		return []string{pathStr}, nil
	}
	return names, nil
}

// ListFiles is ListPaths filtered to file entries only.
func (c *MetadataCoordinator) ListFiles(ctx context.Context, pathStr string) ([]string, error) {
	names, isFile, err := c.listNames(ctx, pathStr, true)
	if err != nil {
		return nil, err
	}
	if isFile {
		return []string{pathStr}, nil
	}
	return names, nil
}

func (c *MetadataCoordinator) listNames(ctx context.Context, pathStr string, filesOnly bool) ([]string, bool, error) {
	p, err := igfspath.Parse(pathStr)
	if err != nil {
		return nil, false, igfserrs.Wrap(igfserrs.InvalidArgument, "ListPaths", pathStr, err)
	}

	id, err := c.metadata.FileId(ctx, p.String())
	if err != nil {
		return nil, false, igfserrs.Wrap(igfserrs.Internal, "ListPaths", pathStr, err)
	}

	names := map[string]bool{}
	if id != ids.Nil {
		info, ok, err := c.metadata.Info(ctx, id)
		if err != nil {
			return nil, false, igfserrs.Wrap(igfserrs.Internal, "ListPaths", pathStr, err)
		}
		if ok && !info.IsDirectory {
			return nil, true, nil
		}
		if ok {
			for name, entry := range info.Listing {
				if filesOnly && !entry.IsFile {
					continue
				}
				names[name] = true
			}
		}
	}

	if c.secondary != nil {
		childModes := c.modes.ResolveChildrenModes(p)
		needsSecondary := false
		for m := range childModes {
			if m.IsDual() {
				needsSecondary = true
			}
		}
		if needsSecondary {
			var secPaths []string
			var secErr error
			if filesOnly {
				secPaths, secErr = c.secondary.ListFiles(ctx, p.String())
			} else {
				secPaths, secErr = c.secondary.ListPaths(ctx, p.String())
			}
			if secErr != nil {
				logging.Warnf("ListPaths: secondary listing of %s failed: %v", pathStr, secErr)
			} else {
				for _, full := range secPaths {
					fp, err := igfspath.Parse(full)
					if err != nil {
						continue
					}
					names[fp.Name()] = true
				}
			}
		}
	}

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, p.Child(name).String())
	}
	sort.Strings(out)
	return out, false, nil
}

//
// 4.5.10 affinity
//

// Affinity returns the blocks of path covering [start, start+length).
// start and length must be non-negative; path must resolve to a file.
func (c *MetadataCoordinator) Affinity(ctx context.Context, pathStr string, start, length int64, maxLen uint64) ([]data.AffinityBlock, error) {
	if start < 0 || length < 0 {
		return nil, igfserrs.New(igfserrs.InvalidArgument, "Affinity", pathStr)
	}

	p, err := igfspath.Parse(pathStr)
	if err != nil {
		return nil, igfserrs.Wrap(igfserrs.InvalidArgument, "Affinity", pathStr, err)
	}
	mode := c.modes.ResolveMode(p)

	info, ok, err := c.resolveInfo(ctx, p, mode)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, igfserrs.New(igfserrs.FileNotFound, "Affinity", pathStr)
	}
	if info.IsDirectory {
		return nil, igfserrs.New(igfserrs.InvalidPath, "Affinity", pathStr)
	}

	return c.dataMgr.Affinity(ctx, info, uint64(start), uint64(length), maxLen)
}
