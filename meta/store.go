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

package meta

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jacobsa/syncutil"

	"github.com/igfs-project/igfs/ids"
)

// Store is an in-memory Manager, standing in for a cluster-backed tree
// representation. It is the reference implementation exercised by the
// core's tests.
type Store struct {
	mu syncutil.InvariantMutex

	// GUARDED_BY(mu)
	nodes map[ids.FileId]*FileInfo

	// GUARDED_BY(mu)
	locked map[ids.FileId]bool

	// GUARDED_BY(mu)
	trash map[ids.FileId]bool

	// GUARDED_BY(mu)
	samplingRate float64

	initOnce sync.Once
	ready    chan struct{}

	secondary dualDelegate
}

// dualDelegate lets tests and production wiring supply the secondary-FS
// aware behaviour without the in-memory store itself knowing about any
// concrete secondary file system.
type dualDelegate interface {
	Mkdirs(ctx context.Context, p string, props map[string]string) (FileInfo, error)
	Create(ctx context.Context, p string, overwrite bool, props map[string]string) (FileInfo, SecondaryWriteHandle, error)
	Append(ctx context.Context, p string, create bool, props map[string]string) (FileInfo, SecondaryWriteHandle, error)
	Delete(ctx context.Context, p string, recursive bool) (bool, error)
	Update(ctx context.Context, p string, props map[string]string) (FileInfo, error)
	Rename(ctx context.Context, src, dest string) error
}

// NewStore builds an empty tree containing only root and trash. dual may be
// nil if no secondary FS is configured; dual-mode calls then fail loudly
// rather than silently behaving like PRIMARY, since that mismatch would hide
// a configuration bug.
func NewStore(dual dualDelegate) *Store {
	s := &Store{
		nodes:        make(map[ids.FileId]*FileInfo),
		locked:       make(map[ids.FileId]bool),
		trash:        make(map[ids.FileId]bool),
		samplingRate: 1.0,
		ready:        make(chan struct{}),
		secondary:    dual,
	}
	root := NewDirInfo(ids.ROOT_ID, false, map[string]string{"permission": "0777"})
	trash := NewDirInfo(ids.TRASH_ID, false, map[string]string{"permission": "0777"})
	s.nodes[ids.ROOT_ID] = &root
	s.nodes[ids.TRASH_ID] = &trash

	s.mu = syncutil.NewInvariantMutex(s.checkInvariants)
	close(s.ready)
	return s
}

// SetDual wires the secondary-FS-aware delegate in after construction,
// breaking the otherwise-circular dependency between a Store and a
// SecondaryDelegate that needs a *Store of its own.
func (s *Store) SetDual(dual dualDelegate) {
	s.secondary = dual
}

func (s *Store) checkInvariants() {
	if _, ok := s.nodes[ids.ROOT_ID]; !ok {
		panic("root missing from store")
	}
	if _, ok := s.nodes[ids.TRASH_ID]; !ok {
		panic("trash missing from store")
	}
	for id, info := range s.nodes {
		if info.IsDirectory {
			seen := make(map[string]bool, len(info.Listing))
			for name, entry := range info.Listing {
				if name != entry.Name {
					panic(fmt.Sprintf("listing key %q does not match entry name %q under %s", name, entry.Name, id))
				}
				if seen[name] {
					panic(fmt.Sprintf("duplicate child name %q under %s", name, id))
				}
				seen[name] = true
			}
		}
	}
}

var _ Manager = (*Store)(nil)

func (s *Store) AwaitInit(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) FileId(ctx context.Context, p string) (ids.FileId, error) {
	segs := splitPath(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := ids.ROOT_ID
	for _, seg := range segs {
		info, ok := s.nodes[cur]
		if !ok || !info.IsDirectory {
			return ids.Nil, nil
		}
		entry, ok := info.Listing[seg]
		if !ok {
			return ids.Nil, nil
		}
		cur = entry.FileId
	}
	return cur, nil
}

func (s *Store) FileIds(ctx context.Context, p string) ([]ids.FileId, error) {
	segs := splitPath(p)
	out := make([]ids.FileId, 0, len(segs)+1)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := ids.ROOT_ID
	out = append(out, cur)
	missing := false
	for _, seg := range segs {
		if missing {
			out = append(out, ids.Nil)
			continue
		}
		info, ok := s.nodes[cur]
		if !ok || !info.IsDirectory {
			missing = true
			out = append(out, ids.Nil)
			continue
		}
		entry, ok := info.Listing[seg]
		if !ok {
			missing = true
			out = append(out, ids.Nil)
			continue
		}
		cur = entry.FileId
		out = append(out, cur)
	}
	return out, nil
}

func (s *Store) Info(ctx context.Context, id ids.FileId) (FileInfo, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.nodes[id]
	if !ok {
		return FileInfo{}, false, nil
	}
	return info.Clone(), true, nil
}

func (s *Store) DirectoryListing(ctx context.Context, id ids.FileId) (map[string]ListingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("DirectoryListing: no such id %s", id)
	}
	if !info.IsDirectory {
		return nil, fmt.Errorf("DirectoryListing: %s is not a directory", id)
	}
	out := make(map[string]ListingEntry, len(info.Listing))
	for k, v := range info.Listing {
		out[k] = v
	}
	return out, nil
}

func (s *Store) PutIfAbsent(ctx context.Context, parentId ids.FileId, name string, info FileInfo) (ids.FileId, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[parentId]
	if !ok || !parent.IsDirectory {
		return ids.Nil, false, fmt.Errorf("PutIfAbsent: parent %s is not a directory", parentId)
	}

	if existing, ok := parent.Listing[name]; ok {
		return existing.FileId, false, nil
	}

	stored := info.Clone()
	s.nodes[info.Id] = &stored
	parent.Listing[name] = ListingEntry{Name: name, FileId: info.Id, IsFile: !info.IsDirectory}
	return ids.Nil, true, nil
}

func (s *Store) Lock(ctx context.Context, id ids.FileId) (FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.nodes[id]
	if !ok {
		return FileInfo{}, fmt.Errorf("Lock: no such id %s", id)
	}
	s.locked[id] = true
	return info.Clone(), nil
}

func (s *Store) unlock(id ids.FileId) {
	delete(s.locked, id)
}

func (s *Store) Move(ctx context.Context, srcId ids.FileId, srcName string, srcParentId ids.FileId, destName string, destParentId ids.FileId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	srcParent, ok := s.nodes[srcParentId]
	if !ok || !srcParent.IsDirectory {
		return fmt.Errorf("Move: source parent %s is not a directory", srcParentId)
	}
	destParent, ok := s.nodes[destParentId]
	if !ok || !destParent.IsDirectory {
		return fmt.Errorf("Move: destination parent %s is not a directory", destParentId)
	}
	entry, ok := srcParent.Listing[srcName]
	if !ok || entry.FileId != srcId {
		return fmt.Errorf("Move: %s not found under %s as %q", srcId, srcParentId, srcName)
	}
	if _, exists := destParent.Listing[destName]; exists {
		return fmt.Errorf("Move: destination %q already occupied under %s", destName, destParentId)
	}

	delete(srcParent.Listing, srcName)
	destParent.Listing[destName] = ListingEntry{Name: destName, FileId: srcId, IsFile: entry.IsFile}
	return nil
}

func (s *Store) RemoveIfEmpty(ctx context.Context, parentId ids.FileId, name string, id ids.FileId, path string, rmvLocked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.nodes[parentId]
	if !ok || !parent.IsDirectory {
		return fmt.Errorf("RemoveIfEmpty: parent %s is not a directory", parentId)
	}
	entry, ok := parent.Listing[name]
	if !ok || entry.FileId != id {
		return fmt.Errorf("RemoveIfEmpty: %s not found under %s as %q", id, parentId, name)
	}
	target, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("RemoveIfEmpty: no such id %s", id)
	}
	if target.IsDirectory && len(target.Listing) > 0 {
		return fmt.Errorf("RemoveIfEmpty: %s (%s) is not empty", id, path)
	}

	delete(parent.Listing, name)
	delete(s.nodes, id)
	if !rmvLocked {
		s.unlock(id)
	}
	return nil
}

// SoftDelete relocates the subtree rooted at id under trash. id ==
// ids.ROOT_ID is handled specially: every child of root is moved under
// trash individually (root itself is never deleted, per invariant 1), and
// the id returned is ids.TRASH_ID's newest child if anything moved, or
// ids.Nil if root was already empty.
func (s *Store) SoftDelete(ctx context.Context, parentId *ids.FileId, name *string, id ids.FileId) (ids.FileId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == ids.ROOT_ID {
		root := s.nodes[ids.ROOT_ID]
		if len(root.Listing) == 0 {
			return ids.Nil, nil
		}
		trash := s.nodes[ids.TRASH_ID]
		var last ids.FileId
		for childName, entry := range root.Listing {
			delete(root.Listing, childName)
			newName := entry.FileId.String()
			trash.Listing[newName] = ListingEntry{Name: newName, FileId: entry.FileId, IsFile: entry.IsFile}
			s.trash[entry.FileId] = true
			last = entry.FileId
		}
		return last, nil
	}

	if id.IsReserved() {
		return ids.Nil, fmt.Errorf("SoftDelete: refusing to delete reserved id %s", id)
	}
	if parentId == nil || name == nil {
		return ids.Nil, fmt.Errorf("SoftDelete: parentId and name are required for non-root ids")
	}

	parent, ok := s.nodes[*parentId]
	if !ok || !parent.IsDirectory {
		return ids.Nil, fmt.Errorf("SoftDelete: parent %s is not a directory", *parentId)
	}
	entry, ok := parent.Listing[*name]
	if !ok || entry.FileId != id {
		return ids.Nil, nil
	}

	delete(parent.Listing, *name)
	trash := s.nodes[ids.TRASH_ID]
	trashName := id.String()
	trash.Listing[trashName] = ListingEntry{Name: trashName, FileId: id, IsFile: entry.IsFile}
	s.trash[id] = true
	return id, nil
}

func (s *Store) UpdateProperties(ctx context.Context, id ids.FileId, props map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("UpdateProperties: no such id %s", id)
	}
	if info.Properties == nil {
		info.Properties = make(map[string]string, len(props))
	}
	for k, v := range props {
		info.Properties[k] = v
	}
	return nil
}

func (s *Store) UpdateTimes(ctx context.Context, id ids.FileId, accessTime, modificationTime int64) error {
	return s.UpdateProperties(ctx, id, map[string]string{
		"accessTime":       fmt.Sprintf("%d", accessTime),
		"modificationTime": fmt.Sprintf("%d", modificationTime),
	})
}

func (s *Store) PendingDeletes(ctx context.Context) ([]ids.FileId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ids.FileId, 0, len(s.trash))
	for id := range s.trash {
		if _, ok := s.nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *Store) Exists(ctx context.Context, id ids.FileId) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[id]
	return ok, nil
}

// Purge permanently removes a trashed subtree, simulating the asynchronous
// reclamation that a real deployment would run as a background task on the
// node owning the trash partition.
func (s *Store) Purge(ctx context.Context, id ids.FileId) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trash := s.nodes[ids.TRASH_ID]
	name := id.String()
	delete(trash.Listing, name)
	delete(s.trash, id)
	s.purgeSubtree(id)
	return nil
}

// LOCKS_REQUIRED(s.mu)
func (s *Store) purgeSubtree(id ids.FileId) {
	info, ok := s.nodes[id]
	if !ok {
		return
	}
	if info.IsDirectory {
		for _, entry := range info.Listing {
			s.purgeSubtree(entry.FileId)
		}
	}
	delete(s.nodes, id)
	delete(s.locked, id)
}

func (s *Store) Sampling(ctx context.Context, val *float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if val != nil {
		s.samplingRate = *val
	}
	return s.samplingRate, nil
}

func (s *Store) DualMkdirs(ctx context.Context, p string, props map[string]string) (FileInfo, error) {
	if s.secondary == nil {
		return FileInfo{}, fmt.Errorf("DualMkdirs: no secondary FS configured")
	}
	return s.secondary.Mkdirs(ctx, p, props)
}

func (s *Store) DualCreate(ctx context.Context, p string, overwrite bool, props map[string]string) (FileInfo, SecondaryWriteHandle, error) {
	if s.secondary == nil {
		return FileInfo{}, nil, fmt.Errorf("DualCreate: no secondary FS configured")
	}
	return s.secondary.Create(ctx, p, overwrite, props)
}

func (s *Store) DualAppend(ctx context.Context, p string, create bool, props map[string]string) (FileInfo, SecondaryWriteHandle, error) {
	if s.secondary == nil {
		return FileInfo{}, nil, fmt.Errorf("DualAppend: no secondary FS configured")
	}
	return s.secondary.Append(ctx, p, create, props)
}

func (s *Store) DualDelete(ctx context.Context, p string, recursive bool) (bool, error) {
	if s.secondary == nil {
		return false, fmt.Errorf("DualDelete: no secondary FS configured")
	}
	return s.secondary.Delete(ctx, p, recursive)
}

func (s *Store) DualUpdate(ctx context.Context, p string, props map[string]string) (FileInfo, error) {
	if s.secondary == nil {
		return FileInfo{}, fmt.Errorf("DualUpdate: no secondary FS configured")
	}
	return s.secondary.Update(ctx, p, props)
}

func (s *Store) DualRename(ctx context.Context, src, dest string) error {
	if s.secondary == nil {
		return fmt.Errorf("DualRename: no secondary FS configured")
	}
	return s.secondary.Rename(ctx, src, dest)
}

func splitPath(p string) []string {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
