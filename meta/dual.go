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
	"io"

	"github.com/igfs-project/igfs/ids"
)

// MutableSecondaryFS is the subset of secondary.LocalFS the dual-mode
// delegate needs beyond the read-only secondary.FS contract: creating and
// writing to paths, not just observing them.
type MutableSecondaryFS interface {
	Exists(ctx context.Context, p string) (bool, error)
	Mkdir(p string) error
	OpenWriter(p string, append bool) (io.WriteCloser, error)
	Remove(p string, recursive bool) error
	Rename(ctx context.Context, src, dest string) error
}

// SecondaryDelegate implements dualDelegate against a mutable secondary FS
// plus this process's own in-memory Store, coordinating the two: a dual
// create/append writes through to the secondary FS and mirrors the result
// into metadata, pairing every secondary OutputStream with a metadata
// update.
type SecondaryDelegate struct {
	fs    MutableSecondaryFS
	store *Store
}

// NewSecondaryDelegate builds a dualDelegate. Call Store.SetDual (or pass
// it to NewStore) to wire the result in.
func NewSecondaryDelegate(fs MutableSecondaryFS, store *Store) *SecondaryDelegate {
	return &SecondaryDelegate{fs: fs, store: store}
}

var _ dualDelegate = (*SecondaryDelegate)(nil)

func (d *SecondaryDelegate) Mkdirs(ctx context.Context, p string, props map[string]string) (FileInfo, error) {
	if err := d.fs.Mkdir(p); err != nil {
		return FileInfo{}, fmt.Errorf("Mkdirs: %v", err)
	}

	parentId := ids.ROOT_ID
	segs := splitPath(p)
	for i, name := range segs {
		partial := "/" + joinSegs(segs[:i+1])
		existing, err := d.store.FileId(ctx, partial)
		if err != nil {
			return FileInfo{}, err
		}
		if existing != ids.Nil {
			parentId = existing
			continue
		}
		candidate := NewDirInfo(ids.New(), false, props)
		_, _, err = d.store.PutIfAbsent(ctx, parentId, name, candidate)
		if err != nil {
			return FileInfo{}, err
		}
		parentId = candidate.Id
	}

	info, _, err := d.store.Info(ctx, parentId)
	return info, err
}

// dualDefaultBlockSize is the block size recorded for files created through
// the secondary-FS delegate, which has no data manager of its own to ask.
const dualDefaultBlockSize uint32 = 1 << 16

// secondaryWriteHandle adapts an io.WriteCloser to meta.SecondaryWriteHandle
// and mirrors the final length back into the metadata store on close.
type secondaryWriteHandle struct {
	io.WriteCloser
	store  *Store
	fileId ids.FileId
	length uint64
}

func (h *secondaryWriteHandle) Write(p []byte) (int, error) {
	n, err := h.WriteCloser.Write(p)
	h.length += uint64(n)
	return n, err
}

func (h *secondaryWriteHandle) Close() error {
	err := h.WriteCloser.Close()
	if err == nil {
		_ = h.store.updateLength(h.fileId, h.length)
	}
	return err
}

// updateLength is dual-mode plumbing, not part of the external Manager
// contract: it patches in the byte count a secondary write accumulated,
// since the secondary FS (not the core) is the source of truth for it in
// dual modes.
func (s *Store) updateLength(id ids.FileId, length uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("updateLength: no such id %s", id)
	}
	info.Length = length
	return nil
}

func (d *SecondaryDelegate) ensureFile(ctx context.Context, p string, props map[string]string) (FileInfo, error) {
	id, err := d.store.FileId(ctx, p)
	if err != nil {
		return FileInfo{}, err
	}
	if id != ids.Nil {
		info, _, err := d.store.Info(ctx, id)
		return info, err
	}

	segs := splitPath(p)
	if len(segs) == 0 {
		return FileInfo{}, fmt.Errorf("ensureFile: %q has no parent", p)
	}
	parentPath := "/" + joinSegs(segs[:len(segs)-1])
	parentId, err := d.store.FileId(ctx, parentPath)
	if err != nil {
		return FileInfo{}, err
	}
	if parentId == ids.Nil {
		return FileInfo{}, fmt.Errorf("ensureFile: parent of %q does not exist", p)
	}

	info := NewFileInfo(ids.New(), dualDefaultBlockSize, nil, false, props)
	_, _, err = d.store.PutIfAbsent(ctx, parentId, segs[len(segs)-1], info)
	if err != nil {
		return FileInfo{}, err
	}
	return info, nil
}

func joinSegs(segs []string) string {
	out := ""
	for i, s := range segs {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}

func (d *SecondaryDelegate) Create(ctx context.Context, p string, overwrite bool, props map[string]string) (FileInfo, SecondaryWriteHandle, error) {
	if overwrite {
		_ = d.fs.Remove(p, false)
	} else if exists, _ := d.fs.Exists(ctx, p); exists {
		return FileInfo{}, nil, fmt.Errorf("Create: %q already exists in secondary FS", p)
	}

	info, err := d.ensureFile(ctx, p, props)
	if err != nil {
		return FileInfo{}, nil, err
	}

	w, err := d.fs.OpenWriter(p, false)
	if err != nil {
		return FileInfo{}, nil, err
	}
	return info, &secondaryWriteHandle{WriteCloser: w, store: d.store, fileId: info.Id}, nil
}

func (d *SecondaryDelegate) Append(ctx context.Context, p string, create bool, props map[string]string) (FileInfo, SecondaryWriteHandle, error) {
	exists, err := d.fs.Exists(ctx, p)
	if err != nil {
		return FileInfo{}, nil, err
	}
	if !exists && !create {
		return FileInfo{}, nil, fmt.Errorf("Append: %q does not exist", p)
	}

	info, err := d.ensureFile(ctx, p, props)
	if err != nil {
		return FileInfo{}, nil, err
	}

	w, err := d.fs.OpenWriter(p, true)
	if err != nil {
		return FileInfo{}, nil, err
	}
	return info, &secondaryWriteHandle{WriteCloser: w, store: d.store, fileId: info.Id, length: info.Length}, nil
}

func (d *SecondaryDelegate) Delete(ctx context.Context, p string, recursive bool) (bool, error) {
	if err := d.fs.Remove(p, recursive); err != nil {
		return false, err
	}
	id, err := d.store.FileId(ctx, p)
	if err != nil {
		return false, err
	}
	if id == ids.Nil {
		return true, nil
	}
	desc, ok, err := resolveDescForStore(ctx, d.store, p)
	if err != nil || !ok {
		return true, err
	}
	if desc.parentId == nil {
		return true, nil
	}
	if recursive {
		_, err = d.store.SoftDelete(ctx, desc.parentId, &desc.name, desc.id)
	} else {
		err = d.store.RemoveIfEmpty(ctx, *desc.parentId, desc.name, desc.id, p, false)
	}
	return err == nil, err
}

func (d *SecondaryDelegate) Update(ctx context.Context, p string, props map[string]string) (FileInfo, error) {
	id, err := d.store.FileId(ctx, p)
	if err != nil {
		return FileInfo{}, err
	}
	if id == ids.Nil {
		return FileInfo{}, fmt.Errorf("Update: %q does not exist", p)
	}
	if err := d.store.UpdateProperties(ctx, id, props); err != nil {
		return FileInfo{}, err
	}
	info, _, err := d.store.Info(ctx, id)
	return info, err
}

func (d *SecondaryDelegate) Rename(ctx context.Context, src, dest string) error {
	if err := d.fs.Rename(ctx, src, dest); err != nil {
		return err
	}
	desc, ok, err := resolveDescForStore(ctx, d.store, src)
	if err != nil {
		return err
	}
	if !ok || desc.parentId == nil {
		return nil
	}

	destSegs := splitPath(dest)
	destParentPath := "/" + joinSegs(destSegs[:len(destSegs)-1])
	destParentId, err := d.store.FileId(ctx, destParentPath)
	if err != nil {
		return err
	}
	if destParentId == ids.Nil {
		return fmt.Errorf("Rename: destination parent %q does not exist", destParentPath)
	}
	return d.store.Move(ctx, desc.id, desc.name, *desc.parentId, destSegs[len(destSegs)-1], destParentId)
}

type descForStore struct {
	parentId *ids.FileId
	name     string
	id       ids.FileId
}

func resolveDescForStore(ctx context.Context, s *Store, p string) (descForStore, bool, error) {
	segs := splitPath(p)
	if len(segs) == 0 {
		return descForStore{}, false, nil
	}
	parentPath := "/" + joinSegs(segs[:len(segs)-1])
	parentId, err := s.FileId(ctx, parentPath)
	if err != nil || parentId == ids.Nil {
		return descForStore{}, false, err
	}
	id, err := s.FileId(ctx, p)
	if err != nil || id == ids.Nil {
		return descForStore{}, false, err
	}
	return descForStore{parentId: &parentId, name: segs[len(segs)-1], id: id}, true, nil
}
