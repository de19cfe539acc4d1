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

// Package data defines the DataManager contract: block placement, affinity
// and space accounting for file content. The block store itself is an
// external collaborator; this package is the client-facing interface plus
// an in-memory reference implementation.
package data

import (
	"context"
	"sync"

	"github.com/igfs-project/igfs/ids"
	"github.com/igfs-project/igfs/meta"
)

// AffinityBlock names one block of a file and the node group holding it.
type AffinityBlock struct {
	Start    uint64
	Length   uint64
	NodeKeys []ids.FileId
}

// Manager is the external data-manager contract.
type Manager interface {
	// Affinity returns the blocks of info covering [start, start+length),
	// capped so that no returned block exceeds maxLen bytes (0 means
	// unbounded).
	Affinity(ctx context.Context, info meta.FileInfo, start, length uint64, maxLen uint64) ([]AffinityBlock, error)

	// GroupBlockSize is the default block size assigned to new files.
	GroupBlockSize() uint32

	// SpaceSize is the local node's currently used space, in bytes.
	SpaceSize(ctx context.Context) (uint64, error)

	// MaxSpaceSize is the local node's configured space ceiling, in bytes.
	// 0 means unbounded.
	MaxSpaceSize() uint64

	// NextAffinityKey mints an affinity key for a newly created file with no
	// caller-supplied key.
	NextAffinityKey() ids.FileId

	// AwaitInit blocks until the manager is ready to serve requests.
	AwaitInit(ctx context.Context) error
}

// InMemory is a reference Manager backed by a process-local byte store,
// standing in for a clustered block cache.
type InMemory struct {
	blockSize   uint32
	maxSpace    uint64
	mu          sync.Mutex
	usedBytes   uint64
	affinityGen uint64
}

var _ Manager = (*InMemory)(nil)

// NewInMemory builds a Manager with the given default block size (bytes)
// and space ceiling (0 for unbounded).
func NewInMemory(blockSize uint32, maxSpace uint64) *InMemory {
	return &InMemory{blockSize: blockSize, maxSpace: maxSpace}
}

func (m *InMemory) AwaitInit(ctx context.Context) error {
	return nil
}

func (m *InMemory) GroupBlockSize() uint32 {
	return m.blockSize
}

func (m *InMemory) MaxSpaceSize() uint64 {
	return m.maxSpace
}

func (m *InMemory) SpaceSize(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usedBytes, nil
}

// Reserve accounts for newly written bytes. The stream layer does not call
// it; it is not part of the external DataManager contract but kept
// alongside it since both are about the same local accounting state.
func (m *InMemory) Reserve(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usedBytes += n
}

// Release accounts for bytes freed by a delete.
func (m *InMemory) Release(n uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > m.usedBytes {
		m.usedBytes = 0
		return
	}
	m.usedBytes -= n
}

func (m *InMemory) NextAffinityKey() ids.FileId {
	return ids.New()
}

func (m *InMemory) Affinity(ctx context.Context, info meta.FileInfo, start, length uint64, maxLen uint64) ([]AffinityBlock, error) {
	blockSize := uint64(info.BlockSize)
	if blockSize == 0 {
		blockSize = uint64(m.blockSize)
	}
	cap := maxLen
	if cap == 0 {
		cap = length
	}

	var blocks []AffinityBlock
	key := info.Id
	if info.AffinityKey != nil {
		key = *info.AffinityKey
	}

	end := start + length
	for off := start; off < end; {
		blockStart := (off / blockSize) * blockSize
		blockEnd := blockStart + blockSize
		if blockEnd > end {
			blockEnd = end
		}
		segLen := blockEnd - off
		if cap > 0 && segLen > cap {
			segLen = cap
		}
		blocks = append(blocks, AffinityBlock{
			Start:    off,
			Length:   segLen,
			NodeKeys: []ids.FileId{key},
		})
		off += segLen
	}
	return blocks, nil
}
