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
	"sync/atomic"

	"github.com/igfs-project/igfs/data"
	"github.com/igfs-project/igfs/events"
	"github.com/igfs-project/igfs/meta"
)

// coordinatorHandle is the non-owning interface streams hold back to the
// coordinator: streams emit through it and update metrics, but never own
// it.
type coordinatorHandle interface {
	emit(e events.Event)
	localNode() string
	incReadOpen(delta int64)
	incWriteOpen(delta int64)
	addReadBytes(n int64)
	addWriteBytes(n int64)
}

// ReadStream is a close-once read handle over a file's data, backed by the
// data manager.
type ReadStream struct {
	path    string
	info    meta.FileInfo
	dataMgr data.Manager
	handle  coordinatorHandle

	closed    atomic.Bool
	bytesRead atomic.Int64

	prefetchBlocks    int
	sequentialThresh  int
	lastReadOffset    int64
	sequentialStreak  int
}

// StreamFactory constructs event-aware read/write streams, configured with
// read-ahead and sequential-detection tuning.
type StreamFactory struct {
	dataMgr           data.Manager
	prefetchBlocks    int
	sequentialThresh  int
}

// NewStreamFactory builds a StreamFactory. prefetchBlocks is the number of
// blocks to read ahead once a read stream crosses sequentialThresh
// sequential reads; both are left to the data manager's tuning.
func NewStreamFactory(dataMgr data.Manager, prefetchBlocks, sequentialThresh int) *StreamFactory {
	return &StreamFactory{dataMgr: dataMgr, prefetchBlocks: prefetchBlocks, sequentialThresh: sequentialThresh}
}

// NewReadStream opens a read stream over info, recording opened-for-read
// and incrementing the read-open counter.
func (f *StreamFactory) NewReadStream(ctx context.Context, path string, info meta.FileInfo, h coordinatorHandle) *ReadStream {
	rs := &ReadStream{
		path:             path,
		info:             info,
		dataMgr:          f.dataMgr,
		handle:           h,
		prefetchBlocks:   f.prefetchBlocks,
		sequentialThresh: f.sequentialThresh,
		lastReadOffset:   -1,
	}
	h.incReadOpen(1)
	h.emit(events.Event{Kind: events.FileOpenedRead, Path: path, Node: h.localNode()})
	return rs
}

// Affinity returns the blocks backing [start, start+length) of the
// stream's file, honoring the prefetch/sequential-read tuning: once reads
// have been sequential for sequentialThresh calls, maxLen is widened to
// prefetchBlocks worth of blocks so the caller can issue one larger read
// instead of many small ones.
func (rs *ReadStream) Affinity(ctx context.Context, start uint64, length uint64) ([]data.AffinityBlock, error) {
	maxLen := uint64(0)
	if rs.lastReadOffset >= 0 && uint64(rs.lastReadOffset) == start {
		rs.sequentialStreak++
	} else {
		rs.sequentialStreak = 0
	}
	rs.lastReadOffset = int64(start + length)

	if rs.sequentialStreak >= rs.sequentialThresh && rs.prefetchBlocks > 0 {
		maxLen = uint64(rs.prefetchBlocks) * uint64(rs.info.BlockSize)
	}

	blocks, err := rs.dataMgr.Affinity(ctx, rs.info, start, length, maxLen)
	if err == nil {
		rs.bytesRead.Add(int64(length))
	}
	return blocks, err
}

// Close is idempotent: only the first call records closed-for-read and
// decrements the counter.
func (rs *ReadStream) Close() error {
	if !rs.closed.CompareAndSwap(false, true) {
		return nil
	}
	rs.handle.incReadOpen(-1)
	rs.handle.addReadBytes(rs.bytesRead.Load())
	rs.handle.emit(events.Event{Kind: events.FileClosedRead, Path: rs.path, Node: rs.handle.localNode(), Bytes: rs.bytesRead.Load()})
	return nil
}

// WriteStream is a close-once write handle over a file's data, optionally
// paired with a Batch that must be awaited before the write is considered
// durable in dual modes.
type WriteStream struct {
	path    string
	info    meta.FileInfo
	batch   *Batch
	handle  coordinatorHandle

	closed       atomic.Bool
	bytesWritten atomic.Int64
}

// NewWriteStream opens a write stream over info, optionally paired with
// batch (set only in dual modes). It records opened-for-write and
// increments the write-open counter.
func (f *StreamFactory) NewWriteStream(path string, info meta.FileInfo, batch *Batch, h coordinatorHandle) *WriteStream {
	ws := &WriteStream{path: path, info: info, batch: batch, handle: h}
	h.incWriteOpen(1)
	h.emit(events.Event{Kind: events.FileOpenedWrite, Path: path, Node: h.localNode()})
	return ws
}

// RecordWrite accounts for n freshly written bytes. Actual block placement
// happens through the data manager elsewhere; this only tracks the total
// for the eventual closed-for-write event and metrics.
func (ws *WriteStream) RecordWrite(n int64) {
	ws.bytesWritten.Add(n)
}

// Batch returns the paired secondary-FS batch, or nil in PRIMARY mode.
func (ws *WriteStream) Batch() *Batch {
	return ws.batch
}

// Close is idempotent: only the first call records closed-for-write and
// decrements the counter.
func (ws *WriteStream) Close() error {
	if !ws.closed.CompareAndSwap(false, true) {
		return nil
	}
	ws.handle.incWriteOpen(-1)
	ws.handle.addWriteBytes(ws.bytesWritten.Load())
	ws.handle.emit(events.Event{Kind: events.FileClosedWrite, Path: ws.path, Node: ws.handle.localNode(), Bytes: ws.bytesWritten.Load()})
	return nil
}
