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
	"sync"
	"sync/atomic"

	"github.com/igfs-project/igfs/common"
	"github.com/igfs-project/igfs/igfserrs"
	"github.com/igfs-project/igfs/logging"
	"github.com/igfs-project/igfs/meta"
)

// BatchState is the lifecycle of one queued secondary-FS write.
type BatchState int32

const (
	BatchOpen BatchState = iota
	BatchSubmitted
	BatchFinished
)

// Batch is one ordered unit of secondary-FS work for a path: flushing and
// closing the paired output stream a dual create/append obtained from the
// metadata manager.
type Batch struct {
	Path   string
	Output meta.SecondaryWriteHandle

	state atomic.Int32
	done  chan struct{}
	err   error

	work func(meta.SecondaryWriteHandle) error
}

func newBatch(path string, output meta.SecondaryWriteHandle, work func(meta.SecondaryWriteHandle) error) *Batch {
	return &Batch{Path: path, Output: output, work: work, done: make(chan struct{})}
}

// State returns the batch's current lifecycle state.
func (b *Batch) State() BatchState {
	return BatchState(b.state.Load())
}

// Wait blocks until the batch finishes, returning the error its work
// function produced, if any.
func (b *Batch) Wait() error {
	<-b.done
	return b.err
}

func (b *Batch) run() {
	b.state.Store(int32(BatchSubmitted))
	if b.work != nil {
		b.err = b.work(b.Output)
	}
	b.state.Store(int32(BatchFinished))
	close(b.done)
}

// worker owns the ordered queue of batches for exactly one path. It runs a
// single goroutine for its entire lifetime and self-retires once its queue
// drains: workers are created lazily and torn down once idle.
type worker struct {
	path string

	mu sync.Mutex
	// GUARDED_BY(mu)
	queue common.Queue[*Batch]
	// GUARDED_BY(mu)
	retired bool
	// GUARDED_BY(mu)
	current *Batch

	cancelled atomic.Bool
}

func newWorker(path string) *worker {
	return &worker{path: path, queue: common.NewLinkedListQueue[*Batch]()}
}

// tryAttach pushes b onto the worker's queue, returning false if the
// worker has already retired (the caller must then race to install a
// fresh worker).
func (w *worker) tryAttach(b *Batch) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retired {
		return false
	}
	w.queue.Push(b)
	return true
}

// awaitCurrent blocks until the batch presently being executed (if any)
// finishes, returning its error. It does not wait for batches still queued
// behind it: only the currently in-flight batch is awaited.
func (w *worker) awaitCurrent() error {
	w.mu.Lock()
	cur := w.current
	w.mu.Unlock()
	if cur == nil {
		return nil
	}
	return cur.Wait()
}

// cancel aborts processing after the in-flight batch, used by
// BusyLifecycle.Block to drain workers without waiting for their entire
// queues.
func (w *worker) cancel() {
	w.cancelled.Store(true)
}

func (w *worker) run(reg *WriterRegistry) {
	for {
		if w.cancelled.Load() {
			return
		}

		w.mu.Lock()
		if w.queue.IsEmpty() {
			w.retired = true
			w.mu.Unlock()
			reg.workers.CompareAndDelete(w.path, w)
			return
		}
		batch := w.queue.Pop()
		w.current = batch
		w.mu.Unlock()

		batch.run()

		w.mu.Lock()
		w.current = nil
		w.mu.Unlock()
	}
}

// WriterRegistry enforces at most one WriterSlot per path per process, and
// orders writes per path, via a compare-and-swap on a path-to-worker map:
// no intrinsic lock ever spans the worker's I/O.
type WriterRegistry struct {
	workers sync.Map // string -> *worker
	blocked atomic.Bool
}

// NewWriterRegistry builds an empty registry.
func NewWriterRegistry() *WriterRegistry {
	return &WriterRegistry{}
}

// Enqueue registers work to run against path's current or a freshly
// started worker, returning the Batch the caller can Wait() on.
func (r *WriterRegistry) Enqueue(path string, output meta.SecondaryWriteHandle, work func(meta.SecondaryWriteHandle) error) (*Batch, error) {
	if r.blocked.Load() {
		return nil, igfserrs.New(igfserrs.IllegalState, "Enqueue", path)
	}

	batch := newBatch(path, output, work)

	for {
		if existing, loaded := r.workers.Load(path); loaded {
			w := existing.(*worker)
			if w.tryAttach(batch) {
				return batch, nil
			}

			// w is retiring: race to install a replacement worker.
			fresh := newWorker(path)
			if r.workers.CompareAndSwap(path, existing, fresh) {
				fresh.tryAttach(batch)
				go fresh.run(r)
				return batch, nil
			}
			continue
		}

		fresh := newWorker(path)
		if actual, loaded := r.workers.LoadOrStore(path, fresh); !loaded {
			fresh.tryAttach(batch)
			go fresh.run(r)
			return batch, nil
		} else if w := actual.(*worker); w.tryAttach(batch) {
			return batch, nil
		}
		// Lost the LoadOrStore race and the winner is already retiring;
		// retry from the top.
	}
}

// Await waits for the in-flight batch, if any, of every worker whose path
// is the same as or a descendant of one of paths. Used before
// metadata-mutating operations in dual modes to preserve ordering between
// asynchronous secondary writes and the mutation that follows them.
func (r *WriterRegistry) Await(paths ...string) {
	r.workers.Range(func(key, value any) bool {
		workerPath := key.(string)
		for _, p := range paths {
			if workerPath == p || hasPathPrefix(workerPath, p) {
				logDroppedAwait(workerPath, value.(*worker).awaitCurrent())
				break
			}
		}
		return true
	})
}

// CancelAll cancels every registered worker after its in-flight batch
// completes; called by BusyLifecycle.Block during shutdown.
func (r *WriterRegistry) CancelAll() {
	r.blocked.Store(true)
	r.workers.Range(func(_, value any) bool {
		w := value.(*worker)
		w.cancel()
		w.awaitCurrent()
		return true
	})
}

func hasPathPrefix(p, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if len(p) <= len(prefix) {
		return false
	}
	return p[:len(prefix)] == prefix && p[len(prefix)] == '/'
}

// logDroppedAwait is used when a worker's batch failed while the core was
// merely waiting on it; logging and continuing here is preferred over
// failing the caller's whole operation.
func logDroppedAwait(path string, err error) {
	if err != nil {
		logging.Warnf("Await: batch for %s finished with error: %v", path, err)
	}
}
