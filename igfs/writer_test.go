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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igfs-project/igfs/meta"
)

func noopWork(_ meta.SecondaryWriteHandle) error { return nil }

func TestWriterRegistry_EnqueueRunsWork(t *testing.T) {
	r := NewWriterRegistry()

	done := make(chan struct{})
	b, err := r.Enqueue("/a/f", nil, func(meta.SecondaryWriteHandle) error {
		close(done)
		return nil
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued work never ran")
	}
	require.NoError(t, b.Wait())
}

func TestWriterRegistry_BatchesForSamePathRunInOrder(t *testing.T) {
	r := NewWriterRegistry()

	var mu sync.Mutex
	var order []int

	const n = 20
	batches := make([]*Batch, n)
	for i := 0; i < n; i++ {
		i := i
		b, err := r.Enqueue("/a/f", nil, func(meta.SecondaryWriteHandle) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		batches[i] = b
	}

	for _, b := range batches {
		require.NoError(t, b.Wait())
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, n)
	for i, v := range order {
		assert.Equal(t, i, v, "batches for the same path must run in enqueue order")
	}
}

func TestWriterRegistry_PropagatesWorkError(t *testing.T) {
	r := NewWriterRegistry()
	wantErr := errors.New("secondary write failed")

	b, err := r.Enqueue("/a/f", nil, func(meta.SecondaryWriteHandle) error {
		return wantErr
	})
	require.NoError(t, err)
	assert.ErrorIs(t, b.Wait(), wantErr)
}

func TestWriterRegistry_EnqueueRejectedAfterCancelAll(t *testing.T) {
	r := NewWriterRegistry()
	r.CancelAll()

	_, err := r.Enqueue("/a/f", nil, noopWork)
	assert.Error(t, err)
}

func TestWriterRegistry_WorkerRetiresAfterQueueDrains(t *testing.T) {
	r := NewWriterRegistry()

	b, err := r.Enqueue("/a/f", nil, noopWork)
	require.NoError(t, err)
	require.NoError(t, b.Wait())

	// Give the worker goroutine a chance to observe its empty queue and
	// retire; a fresh Enqueue afterward must still succeed via a new
	// worker.
	assert.Eventually(t, func() bool {
		_, ok := r.workers.Load("/a/f")
		return !ok
	}, time.Second, time.Millisecond)

	b2, err := r.Enqueue("/a/f", nil, noopWork)
	require.NoError(t, err)
	require.NoError(t, b2.Wait())
}

func TestHasPathPrefix(t *testing.T) {
	assert.True(t, hasPathPrefix("/a/b", "/a"))
	assert.True(t, hasPathPrefix("/a/b", "/"))
	assert.False(t, hasPathPrefix("/ab", "/a"))
	assert.False(t, hasPathPrefix("/a", "/a"))
}
