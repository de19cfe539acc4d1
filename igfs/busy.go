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
	"sync"
	"sync/atomic"

	"github.com/igfs-project/igfs/data"
	"github.com/igfs-project/igfs/igfserrs"
	"github.com/igfs-project/igfs/meta"
)

type busyState int32

const (
	stateRunning busyState = iota
	stateBlocking
	stateBlocked
)

// BusyLifecycle gates every public operation against shutdown and drains
// outstanding workers when stop() is called. It uses an explicit enter/leave
// pair bracketing a critical section, generalized from a single mutex to a
// three-state machine so that enter can be permanently refused once
// draining has begun.
type BusyLifecycle struct {
	state atomic.Int32

	mu      sync.Mutex
	wg      sync.WaitGroup
	drainFn []func()

	metadata meta.Manager
	dataMgr  data.Manager
}

// NewBusyLifecycle builds a lifecycle gating operations on metadata and
// dataMgr becoming ready.
func NewBusyLifecycle(metadata meta.Manager, dataMgr data.Manager) *BusyLifecycle {
	return &BusyLifecycle{metadata: metadata, dataMgr: dataMgr}
}

// RegisterDrain records a function to run when block() drains the
// lifecycle, such as WriterRegistry.CancelAll. Must be called before
// Enter is ever invoked concurrently with Block.
func (b *BusyLifecycle) RegisterDrain(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drainFn = append(b.drainFn, fn)
}

// Enter awaits manager readiness, then admits the caller into the busy
// section iff the lifecycle is still running. Every successful Enter must
// be paired with Leave on all exit paths.
//
// LOCKS_EXCLUDED(b.mu)
func (b *BusyLifecycle) Enter(ctx context.Context) (err error) {
	if busyState(b.state.Load()) != stateRunning {
		return igfserrs.New(igfserrs.IllegalState, "Enter", "")
	}

	if err := b.metadata.AwaitInit(ctx); err != nil {
		return igfserrs.Wrap(igfserrs.IllegalState, "Enter", "", err)
	}
	if err := b.dataMgr.AwaitInit(ctx); err != nil {
		return igfserrs.Wrap(igfserrs.IllegalState, "Enter", "", err)
	}

	// Re-check after the (possibly blocking) readiness wait: block() may
	// have been invoked while we were waiting.
	if busyState(b.state.Load()) != stateRunning {
		return igfserrs.New(igfserrs.IllegalState, "Enter", "")
	}

	b.wg.Add(1)
	return nil
}

// Leave pairs with a successful Enter.
func (b *BusyLifecycle) Leave() {
	b.wg.Done()
}

// Block transitions running -> blocking -> blocked, permanently refusing
// further Enter calls, then runs every registered drain function and waits
// for in-flight operations to finish. If ctx ends first, Block still waits
// for those operations to finish and then returns ctx.Err() to the caller
// rather than swallowing it.
func (b *BusyLifecycle) Block(ctx context.Context) error {
	if !b.state.CompareAndSwap(int32(stateRunning), int32(stateBlocking)) {
		// Already blocking or blocked; nothing to do.
		return nil
	}

	b.mu.Lock()
	drains := append([]func(){}, b.drainFn...)
	b.mu.Unlock()

	for _, fn := range drains {
		fn()
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		waitErr = ctx.Err()
		<-done
	}

	b.state.Store(int32(stateBlocked))
	return waitErr
}

// Blocked reports whether the lifecycle has finished draining.
func (b *BusyLifecycle) Blocked() bool {
	return busyState(b.state.Load()) == stateBlocked
}
