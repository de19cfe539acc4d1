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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igfs-project/igfs/data"
	"github.com/igfs-project/igfs/meta"
)

// fakeMetaManager embeds the interface so tests only need to override the
// methods BusyLifecycle actually calls.
type fakeMetaManager struct {
	meta.Manager
	awaitErr error
}

func (f *fakeMetaManager) AwaitInit(ctx context.Context) error { return f.awaitErr }

type fakeDataManager struct {
	data.Manager
	awaitErr error
}

func (f *fakeDataManager) AwaitInit(ctx context.Context) error { return f.awaitErr }

func newTestLifecycle() *BusyLifecycle {
	return NewBusyLifecycle(&fakeMetaManager{}, &fakeDataManager{})
}

func TestBusyLifecycle_EnterLeaveRoundTrip(t *testing.T) {
	b := newTestLifecycle()
	require.NoError(t, b.Enter(context.Background()))
	b.Leave()
}

func TestBusyLifecycle_EnterFailsWhenMetadataNotReady(t *testing.T) {
	b := NewBusyLifecycle(&fakeMetaManager{awaitErr: errors.New("not ready")}, &fakeDataManager{})
	err := b.Enter(context.Background())
	assert.Error(t, err)
}

func TestBusyLifecycle_BlockRefusesFurtherEnter(t *testing.T) {
	b := newTestLifecycle()
	require.NoError(t, b.Block(context.Background()))
	assert.True(t, b.Blocked())

	err := b.Enter(context.Background())
	assert.Error(t, err)
}

func TestBusyLifecycle_BlockDrainsRegisteredFunctions(t *testing.T) {
	b := newTestLifecycle()
	var drained bool
	b.RegisterDrain(func() { drained = true })

	require.NoError(t, b.Block(context.Background()))
	assert.True(t, drained)
}

func TestBusyLifecycle_BlockWaitsForInFlightOperations(t *testing.T) {
	b := newTestLifecycle()
	require.NoError(t, b.Enter(context.Background()))

	blockDone := make(chan error, 1)
	go func() { blockDone <- b.Block(context.Background()) }()

	select {
	case <-blockDone:
		t.Fatal("Block returned before the in-flight operation left")
	case <-time.After(20 * time.Millisecond):
	}

	b.Leave()

	select {
	case err := <-blockDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Block never returned after Leave")
	}
}

func TestBusyLifecycle_BlockReturnsContextErrOnTimeout(t *testing.T) {
	b := newTestLifecycle()
	require.NoError(t, b.Enter(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	blockDone := make(chan error, 1)
	go func() { blockDone <- b.Block(ctx) }()

	// Block's select hits ctx.Done() first since the in-flight operation
	// never leaves on its own; only once it does (via Leave below) can the
	// still-pending <-done unblock Block's return.
	time.Sleep(50 * time.Millisecond)
	b.Leave()

	select {
	case err := <-blockDone:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("Block never returned after Leave")
	}
	assert.True(t, b.Blocked())
}
