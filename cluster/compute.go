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

package cluster

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LocalCompute runs the fan-out job directly on the local node and hands
// it to dial once per peer. It is the ComputeService used when no
// distributed task framework is wired, and exists so
// AffinityAndMetrics.globalSpace() has something to call even on a single
// node.
type LocalCompute struct {
	nodeId string
	peers  func() []Node
	dial   func(ctx context.Context, n Node, job func(ctx context.Context) (used, max uint64, err error)) (used, max uint64, err error)
}

var _ ComputeService = (*LocalCompute)(nil)

// NewLocalCompute builds a ComputeService that runs job against localId
// directly and, for every other peer returned by peers, via dial. dial may
// be nil if there is no remote execution path, in which case Broadcast
// still reports every peer, each with zero used/max space and a nil error.
func NewLocalCompute(localId string, peers func() []Node, dial func(ctx context.Context, n Node, job func(ctx context.Context) (used, max uint64, err error)) (used, max uint64, err error)) *LocalCompute {
	return &LocalCompute{nodeId: localId, peers: peers, dial: dial}
}

func (c *LocalCompute) Broadcast(ctx context.Context, job func(ctx context.Context) (used, max uint64, err error)) ([]ComputeResult, error) {
	var nodes []Node
	if c.peers != nil {
		nodes = c.peers()
	}

	results := make([]ComputeResult, len(nodes)+1)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		used, max, err := job(gctx)
		mu.Lock()
		results[0] = ComputeResult{NodeId: c.nodeId, UsedSpace: used, MaxSpace: max, Err: err}
		mu.Unlock()
		return nil
	})

	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			var used, max uint64
			var err error
			if c.dial != nil {
				used, max, err = c.dial(gctx, n, job)
			}
			mu.Lock()
			results[i+1] = ComputeResult{NodeId: n.Id, UsedSpace: used, MaxSpace: max, Err: err}
			mu.Unlock()
			return nil
		})
	}

	// The job never fails over: errgroup's error is always nil here since
	// every goroutine captures its own error into results instead of
	// returning it.
	_ = g.Wait()
	return results, nil
}
