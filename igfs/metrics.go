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
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/igfs-project/igfs/clock"
	"github.com/igfs-project/igfs/cluster"
	"github.com/igfs-project/igfs/data"
	"github.com/igfs-project/igfs/events"
	"github.com/igfs-project/igfs/ids"
	"github.com/igfs-project/igfs/logging"
	"github.com/igfs-project/igfs/meta"
	"github.com/igfs-project/igfs/secondary"
)

// Metrics is the aggregate snapshot a node's metrics() operation returns.
type Metrics struct {
	LocalSpace      uint64
	MaxSpace        uint64
	SecondarySpace  int64 // -1 on failure
	DirectoryCount  int64
	FileCount       int64
	TotalLength     uint64
	ReadOpenCount   int64
	WriteOpenCount  int64
	BytesRead       int64
	BytesWritten    int64
}

// GlobalSpace is the cluster-wide reduction globalSpace() produces.
type GlobalSpace struct {
	UsedSpace uint64
	MaxSpace  uint64
	Responses []cluster.ComputeResult
}

// AffinityAndMetrics owns the local counters every stream updates and
// produces the aggregate metrics() / globalSpace() views.
// It is also where the PublicAPI façade's coordinatorHandle is
// implemented, since the counters it exposes to streams are exactly this
// component's state.
type AffinityAndMetrics struct {
	dataMgr     data.Manager
	secondary   secondary.FS
	metadata    meta.Manager
	compute     cluster.ComputeService
	localNodeId string
	bus         events.Bus
	clock       clock.Clock

	readOpen   atomic.Int64
	writeOpen  atomic.Int64
	bytesRead  atomic.Int64
	bytesWrite atomic.Int64

	secondarySpaceThrottle *logging.Throttle

	promReadOpen  prometheus.Gauge
	promWriteOpen prometheus.Gauge
	promBytesRead prometheus.Counter
	promBytesWrite prometheus.Counter
}

var _ coordinatorHandle = (*AffinityAndMetrics)(nil)

// NewAffinityAndMetrics builds the metrics component and registers its
// Prometheus collectors against reg (nil uses the default registerer).
func NewAffinityAndMetrics(dataMgr data.Manager, secondaryFS secondary.FS, metadata meta.Manager, compute cluster.ComputeService, localNodeId string, bus events.Bus, reg prometheus.Registerer) *AffinityAndMetrics {
	if bus == nil {
		bus = events.NopBus{}
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &AffinityAndMetrics{
		dataMgr:                dataMgr,
		secondary:              secondaryFS,
		metadata:               metadata,
		compute:                compute,
		localNodeId:            localNodeId,
		bus:                    bus,
		clock:                  clock.RealClock{},
		secondarySpaceThrottle: logging.NewThrottle(1, 1),
		promReadOpen:           prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "igfs", Name: "read_streams_open"}),
		promWriteOpen:          prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "igfs", Name: "write_streams_open"}),
		promBytesRead:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "igfs", Name: "bytes_read_total"}),
		promBytesWrite:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "igfs", Name: "bytes_written_total"}),
	}

	for _, c := range []prometheus.Collector{m.promReadOpen, m.promWriteOpen, m.promBytesRead, m.promBytesWrite} {
		if err := reg.Register(c); err != nil {
			logging.Warnf("NewAffinityAndMetrics: collector registration failed: %v", err)
		}
	}

	return m
}

// SetClock overrides the clock used to stamp emitted events, for tests
// that need deterministic timestamps.
func (m *AffinityAndMetrics) SetClock(c clock.Clock) {
	m.clock = c
}

// coordinatorHandle implementation, consumed by StreamFactory.

func (m *AffinityAndMetrics) emit(e events.Event) {
	if !m.bus.IsRecordable(e.Kind) {
		return
	}
	e.Node = m.localNodeId
	e.Timestamp = m.clock.Now()
	m.bus.Record(e)
}

func (m *AffinityAndMetrics) localNode() string {
	return m.localNodeId
}

func (m *AffinityAndMetrics) incReadOpen(delta int64) {
	m.readOpen.Add(delta)
	m.promReadOpen.Add(float64(delta))
}

func (m *AffinityAndMetrics) incWriteOpen(delta int64) {
	m.writeOpen.Add(delta)
	m.promWriteOpen.Add(float64(delta))
}

func (m *AffinityAndMetrics) addReadBytes(n int64) {
	m.bytesRead.Add(n)
	m.promBytesRead.Add(float64(n))
}

func (m *AffinityAndMetrics) addWriteBytes(n int64) {
	m.bytesWrite.Add(n)
	m.promBytesWrite.Add(float64(n))
}

// Metrics computes the aggregate view: local/max space from the data
// manager, secondary space (reported as -1 and logged, throttled, on
// failure), directory/file counts from a full walk, and the local counters
// every stream maintains.
func (m *AffinityAndMetrics) Metrics(ctx context.Context) (Metrics, error) {
	local, err := m.dataMgr.SpaceSize(ctx)
	if err != nil {
		return Metrics{}, err
	}

	secSpace := int64(-1)
	if m.secondary != nil {
		used, err := m.secondary.UsedSpaceSize(ctx)
		if err != nil {
			m.secondarySpaceThrottle.Warnf("Metrics: secondary space query failed: %v", err)
		} else {
			secSpace = int64(used)
		}
	}

	summary, err := summarize(ctx, m.metadata, ids.ROOT_ID)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		LocalSpace:     local,
		MaxSpace:       m.dataMgr.MaxSpaceSize(),
		SecondarySpace: secSpace,
		DirectoryCount: summary.DirectoryCount,
		FileCount:      summary.FileCount,
		TotalLength:    summary.TotalLength,
		ReadOpenCount:  m.readOpen.Load(),
		WriteOpenCount: m.writeOpen.Load(),
		BytesRead:      m.bytesRead.Load(),
		BytesWritten:   m.bytesWrite.Load(),
	}, nil
}

// GlobalSpace fans a (used, max) query out to every cluster node. A node
// that fails to respond never fails the whole call; its contribution is
// simply excluded from the sum.
func (m *AffinityAndMetrics) GlobalSpace(ctx context.Context) (GlobalSpace, error) {
	if m.compute == nil {
		return GlobalSpace{}, fmt.Errorf("GlobalSpace: no compute service configured")
	}
	results, err := m.compute.Broadcast(ctx, func(ctx context.Context) (uint64, uint64, error) {
		used, err := m.dataMgr.SpaceSize(ctx)
		if err != nil {
			return 0, 0, err
		}
		return used, m.dataMgr.MaxSpaceSize(), nil
	})
	if err != nil {
		return GlobalSpace{}, err
	}

	var total GlobalSpace
	total.Responses = results
	for _, r := range results {
		if r.Err != nil {
			logging.Warnf("GlobalSpace: node %s failed: %v", r.NodeId, r.Err)
			continue
		}
		total.UsedSpace += r.UsedSpace
		total.MaxSpace += r.MaxSpace
	}
	return total, nil
}
