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

// Package igfs implements the IGFS coordinator core: mode-aware dispatch
// over a metadata manager and an optional secondary file system, secondary
// writes ordered per path, busy-section shutdown gating, and the metrics
// and cluster-wide delete-completion protocols layered on top.
package igfs

import (
	"context"

	"github.com/igfs-project/igfs/cluster"
	"github.com/igfs-project/igfs/data"
	"github.com/igfs-project/igfs/events"
	"github.com/igfs-project/igfs/ids"
	"github.com/igfs-project/igfs/igfserrs"
	"github.com/igfs-project/igfs/meta"
	"github.com/igfs-project/igfs/secondary"
)

// Config bundles everything New needs beyond the core collaborators
// (metadata, dataMgr) that every deployment must supply.
type Config struct {
	// Secondary is the optional secondary FS backing PROXY/DUAL_* paths.
	// nil disables all non-PRIMARY modes.
	Secondary secondary.FS

	DefaultMode      Mode
	ModePrefixes     map[string]Mode
	Eviction         EvictionPolicy
	Bus              events.Bus
	PrefetchBlocks   int
	SequentialThresh int

	Discovery cluster.DiscoveryService
	Messaging cluster.Messaging
	Compute   cluster.ComputeService

	LocalNodeId string
}

// Igfs is the public façade: every method brackets a MetadataCoordinator
// dispatch with BusyLifecycle.Enter/Leave, giving a
// PublicAPI -> BusyLifecycle -> ModeResolver -> MetadataCoordinator control
// flow.
type Igfs struct {
	busy        *BusyLifecycle
	modes       *ModeResolver
	writers     *WriterRegistry
	streams     *StreamFactory
	coordinator *MetadataCoordinator
	metrics     *AffinityAndMetrics
	format      *FormatProtocol
}

// New wires every collaborator together and registers the writer
// registry's drain with the busy lifecycle.
func New(ctx context.Context, metadata meta.Manager, dataMgr data.Manager, cfg Config) (*Igfs, error) {
	hasSecondary := cfg.Secondary != nil
	modes, err := NewModeResolver(cfg.DefaultMode, cfg.ModePrefixes, hasSecondary)
	if err != nil {
		return nil, err
	}

	bus := cfg.Bus
	if bus == nil {
		bus = events.NopBus{}
	}

	var compute cluster.ComputeService = cfg.Compute
	metricsImpl := NewAffinityAndMetrics(dataMgr, cfg.Secondary, metadata, compute, cfg.LocalNodeId, bus, nil)

	writers := NewWriterRegistry()
	streams := NewStreamFactory(dataMgr, cfg.PrefetchBlocks, cfg.SequentialThresh)
	coordinator := NewMetadataCoordinator(metadata, dataMgr, cfg.Secondary, modes, writers, streams, cfg.Eviction, metricsImpl)

	busy := NewBusyLifecycle(metadata, dataMgr)
	busy.RegisterDrain(writers.CancelAll)

	var format *FormatProtocol
	if cfg.Discovery != nil && cfg.Messaging != nil {
		format = NewFormatProtocol(metadata, cfg.Messaging, cfg.Discovery)
	}

	return &Igfs{
		busy:        busy,
		modes:       modes,
		writers:     writers,
		streams:     streams,
		coordinator: coordinator,
		metrics:     metricsImpl,
		format:      format,
	}, nil
}

// Shutdown blocks new operations and drains in-flight ones, then releases
// the format protocol's subscriptions, if any.
func (i *Igfs) Shutdown(ctx context.Context) error {
	err := i.busy.Block(ctx)
	if i.format != nil {
		i.format.Close()
	}
	return err
}

func (i *Igfs) enter(ctx context.Context) error {
	return i.busy.Enter(ctx)
}

func (i *Igfs) Exists(ctx context.Context, path string) (bool, error) {
	if err := i.enter(ctx); err != nil {
		return false, err
	}
	defer i.busy.Leave()
	return i.coordinator.Exists(ctx, path)
}

func (i *Igfs) Info(ctx context.Context, path string) (*FileImpl, bool, error) {
	if err := i.enter(ctx); err != nil {
		return nil, false, err
	}
	defer i.busy.Leave()
	return i.coordinator.Info(ctx, path)
}

func (i *Igfs) Mkdirs(ctx context.Context, path string, props map[string]string) error {
	if err := i.enter(ctx); err != nil {
		return err
	}
	defer i.busy.Leave()
	return i.coordinator.Mkdirs(ctx, path, props)
}

func (i *Igfs) Create(ctx context.Context, path string, bufSize int, overwrite bool, affinityKey *ids.FileId, props map[string]string) (*WriteStream, error) {
	if err := i.enter(ctx); err != nil {
		return nil, err
	}
	defer i.busy.Leave()
	return i.coordinator.Create(ctx, path, bufSize, overwrite, affinityKey, props)
}

func (i *Igfs) Append(ctx context.Context, path string, bufSize int, create bool, props map[string]string) (*WriteStream, error) {
	if err := i.enter(ctx); err != nil {
		return nil, err
	}
	defer i.busy.Leave()
	return i.coordinator.Append(ctx, path, bufSize, create, props)
}

// OpenRead opens a read stream over an existing file at path. It is not
// dispatched through MetadataCoordinator directly since reading requires no
// metadata mutation; it resolves the file's info the same way Info does
// and then builds a stream over it.
func (i *Igfs) OpenRead(ctx context.Context, path string) (*ReadStream, error) {
	if err := i.enter(ctx); err != nil {
		return nil, err
	}
	defer i.busy.Leave()

	file, ok, err := i.coordinator.Info(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, igfserrs.New(igfserrs.FileNotFound, "OpenRead", path)
	}
	if file.Info.IsDirectory {
		return nil, igfserrs.New(igfserrs.InvalidPath, "OpenRead", path)
	}
	return i.streams.NewReadStream(ctx, path, file.Info, i.metrics), nil
}

func (i *Igfs) Rename(ctx context.Context, src, dest string) error {
	if err := i.enter(ctx); err != nil {
		return err
	}
	defer i.busy.Leave()
	return i.coordinator.Rename(ctx, src, dest)
}

func (i *Igfs) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	if err := i.enter(ctx); err != nil {
		return false, err
	}
	defer i.busy.Leave()
	return i.coordinator.Delete(ctx, path, recursive)
}

func (i *Igfs) Update(ctx context.Context, path string, props map[string]string) error {
	if err := i.enter(ctx); err != nil {
		return err
	}
	defer i.busy.Leave()
	return i.coordinator.Update(ctx, path, props)
}

func (i *Igfs) SetTimes(ctx context.Context, path string, accessTime, modificationTime int64) error {
	if err := i.enter(ctx); err != nil {
		return err
	}
	defer i.busy.Leave()
	return i.coordinator.SetTimes(ctx, path, accessTime, modificationTime)
}

func (i *Igfs) ListPaths(ctx context.Context, path string) ([]string, error) {
	if err := i.enter(ctx); err != nil {
		return nil, err
	}
	defer i.busy.Leave()
	return i.coordinator.ListPaths(ctx, path)
}

func (i *Igfs) ListFiles(ctx context.Context, path string) ([]string, error) {
	if err := i.enter(ctx); err != nil {
		return nil, err
	}
	defer i.busy.Leave()
	return i.coordinator.ListFiles(ctx, path)
}

func (i *Igfs) Affinity(ctx context.Context, path string, start, length int64, maxLen uint64) ([]data.AffinityBlock, error) {
	if err := i.enter(ctx); err != nil {
		return nil, err
	}
	defer i.busy.Leave()
	return i.coordinator.Affinity(ctx, path, start, length, maxLen)
}

// Metrics reports the local-node metrics snapshot.
func (i *Igfs) Metrics(ctx context.Context) (Metrics, error) {
	if err := i.enter(ctx); err != nil {
		return Metrics{}, err
	}
	defer i.busy.Leave()
	return i.metrics.Metrics(ctx)
}

// GlobalSpace reports the cluster-wide space reduction.
func (i *Igfs) GlobalSpace(ctx context.Context) (GlobalSpace, error) {
	if err := i.enter(ctx); err != nil {
		return GlobalSpace{}, err
	}
	defer i.busy.Leave()
	return i.metrics.GlobalSpace(ctx)
}

// Format soft-deletes the whole tree and waits for cluster-wide
// confirmation of the resulting purges. It requires a FormatProtocol,
// which in turn requires Discovery and Messaging to have been configured.
func (i *Igfs) Format(ctx context.Context) error {
	if i.format == nil {
		return igfserrs.New(igfserrs.IllegalState, "Format", "")
	}
	if err := i.enter(ctx); err != nil {
		return err
	}
	defer i.busy.Leave()
	return i.format.Format(ctx)
}
