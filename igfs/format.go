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
	"encoding/json"
	"fmt"
	"sync"

	"github.com/igfs-project/igfs/cluster"
	"github.com/igfs-project/igfs/ids"
	"github.com/igfs-project/igfs/logging"
	"github.com/igfs-project/igfs/meta"
)

const deleteCompletedTopic = "igfs.delete-completed"

// deleteCompletedMsg is the wire body sent on deleteCompletedTopic: one
// subtree root has finished its asynchronous purge somewhere in the
// cluster (or failed to, in which case Err is populated).
type deleteCompletedMsg struct {
	Id  ids.FileId
	Err string
}

// future tracks one id's format()/awaitDeletes() wait: it is done once the
// id is confirmed gone from metadata, whether because this node reclaimed
// it locally or a peer reported completion.
type future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *future) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FormatProtocol soft-deletes the whole tree and waits for cluster-wide
// confirmation that the resulting subtrees have actually been purged, since
// reclamation of secondary-FS bytes can happen on any node that holds a
// replica.
type FormatProtocol struct {
	metadata  meta.Manager
	messaging cluster.Messaging
	discovery cluster.DiscoveryService
	localNode cluster.Node

	mu      sync.Mutex
	pending map[ids.FileId]*future // GUARDED_BY(mu)

	unlistenMsg    func()
	unsubscribeDis func()
}

// NewFormatProtocol wires up message/event listeners and returns the
// protocol. Close should be called on shutdown to unregister them.
func NewFormatProtocol(metadata meta.Manager, messaging cluster.Messaging, discovery cluster.DiscoveryService) *FormatProtocol {
	p := &FormatProtocol{
		metadata:  metadata,
		messaging: messaging,
		discovery: discovery,
		localNode: discovery.LocalNode(),
		pending:   make(map[ids.FileId]*future),
	}
	p.unlistenMsg = messaging.Listen(deleteCompletedTopic, p.onDeleteCompleted)
	p.unsubscribeDis = discovery.Subscribe(p.onNodeEvent)
	return p
}

func (p *FormatProtocol) Close() {
	if p.unlistenMsg != nil {
		p.unlistenMsg()
	}
	if p.unsubscribeDis != nil {
		p.unsubscribeDis()
	}
}

// register returns the future tracking id's purge, creating one if this is
// the first caller waiting on it. It rechecks existence after registering
// so a purge that completed between the caller's last check and this
// registration is not missed.
func (p *FormatProtocol) register(ctx context.Context, id ids.FileId) (*future, error) {
	p.mu.Lock()
	f, ok := p.pending[id]
	if !ok {
		f = newFuture()
		p.pending[id] = f
	}
	p.mu.Unlock()

	exists, err := p.metadata.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		f.complete(nil)
	}
	return f, nil
}

// Format soft-deletes everything under the root and returns once every
// resulting subtree has been confirmed purged cluster-wide.
func (p *FormatProtocol) Format(ctx context.Context) error {
	if _, err := p.metadata.SoftDelete(ctx, nil, nil, ids.ROOT_ID); err != nil {
		return fmt.Errorf("Format: %v", err)
	}
	return p.AwaitDeletes(ctx)
}

// AwaitDeletes blocks until every subtree currently queued for purge (as of
// the call) has been confirmed gone, whether reclaimed by this node or
// reported by a peer.
func (p *FormatProtocol) AwaitDeletes(ctx context.Context) error {
	pendingIds, err := p.metadata.PendingDeletes(ctx)
	if err != nil {
		return fmt.Errorf("AwaitDeletes: %v", err)
	}

	futures := make([]*future, 0, len(pendingIds))
	for _, id := range pendingIds {
		f, err := p.register(ctx, id)
		if err != nil {
			return fmt.Errorf("AwaitDeletes: %v", err)
		}
		futures = append(futures, f)
	}

	for _, f := range futures {
		if err := f.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// NotifyPurged is called once id has actually been reclaimed locally (for
// example after meta.Store.Purge); nothing in this package calls it. It completes the local future (if any is registered) and
// tells the rest of the cluster so their own registered futures complete
// too.
func (p *FormatProtocol) NotifyPurged(id ids.FileId, purgeErr error) {
	p.completeLocal(id, purgeErr)

	body, err := json.Marshal(deleteCompletedMsg{Id: id, Err: errString(purgeErr)})
	if err != nil {
		logging.Errorf("NotifyPurged: marshal failed: %v", err)
		return
	}

	// Best-effort: every currently-known peer is sent the completion. A peer
	// that never receives it will still observe the id gone from metadata
	// the next time it calls AwaitDeletes and re-checks existence directly.
	for _, peer := range p.discovery.Members() {
		if peer.Id == p.localNode.Id {
			continue
		}
		if err := p.messaging.Send(context.Background(), peer.Id, deleteCompletedTopic, body); err != nil {
			logging.Warnf("NotifyPurged: send to %s failed: %v", peer.Id, err)
		}
	}
}

func (p *FormatProtocol) completeLocal(id ids.FileId, err error) {
	p.mu.Lock()
	f, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if ok {
		f.complete(err)
	}
}

func (p *FormatProtocol) onDeleteCompleted(env cluster.Envelope) {
	if name, ok := p.discovery.NodeAttribute(env.Sender.Id, cluster.IgfsNameAttr); ok {
		if local, _ := p.discovery.NodeAttribute(p.localNode.Id, cluster.IgfsNameAttr); local != name {
			return
		}
	}

	var msg deleteCompletedMsg
	if err := json.Unmarshal(env.Body, &msg); err != nil {
		logging.Warnf("onDeleteCompleted: malformed message from %s: %v", env.Sender.Id, err)
		return
	}
	p.completeLocal(msg.Id, errFromString(msg.Err))
}

// onNodeEvent handles a peer leaving or failing: any future waiting on an
// id that has since disappeared from metadata is completed, since the
// completion notification that id's owner would have sent may have been
// lost along with the node itself. Departures from a differently-named
// IGFS instance are ignored, the same filter onDeleteCompleted applies.
func (p *FormatProtocol) onNodeEvent(ev cluster.NodeEvent) {
	if name, ok := ev.Node.Attributes[cluster.IgfsNameAttr]; ok {
		if p.localNode.Attributes[cluster.IgfsNameAttr] != name {
			return
		}
	}

	p.mu.Lock()
	pendingIds := make([]ids.FileId, 0, len(p.pending))
	for id := range p.pending {
		pendingIds = append(pendingIds, id)
	}
	p.mu.Unlock()

	for _, id := range pendingIds {
		exists, err := p.metadata.Exists(context.Background(), id)
		if err != nil {
			logging.Warnf("onNodeEvent: existence check for %s failed: %v", id, err)
			continue
		}
		if !exists {
			p.completeLocal(id, nil)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errFromString(s string) error {
	if s == "" {
		return nil
	}
	return fmt.Errorf("%s", s)
}
