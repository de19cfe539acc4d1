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
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/igfs-project/igfs/logging"
)

// leaveTimeout bounds how long Leave waits for the departure broadcast to
// propagate before shutting the local instance down regardless.
const leaveTimeout = 5 * time.Second

// Membership is a DiscoveryService and Messaging backed by a gossip-based
// membership list. Node attributes ride along as memberlist node metadata;
// messages ride the user-message channel memberlist exposes through its
// Delegate, demultiplexed locally by topic.
type Membership struct {
	ml         *memberlist.Memberlist
	attrs      map[string]string
	localId    string

	mu          sync.Mutex
	subscribers map[int]func(NodeEvent)
	nextSubId   int

	listenersMu sync.Mutex
	listeners   map[string][]func(Envelope)
}

var (
	_ DiscoveryService = (*Membership)(nil)
	_ Messaging        = (*Membership)(nil)
)

// wireMessage is the envelope actually exchanged over memberlist's
// user-message transport; Topic lets one Membership multiplex several
// logical channels (FormatProtocol's DeleteCompleted topic among them)
// over memberlist's single delegate callback.
type wireMessage struct {
	Topic  string `json:"topic"`
	Sender string `json:"sender"`
	Body   []byte `json:"body"`
}

// NewMembership joins a memberlist cluster using cfg, tagging the local
// node with attrs (typically including IgfsNameAttr).
func NewMembership(cfg *memberlist.Config, attrs map[string]string, seeds []string) (*Membership, error) {
	m := &Membership{
		attrs:       attrs,
		subscribers: make(map[int]func(NodeEvent)),
		listeners:   make(map[string][]func(Envelope)),
	}

	cfg.Delegate = (*delegate)(m)
	cfg.Events = (*eventDelegate)(m)

	ml, err := memberlist.Create(cfg)
	if err != nil {
		return nil, fmt.Errorf("NewMembership: %v", err)
	}
	m.ml = ml
	m.localId = ml.LocalNode().Name

	if len(seeds) > 0 {
		if _, err := ml.Join(seeds); err != nil {
			logging.Warnf("NewMembership: join failed: %v", err)
		}
	}

	return m, nil
}

func (m *Membership) LocalNode() Node {
	return Node{Id: m.localId, Attributes: m.attrs}
}

func (m *Membership) NodeAttribute(nodeId, key string) (string, bool) {
	for _, n := range m.ml.Members() {
		if n.Name != nodeId {
			continue
		}
		var attrs map[string]string
		if err := json.Unmarshal(n.Meta, &attrs); err != nil {
			return "", false
		}
		v, ok := attrs[key]
		return v, ok
	}
	return "", false
}

// Leave announces a graceful departure to the rest of the cluster and then
// shuts the local memberlist instance down. It is the counterpart to
// NewMembership, called on daemon shutdown.
func (m *Membership) Leave() error {
	if err := m.ml.Leave(leaveTimeout); err != nil {
		logging.Warnf("Membership.Leave: graceful leave failed: %v", err)
	}
	return m.ml.Shutdown()
}

func (m *Membership) Members() []Node {
	ml := m.ml.Members()
	out := make([]Node, 0, len(ml))
	for _, n := range ml {
		out = append(out, nodeOf(n))
	}
	return out
}

func (m *Membership) Subscribe(listener func(NodeEvent)) func() {
	m.mu.Lock()
	id := m.nextSubId
	m.nextSubId++
	m.subscribers[id] = listener
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

func (m *Membership) notify(ev NodeEvent) {
	m.mu.Lock()
	subs := make([]func(NodeEvent), 0, len(m.subscribers))
	for _, s := range m.subscribers {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		s(ev)
	}
}

func (m *Membership) Send(ctx context.Context, nodeId, topic string, body []byte) error {
	var target *memberlist.Node
	for _, n := range m.ml.Members() {
		if n.Name == nodeId {
			target = n
			break
		}
	}
	if target == nil {
		return fmt.Errorf("Send: unknown node %s", nodeId)
	}

	wire, err := json.Marshal(wireMessage{Topic: topic, Sender: m.localId, Body: body})
	if err != nil {
		return fmt.Errorf("Send: %v", err)
	}
	return m.ml.SendReliable(target, wire)
}

func (m *Membership) Listen(topic string, handler func(Envelope)) func() {
	m.listenersMu.Lock()
	m.listeners[topic] = append(m.listeners[topic], handler)
	idx := len(m.listeners[topic]) - 1
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		handlers := m.listeners[topic]
		if idx < len(handlers) {
			handlers[idx] = nil
		}
	}
}

func (m *Membership) dispatch(env Envelope) {
	m.listenersMu.Lock()
	handlers := append([]func(Envelope){}, m.listeners[env.Topic]...)
	m.listenersMu.Unlock()

	for _, h := range handlers {
		if h != nil {
			h(env)
		}
	}
}

// delegate implements memberlist.Delegate by embedding *Membership; only
// NodeMeta and NotifyMsg carry IGFS-specific behaviour, the rest are no-ops
// since this core does not need memberlist's anti-entropy broadcast queue.
type delegate Membership

func (d *delegate) NodeMeta(limit int) []byte {
	b, err := json.Marshal(d.attrs)
	if err != nil || len(b) > limit {
		return nil
	}
	return b
}

func (d *delegate) NotifyMsg(raw []byte) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		logging.Warnf("NotifyMsg: malformed envelope: %v", err)
		return
	}
	(*Membership)(d).dispatch(Envelope{
		Topic:  wire.Topic,
		Sender: Node{Id: wire.Sender},
		Body:   wire.Body,
	})
}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *delegate) LocalState(join bool) []byte                { return nil }
func (d *delegate) MergeRemoteState(buf []byte, join bool)      {}

// eventDelegate implements memberlist.EventDelegate, translating every
// NotifyLeave (graceful leave or detected failure alike) into a NodeLeft
// event for FormatProtocol.
type eventDelegate Membership

func (e *eventDelegate) NotifyJoin(n *memberlist.Node) {}

func (e *eventDelegate) NotifyLeave(n *memberlist.Node) {
	(*Membership)(e).notify(NodeEvent{Kind: NodeLeft, Node: nodeOf(n)})
}

func (e *eventDelegate) NotifyUpdate(n *memberlist.Node) {}

func nodeOf(n *memberlist.Node) Node {
	var attrs map[string]string
	_ = json.Unmarshal(n.Meta, &attrs)
	return Node{Id: n.Name, Attributes: attrs}
}
