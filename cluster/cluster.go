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

// Package cluster defines the Messaging, DiscoveryService and
// ComputeService contracts that FormatProtocol and AffinityAndMetrics
// consume, plus a hashicorp/memberlist-backed implementation of discovery
// and messaging.
package cluster

import "context"

// Node identifies one cluster member.
type Node struct {
	Id         string
	Attributes map[string]string
}

// IgfsNameAttr is the node attribute FormatProtocol uses to filter
// DeleteCompleted messages and node-left events to peers running the same
// named IGFS instance, since a single cluster can host several.
const IgfsNameAttr = "igfs.name"

// NodeEventKind distinguishes node-left from node-failed; FormatProtocol
// treats both the same way. The memberlist-backed Membership reports every
// departure as NodeLeft and never produces NodeFailed.
type NodeEventKind int

const (
	NodeLeft NodeEventKind = iota
	NodeFailed
)

// NodeEvent is delivered to a subscriber on membership change.
type NodeEvent struct {
	Kind NodeEventKind
	Node Node
}

// DiscoveryService is the external discovery contract.
type DiscoveryService interface {
	LocalNode() Node
	NodeAttribute(nodeId, key string) (string, bool)
	// Members returns every node currently known to be alive, local node
	// included.
	Members() []Node
	// Subscribe registers a listener for node-left/node-failed events. The
	// returned function unsubscribes it.
	Subscribe(listener func(NodeEvent)) (unsubscribe func())
}

// Envelope is one message delivered over Messaging, addressed by topic.
type Envelope struct {
	Topic  string
	Sender Node
	Body   []byte
}

// Messaging is the external messaging contract: topic-addressed,
// best-effort delivery to a specific peer.
type Messaging interface {
	// Send delivers body on topic to the peer identified by nodeId.
	Send(ctx context.Context, nodeId, topic string, body []byte) error
	// Listen registers a handler for every envelope received on topic. The
	// returned function unregisters it.
	Listen(topic string, handler func(Envelope)) (unregister func())
}

// ComputeResult is the per-node outcome of a fan-out compute job, used by
// AffinityAndMetrics.globalSpace().
type ComputeResult struct {
	NodeId       string
	UsedSpace    uint64
	MaxSpace     uint64
	Err          error
}

// ComputeService is the external fan-out task contract.
type ComputeService interface {
	// Broadcast runs job on every node in the cluster (including local) and
	// returns one ComputeResult per node. A node's failure to respond never
	// fails the whole broadcast: its result carries a non-nil Err instead.
	Broadcast(ctx context.Context, job func(ctx context.Context) (used, max uint64, err error)) ([]ComputeResult, error)
}
