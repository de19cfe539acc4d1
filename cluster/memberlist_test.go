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
	"encoding/json"
	"testing"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestMembership builds a Membership with its maps initialized but no
// real memberlist.Memberlist attached, exercising the parts of the type
// that don't require actual gossip networking: NodeMeta, NotifyMsg
// dispatch, Subscribe/notify and Listen/dispatch.
func newTestMembership(attrs map[string]string) *Membership {
	return &Membership{
		attrs:       attrs,
		localId:     "n1",
		subscribers: make(map[int]func(NodeEvent)),
		listeners:   make(map[string][]func(Envelope)),
	}
}

func TestDelegate_NodeMetaMarshalsAttributesWithinLimit(t *testing.T) {
	m := newTestMembership(map[string]string{"name": "igfs0"})
	d := (*delegate)(m)

	b := d.NodeMeta(1024)
	var attrs map[string]string
	require.NoError(t, json.Unmarshal(b, &attrs))
	assert.Equal(t, "igfs0", attrs["name"])
}

func TestDelegate_NodeMetaReturnsNilWhenOverLimit(t *testing.T) {
	m := newTestMembership(map[string]string{"name": "igfs0"})
	d := (*delegate)(m)

	assert.Nil(t, d.NodeMeta(1))
}

func TestDelegate_NotifyMsgDispatchesToListenersByTopic(t *testing.T) {
	m := newTestMembership(nil)

	var got Envelope
	received := make(chan struct{}, 1)
	m.Listen("deletes", func(e Envelope) {
		got = e
		received <- struct{}{}
	})

	wire, err := json.Marshal(wireMessage{Topic: "deletes", Sender: "n2", Body: []byte("hi")})
	require.NoError(t, err)

	(*delegate)(m).NotifyMsg(wire)

	<-received
	assert.Equal(t, "deletes", got.Topic)
	assert.Equal(t, "n2", got.Sender.Id)
	assert.Equal(t, []byte("hi"), got.Body)
}

func TestDelegate_NotifyMsgIgnoresOtherTopics(t *testing.T) {
	m := newTestMembership(nil)

	called := false
	m.Listen("deletes", func(e Envelope) { called = true })

	wire, err := json.Marshal(wireMessage{Topic: "other", Sender: "n2"})
	require.NoError(t, err)
	(*delegate)(m).NotifyMsg(wire)

	assert.False(t, called)
}

func TestDelegate_NotifyMsgMalformedPayloadIsIgnored(t *testing.T) {
	m := newTestMembership(nil)
	assert.NotPanics(t, func() {
		(*delegate)(m).NotifyMsg([]byte("not json"))
	})
}

func TestMembership_ListenUnsubscribeStopsDispatch(t *testing.T) {
	m := newTestMembership(nil)

	calls := 0
	unsub := m.Listen("t", func(e Envelope) { calls++ })
	m.dispatch(Envelope{Topic: "t"})
	unsub()
	m.dispatch(Envelope{Topic: "t"})

	assert.Equal(t, 1, calls)
}

func TestMembership_SubscribeAndNotifyDeliversToAllSubscribers(t *testing.T) {
	m := newTestMembership(nil)

	var got1, got2 NodeEvent
	m.Subscribe(func(ev NodeEvent) { got1 = ev })
	m.Subscribe(func(ev NodeEvent) { got2 = ev })

	m.notify(NodeEvent{Kind: NodeLeft, Node: Node{Id: "n3"}})

	assert.Equal(t, NodeLeft, got1.Kind)
	assert.Equal(t, "n3", got2.Node.Id)
}

func TestMembership_SubscribeUnsubscribeStopsNotifications(t *testing.T) {
	m := newTestMembership(nil)

	calls := 0
	unsub := m.Subscribe(func(ev NodeEvent) { calls++ })
	m.notify(NodeEvent{})
	unsub()
	m.notify(NodeEvent{})

	assert.Equal(t, 1, calls)
}

func TestEventDelegate_NotifyLeaveTranslatesToNodeLeftEvent(t *testing.T) {
	m := newTestMembership(nil)

	var got NodeEvent
	m.Subscribe(func(ev NodeEvent) { got = ev })

	meta, err := json.Marshal(map[string]string{"name": "igfs1"})
	require.NoError(t, err)
	(*eventDelegate)(m).NotifyLeave(&memberlist.Node{Name: "n2", Meta: meta})

	assert.Equal(t, NodeLeft, got.Kind)
	assert.Equal(t, "n2", got.Node.Id)
	assert.Equal(t, "igfs1", got.Node.Attributes["name"])
}

func TestNodeOf_IgnoresUnmarshalableMeta(t *testing.T) {
	n := nodeOf(&memberlist.Node{Name: "n1", Meta: []byte("garbage")})
	assert.Equal(t, "n1", n.Id)
	assert.Nil(t, n.Attributes)
}

func TestMembership_LocalNodeReportsIdAndAttributes(t *testing.T) {
	m := newTestMembership(map[string]string{"name": "igfs0"})
	ln := m.LocalNode()
	assert.Equal(t, "n1", ln.Id)
	assert.Equal(t, "igfs0", ln.Attributes["name"])
}
