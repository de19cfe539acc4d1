// Copyright 2023 Google Inc. All Rights Reserved.
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

package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThrottle_AllowsUpToBurstThenBlocks(t *testing.T) {
	th := NewThrottle(0, 2)

	assert.True(t, th.Allow())
	assert.True(t, th.Allow())
	assert.False(t, th.Allow(), "third call within the same instant should be throttled")
}

func TestThrottle_WarnfDoesNotPanicWhenThrottled(t *testing.T) {
	th := NewThrottle(0, 1)
	th.Warnf("first: %d", 1)
	th.Warnf("second, should be swallowed: %d", 2)
}
