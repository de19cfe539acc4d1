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

import igfspath "github.com/igfs-project/igfs/path"

// EvictionPolicy lets an operator exclude paths from data eviction. A nil
// EvictionPolicy means every path is evictable.
type EvictionPolicy interface {
	Exclude(p igfspath.Path) bool
}

func evictExcludeOf(policy EvictionPolicy, p igfspath.Path) bool {
	if policy == nil {
		return false
	}
	return policy.Exclude(p)
}
