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
	"fmt"
	"strings"

	iradix "github.com/hashicorp/go-immutable-radix/v2"

	"github.com/igfs-project/igfs/logging"
	igfspath "github.com/igfs-project/igfs/path"
)

// Mode tags how the core should route operations under a path.
type Mode int

const (
	PRIMARY Mode = iota
	PROXY
	DUAL_SYNC
	DUAL_ASYNC
)

func (m Mode) String() string {
	switch m {
	case PRIMARY:
		return "PRIMARY"
	case PROXY:
		return "PROXY"
	case DUAL_SYNC:
		return "DUAL_SYNC"
	case DUAL_ASYNC:
		return "DUAL_ASYNC"
	default:
		return "UNKNOWN"
	}
}

// IsDual reports whether m requires secondary-FS coordination.
func (m Mode) IsDual() bool {
	return m == DUAL_SYNC || m == DUAL_ASYNC
}

// ParseMode parses the mode names accepted in config (igfscfg) and on the
// command line, case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(s) {
	case "PRIMARY":
		return PRIMARY, nil
	case "PROXY":
		return PROXY, nil
	case "DUAL_SYNC":
		return DUAL_SYNC, nil
	case "DUAL_ASYNC":
		return DUAL_ASYNC, nil
	default:
		return 0, fmt.Errorf("ParseMode: unrecognized mode %q", s)
	}
}

var reservedPrefixes = map[string]Mode{
	"/ignite/primary": PRIMARY,
	"/ignite/proxy":   PROXY,
	"/ignite/sync":    DUAL_SYNC,
	"/ignite/async":   DUAL_ASYNC,
}

// ModeResolver maps paths to modes by longest-prefix match over a radix
// tree, falling back to a configured default. It is built once at
// construction and never mutated afterward, the same immutability the
// teacher relies on for its type cache snapshots.
type ModeResolver struct {
	tree        *iradix.Tree[Mode]
	defaultMode Mode
}

// NewModeResolver builds a resolver. userPrefixes are applied after the
// fixed reserved prefixes; entries colliding with a reserved prefix are
// logged and skipped rather than rejected outright, since a config file
// listing a reserved prefix is usually copy-paste noise, not intent. When
// hasSecondary is false, only the reserved PRIMARY prefix is registered,
// every user prefix mode other than PROXY collapses to PRIMARY, a user
// PROXY prefix is kept as PROXY, and defaultMode may not be PROXY.
func NewModeResolver(defaultMode Mode, userPrefixes map[string]Mode, hasSecondary bool) (*ModeResolver, error) {
	if !hasSecondary && defaultMode == PROXY {
		return nil, fmt.Errorf("NewModeResolver: default mode PROXY requires a secondary file system")
	}

	tree := iradix.New[Mode]()

	insert := func(prefix string, mode Mode) {
		tree, _, _ = tree.Insert([]byte(withTrailingSlash(prefix)), mode)
	}

	for prefix, mode := range reservedPrefixes {
		if !hasSecondary && mode != PRIMARY {
			continue
		}
		insert(prefix, mode)
	}

	for prefix, mode := range userPrefixes {
		if _, ok := reservedPrefixes[prefix]; ok {
			logging.Warnf("NewModeResolver: user prefix %q collides with a reserved prefix, skipping", prefix)
			continue
		}
		effective := mode
		if !hasSecondary && mode != PROXY {
			effective = PRIMARY
		}
		insert(prefix, effective)
	}

	effectiveDefault := defaultMode
	if !hasSecondary && defaultMode != PROXY {
		effectiveDefault = PRIMARY
	}

	return &ModeResolver{tree: tree, defaultMode: effectiveDefault}, nil
}

// withTrailingSlash normalizes s so that radix-tree prefix matches only
// ever land on a path-component boundary: a registered prefix "/hot" must
// not match the unrelated path "/hotel/x", and "/ignite/primary" must not
// match "/ignite/primaryx". Appending the separator to both the inserted
// key and the lookup key turns a byte-prefix match into a component-prefix
// match, since the divergent byte is then forced to appear no later than
// the first extra path component.
func withTrailingSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// ResolveMode returns the mode of the longest matching prefix registered
// for p, or the default mode if none matches.
func (r *ModeResolver) ResolveMode(p igfspath.Path) Mode {
	_, mode, found := r.tree.Root().LongestPrefix([]byte(withTrailingSlash(p.String())))
	if !found {
		return r.defaultMode
	}
	return mode
}

// ResolveChildrenModes returns the set of distinct modes reachable under p:
// p's own resolved mode, plus the mode of every registered prefix that is a
// descendant of p. Used to decide whether a listing or delete under p must
// also consult the secondary FS.
func (r *ModeResolver) ResolveChildrenModes(p igfspath.Path) map[Mode]bool {
	modes := map[Mode]bool{r.ResolveMode(p): true}

	r.tree.Root().WalkPrefix([]byte(withTrailingSlash(p.String())), func(k []byte, v Mode) bool {
		modes[v] = true
		return false
	})
	return modes
}
