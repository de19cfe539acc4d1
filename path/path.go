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

// Package path implements the absolute, slash-separated path type used
// throughout the IGFS core.
package path

import (
	"fmt"
	"strings"
)

// Path is an absolute, '/'-separated path. The zero value is not valid;
// use Root() or Parse().
type Path struct {
	// clean holds the canonical form: "/" for the root, otherwise no
	// trailing slash and no empty components.
	clean string
}

// Root returns the path "/".
func Root() Path {
	return Path{clean: "/"}
}

// Parse validates and normalizes a path string. It must be absolute. Empty
// segments (consecutive slashes) are rejected rather than silently
// collapsed, since a malformed path is a caller bug, not a path to clean up.
func Parse(s string) (Path, error) {
	if s == "" || s[0] != '/' {
		return Path{}, fmt.Errorf("path: not absolute: %q", s)
	}

	if s == "/" {
		return Root(), nil
	}

	trimmed := strings.TrimSuffix(s, "/")
	if trimmed == "" {
		return Root(), nil
	}

	for _, seg := range strings.Split(trimmed[1:], "/") {
		if seg == "" {
			return Path{}, fmt.Errorf("path: empty segment in %q", s)
		}
	}

	return Path{clean: trimmed}, nil
}

// MustParse is Parse, panicking on error. Intended for constants and tests.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the canonical path string.
func (p Path) String() string {
	if p.clean == "" {
		return "/"
	}
	return p.clean
}

// IsRoot reports whether p is the root path.
func (p Path) IsRoot() bool {
	return p.clean == "" || p.clean == "/"
}

// Components returns the non-empty path segments from root to leaf. The
// root's component list is empty.
func (p Path) Components() []string {
	if p.IsRoot() {
		return nil
	}
	return strings.Split(p.clean[1:], "/")
}

// Name returns the final path segment, or "" for the root.
func (p Path) Name() string {
	c := p.Components()
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1]
}

// Parent returns the parent of p and true, or the zero Path and false if p
// is the root (which has no parent).
func (p Path) Parent() (Path, bool) {
	c := p.Components()
	if len(c) == 0 {
		return Path{}, false
	}
	if len(c) == 1 {
		return Root(), true
	}
	return Path{clean: "/" + strings.Join(c[:len(c)-1], "/")}, true
}

// Child returns the path of a direct child of p named name.
func (p Path) Child(name string) Path {
	if p.IsRoot() {
		return Path{clean: "/" + name}
	}
	return Path{clean: p.clean + "/" + name}
}

// IsSame reports whether p and other denote the same path.
func (p Path) IsSame(other Path) bool {
	return p.String() == other.String()
}

// IsSubDirectoryOf reports whether p is other or a descendant of other. A
// path is considered a "subdirectory" of itself for the purposes of
// rename-into-self-subtree rejection.
func (p Path) IsSubDirectoryOf(other Path) bool {
	if other.IsRoot() {
		return true
	}
	if p.IsSame(other) {
		return true
	}
	return strings.HasPrefix(p.clean, other.clean+"/")
}

// HasPrefix reports whether other is a prefix component-wise of p (used by
// ModeResolver's longest-prefix-match and reserved-prefix checks). Unlike
// IsSubDirectoryOf this does not treat p == other specially beyond the
// ordinary prefix case, which already covers it.
func (p Path) HasPrefix(other Path) bool {
	return p.IsSame(other) || p.IsSubDirectoryOf(other)
}
