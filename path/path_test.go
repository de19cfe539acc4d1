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

package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Root(t *testing.T) {
	p, err := Parse("/")
	require.NoError(t, err)
	assert.True(t, p.IsRoot())
	assert.Equal(t, "/", p.String())
}

func TestParse_TrailingSlashNormalized(t *testing.T) {
	p, err := Parse("/foo/bar/")
	require.NoError(t, err)
	assert.Equal(t, "/foo/bar", p.String())
}

func TestParse_RejectsRelative(t *testing.T) {
	_, err := Parse("foo/bar")
	assert.Error(t, err)
}

func TestParse_RejectsEmptySegment(t *testing.T) {
	_, err := Parse("/foo//bar")
	assert.Error(t, err)
}

func TestComponents(t *testing.T) {
	p := MustParse("/a/b/c")
	assert.Equal(t, []string{"a", "b", "c"}, p.Components())
	assert.Nil(t, Root().Components())
}

func TestName(t *testing.T) {
	assert.Equal(t, "c", MustParse("/a/b/c").Name())
	assert.Equal(t, "", Root().Name())
}

func TestParent(t *testing.T) {
	parent, ok := MustParse("/a/b/c").Parent()
	require.True(t, ok)
	assert.Equal(t, "/a/b", parent.String())

	grandparent, ok := MustParse("/a").Parent()
	require.True(t, ok)
	assert.True(t, grandparent.IsRoot())

	_, ok = Root().Parent()
	assert.False(t, ok)
}

func TestChild(t *testing.T) {
	assert.Equal(t, "/a", Root().Child("a").String())
	assert.Equal(t, "/a/b", MustParse("/a").Child("b").String())
}

func TestIsSubDirectoryOf(t *testing.T) {
	root := Root()
	a := MustParse("/a")
	ab := MustParse("/a/b")
	ac := MustParse("/a/c")

	assert.True(t, ab.IsSubDirectoryOf(root))
	assert.True(t, ab.IsSubDirectoryOf(a))
	assert.True(t, a.IsSubDirectoryOf(a), "a path is a subdirectory of itself")
	assert.False(t, ac.IsSubDirectoryOf(ab))

	abc := MustParse("/ab")
	assert.False(t, abc.IsSubDirectoryOf(a), "sibling path sharing a prefix string must not match")
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, MustParse("/a/b").HasPrefix(MustParse("/a")))
	assert.True(t, MustParse("/a").HasPrefix(MustParse("/a")))
	assert.False(t, MustParse("/ab").HasPrefix(MustParse("/a")))
}
