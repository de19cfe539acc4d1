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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igfs-project/igfs/ids"
	"github.com/igfs-project/igfs/meta"
	igfspath "github.com/igfs-project/igfs/path"
)

func descMkdir(t *testing.T, s *meta.Store, parent ids.FileId, name string) ids.FileId {
	t.Helper()
	id := ids.New()
	existing, inserted, err := s.PutIfAbsent(context.Background(), parent, name, meta.NewDirInfo(id, false, nil))
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, ids.Nil, existing)
	return id
}

func descMkfile(t *testing.T, s *meta.Store, parent ids.FileId, name string, length uint64) ids.FileId {
	t.Helper()
	id := ids.New()
	info := meta.NewFileInfo(id, 1<<16, nil, false, nil)
	info.Length = length
	existing, inserted, err := s.PutIfAbsent(context.Background(), parent, name, info)
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, ids.Nil, existing)
	return id
}

func mustPath(t *testing.T, s string) igfspath.Path {
	t.Helper()
	p, err := igfspath.Parse(s)
	require.NoError(t, err)
	return p
}

func TestResolveDescriptor_RootResolvesToReservedId(t *testing.T) {
	store := meta.NewStore(nil)

	desc, ok, err := resolveDescriptor(context.Background(), store, mustPath(t, "/"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids.ROOT_ID, desc.FileId)
	assert.False(t, desc.IsFile)
	assert.Nil(t, desc.ParentId)
}

func TestResolveDescriptor_MissingParentSegmentReportsNotFound(t *testing.T) {
	store := meta.NewStore(nil)

	_, ok, err := resolveDescriptor(context.Background(), store, mustPath(t, "/nope/child"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveDescriptor_MissingEntryInExistingParentReportsNotFound(t *testing.T) {
	store := meta.NewStore(nil)
	descMkdir(t, store, ids.ROOT_ID, "a")

	_, ok, err := resolveDescriptor(context.Background(), store, mustPath(t, "/a/missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolveDescriptor_ExistingFileResolvesParentAndId(t *testing.T) {
	store := meta.NewStore(nil)
	aId := descMkdir(t, store, ids.ROOT_ID, "a")
	fileId := descMkfile(t, store, aId, "f", 0)

	desc, ok, err := resolveDescriptor(context.Background(), store, mustPath(t, "/a/f"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, desc.IsFile)
	assert.Equal(t, fileId, desc.FileId)
	assert.Equal(t, "f", desc.FileName)
	require.NotNil(t, desc.ParentId)
	assert.Equal(t, aId, *desc.ParentId)
}

func TestSummarize_MissingIdReportsEmptySummary(t *testing.T) {
	store := meta.NewStore(nil)
	got, err := summarize(context.Background(), store, ids.New())
	require.NoError(t, err)
	assert.Equal(t, Summary{}, got)
}

func TestSummarize_SingleFileReportsLength(t *testing.T) {
	store := meta.NewStore(nil)
	fileId := descMkfile(t, store, ids.ROOT_ID, "f", 42)

	got, err := summarize(context.Background(), store, fileId)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.FileCount)
	assert.Equal(t, int64(0), got.DirectoryCount)
	assert.Equal(t, uint64(42), got.TotalLength)
}

func TestSummarize_NestedDirectoryAccumulatesAcrossChildren(t *testing.T) {
	store := meta.NewStore(nil)
	aId := descMkdir(t, store, ids.ROOT_ID, "a")
	bId := descMkdir(t, store, aId, "b")
	descMkfile(t, store, aId, "f1", 10)
	descMkfile(t, store, bId, "f2", 20)

	got, err := summarize(context.Background(), store, aId)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.DirectoryCount) // a and b
	assert.Equal(t, int64(2), got.FileCount)
	assert.Equal(t, uint64(30), got.TotalLength)
}
