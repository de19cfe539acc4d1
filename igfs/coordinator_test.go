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

	"github.com/igfs-project/igfs/data"
	"github.com/igfs-project/igfs/igfserrs"
	"github.com/igfs-project/igfs/meta"
)

func newTestCoordinator(t *testing.T) (*MetadataCoordinator, *fakeCoordinatorHandle) {
	t.Helper()
	modes, err := NewModeResolver(PRIMARY, nil, false)
	require.NoError(t, err)

	h := &fakeCoordinatorHandle{}
	dataMgr := data.NewInMemory(4096, 0)
	return NewMetadataCoordinator(
		meta.NewStore(nil),
		dataMgr,
		nil,
		modes,
		NewWriterRegistry(),
		NewStreamFactory(dataMgr, 4, 2),
		nil,
		h,
	), h
}

func TestCoordinator_MkdirsCreatesIntermediateSegments(t *testing.T) {
	c, h := newTestCoordinator(t)

	require.NoError(t, c.Mkdirs(context.Background(), "/a/b/c", nil))

	exists, err := c.Exists(context.Background(), "/a/b/c")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = c.Exists(context.Background(), "/a/b")
	require.NoError(t, err)
	assert.True(t, exists)

	assert.NotEmpty(t, h.events)
}

func TestCoordinator_MkdirsIsIdempotent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a/b", nil))
	require.NoError(t, c.Mkdirs(context.Background(), "/a/b", nil))
}

func TestCoordinator_MkdirsRejectsFileAsParent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))

	ws, err := c.Create(context.Background(), "/a/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	err = c.Mkdirs(context.Background(), "/a/f/b", nil)
	assert.True(t, igfserrs.Is(err, igfserrs.ParentNotDirectory))
}

func TestCoordinator_CreateThenInfoRoundTrips(t *testing.T) {
	c, _ := newTestCoordinator(t)

	ws, err := c.Create(context.Background(), "/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	fi, ok, err := c.Info(context.Background(), "/f")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, fi.Info.IsDirectory)
}

func TestCoordinator_CreateWithoutOverwriteRejectsExisting(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ws, err := c.Create(context.Background(), "/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	_, err = c.Create(context.Background(), "/f", 0, false, nil, nil)
	assert.True(t, igfserrs.Is(err, igfserrs.PathAlreadyExists))
}

func TestCoordinator_CreateWithOverwriteReplacesExisting(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ws, err := c.Create(context.Background(), "/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	ws2, err := c.Create(context.Background(), "/f", 0, true, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws2.Close())
}

func TestCoordinator_CreateRejectsNegativeBufSize(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Create(context.Background(), "/f", -1, false, nil, nil)
	assert.True(t, igfserrs.Is(err, igfserrs.InvalidArgument))
}

func TestCoordinator_AppendCreatesWhenMissingAndFlagSet(t *testing.T) {
	c, _ := newTestCoordinator(t)

	ws, err := c.Append(context.Background(), "/f", 0, true, nil)
	require.NoError(t, err)
	ws.RecordWrite(10)
	require.NoError(t, ws.Close())

	exists, err := c.Exists(context.Background(), "/f")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCoordinator_AppendWithoutCreateFailsWhenMissing(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Append(context.Background(), "/f", 0, false, nil)
	assert.True(t, igfserrs.Is(err, igfserrs.FileNotFound))
}

func TestCoordinator_AppendRejectsDirectory(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))

	_, err := c.Append(context.Background(), "/a", 0, false, nil)
	assert.True(t, igfserrs.Is(err, igfserrs.InvalidPath))
}

func TestCoordinator_RenameMovesFileToNewParent(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))
	require.NoError(t, c.Mkdirs(context.Background(), "/b", nil))

	ws, err := c.Create(context.Background(), "/a/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	require.NoError(t, c.Rename(context.Background(), "/a/f", "/b/g"))

	exists, err := c.Exists(context.Background(), "/a/f")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = c.Exists(context.Background(), "/b/g")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCoordinator_RenameRejectsIntoOwnSubtree(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a/b", nil))

	err := c.Rename(context.Background(), "/a", "/a/b/c")
	assert.True(t, igfserrs.Is(err, igfserrs.InvalidPath))
}

func TestCoordinator_RenameSamePathIsNoOp(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))
	require.NoError(t, c.Rename(context.Background(), "/a", "/a"))
}

func TestCoordinator_DeleteNonRecursiveRejectsNonEmptyDirectory(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a/b", nil))

	_, err := c.Delete(context.Background(), "/a", false)
	assert.True(t, igfserrs.Is(err, igfserrs.DirectoryNotEmpty))
}

func TestCoordinator_DeleteRecursiveRemovesSubtree(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a/b", nil))

	deleted, err := c.Delete(context.Background(), "/a", true)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err := c.Exists(context.Background(), "/a")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCoordinator_DeleteMissingPathReportsFalse(t *testing.T) {
	c, _ := newTestCoordinator(t)
	deleted, err := c.Delete(context.Background(), "/nope", false)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCoordinator_UpdateMergesProperties(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))

	require.NoError(t, c.Update(context.Background(), "/a", map[string]string{"k": "v"}))

	fi, ok, err := c.Info(context.Background(), "/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", fi.Info.Properties["k"])
}

func TestCoordinator_UpdateMissingPathFails(t *testing.T) {
	c, _ := newTestCoordinator(t)
	err := c.Update(context.Background(), "/nope", map[string]string{"k": "v"})
	assert.True(t, igfserrs.Is(err, igfserrs.FileNotFound))
}

func TestCoordinator_SetTimesUpdatesProperties(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))

	require.NoError(t, c.SetTimes(context.Background(), "/a", 100, 200))

	fi, ok, err := c.Info(context.Background(), "/a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "100", fi.Info.Properties["accessTime"])
	assert.Equal(t, "200", fi.Info.Properties["modificationTime"])
}

func TestCoordinator_ListPathsReturnsChildren(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))
	ws, err := c.Create(context.Background(), "/a/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	require.NoError(t, c.Mkdirs(context.Background(), "/a/b", nil))

	names, err := c.ListPaths(context.Background(), "/a")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/a/f", "/a/b"}, names)
}

func TestCoordinator_ListFilesFiltersOutDirectories(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))
	ws, err := c.Create(context.Background(), "/a/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())
	require.NoError(t, c.Mkdirs(context.Background(), "/a/b", nil))

	names, err := c.ListFiles(context.Background(), "/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/f"}, names)
}

func TestCoordinator_ListPathsOnFileReturnsSingleton(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ws, err := c.Create(context.Background(), "/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	names, err := c.ListPaths(context.Background(), "/f")
	require.NoError(t, err)
	assert.Equal(t, []string{"/f"}, names)
}

func TestCoordinator_AffinityResolvesBlocksOfExistingFile(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ws, err := c.Create(context.Background(), "/f", 0, false, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ws.Close())

	blocks, err := c.Affinity(context.Background(), "/f", 0, 10, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, blocks)
}

func TestCoordinator_AffinityRejectsDirectory(t *testing.T) {
	c, _ := newTestCoordinator(t)
	require.NoError(t, c.Mkdirs(context.Background(), "/a", nil))

	_, err := c.Affinity(context.Background(), "/a", 0, 10, 0)
	assert.True(t, igfserrs.Is(err, igfserrs.InvalidPath))
}

func TestCoordinator_AffinityRejectsNegativeRange(t *testing.T) {
	c, _ := newTestCoordinator(t)
	_, err := c.Affinity(context.Background(), "/f", -1, 10, 0)
	assert.True(t, igfserrs.Is(err, igfserrs.InvalidArgument))
}

func TestCoordinator_ExistsReportsFalseForMissingPath(t *testing.T) {
	c, _ := newTestCoordinator(t)
	exists, err := c.Exists(context.Background(), "/nope")
	require.NoError(t, err)
	assert.False(t, exists)
}
