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
	"fmt"

	"github.com/igfs-project/igfs/ids"
	"github.com/igfs-project/igfs/logging"
	"github.com/igfs-project/igfs/meta"
	igfspath "github.com/igfs-project/igfs/path"
)

// FileDescriptor is the core-internal, ephemeral resolution of a path into
// its parent, name and id. ParentId is nil only for the root.
type FileDescriptor struct {
	ParentId *ids.FileId
	FileName string
	FileId   ids.FileId
	IsFile   bool
}

// resolveDescriptor walks p's ancestry via the metadata manager, returning
// ok == false if p does not exist.
func resolveDescriptor(ctx context.Context, m meta.Manager, p igfspath.Path) (FileDescriptor, bool, error) {
	if p.IsRoot() {
		return FileDescriptor{FileId: ids.ROOT_ID, IsFile: false}, true, nil
	}

	parent, ok := p.Parent()
	if !ok {
		return FileDescriptor{}, false, fmt.Errorf("resolveDescriptor: %s has no parent", p)
	}

	parentId, err := m.FileId(ctx, parent.String())
	if err != nil {
		return FileDescriptor{}, false, err
	}
	if parentId == ids.Nil {
		return FileDescriptor{}, false, nil
	}

	listing, err := m.DirectoryListing(ctx, parentId)
	if err != nil {
		return FileDescriptor{}, false, err
	}
	entry, ok := listing[p.Name()]
	if !ok {
		return FileDescriptor{}, false, nil
	}

	pid := parentId
	return FileDescriptor{ParentId: &pid, FileName: p.Name(), FileId: entry.FileId, IsFile: entry.IsFile}, true, nil
}

// Summary is the recursive size/count of a subtree.
type Summary struct {
	DirectoryCount int64
	FileCount      int64
	TotalLength    uint64
}

// summarize walks the subtree rooted at id, tolerating missing children:
// a missing child is logged and the walk continues rather than failing.
func summarize(ctx context.Context, m meta.Manager, id ids.FileId) (Summary, error) {
	info, ok, err := m.Info(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	if !ok {
		logging.Warnf("summarize: %s vanished mid-walk, skipping", id)
		return Summary{}, nil
	}

	if !info.IsDirectory {
		return Summary{FileCount: 1, TotalLength: info.Length}, nil
	}

	total := Summary{DirectoryCount: 1}
	for _, entry := range info.Listing {
		child, err := summarize(ctx, m, entry.FileId)
		if err != nil {
			return Summary{}, err
		}
		total.DirectoryCount += child.DirectoryCount
		total.FileCount += child.FileCount
		total.TotalLength += child.TotalLength
	}
	return total, nil
}
