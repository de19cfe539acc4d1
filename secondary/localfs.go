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

package secondary

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// LocalFS mirrors IGFS paths onto a directory on local disk. It plays the
// role that a real deployment's durable backing store (HDFS, a bucket, NFS)
// would play, staged through local files the way MutableObject stages GCS
// object writes through a local temp file before a sync.
type LocalFS struct {
	root string
}

var _ FS = (*LocalFS)(nil)

// NewLocalFS roots a LocalFS at dir, creating it if necessary.
func NewLocalFS(dir string) (*LocalFS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalFS{root: dir}, nil
}

func (l *LocalFS) native(p string) string {
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

func (l *LocalFS) Exists(ctx context.Context, p string) (bool, error) {
	_, err := os.Stat(l.native(p))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (l *LocalFS) Info(ctx context.Context, p string) (Status, error) {
	fi, err := os.Stat(l.native(p))
	if os.IsNotExist(err) {
		return Status{}, nil
	}
	if err != nil {
		return Status{}, err
	}
	return Status{
		Exists:      true,
		IsDirectory: fi.IsDir(),
		Length:      uint64(fi.Size()),
		Properties:  map[string]string{"permission": modePermission(fi.Mode())},
	}, nil
}

func (l *LocalFS) ListPaths(ctx context.Context, p string) ([]string, error) {
	entries, err := os.ReadDir(l.native(p))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(p, "/")+"/"+e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (l *LocalFS) ListFiles(ctx context.Context, p string) ([]string, error) {
	entries, err := os.ReadDir(l.native(p))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			out = append(out, strings.TrimSuffix(p, "/")+"/"+e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *LocalFS) UsedSpaceSize(ctx context.Context) (uint64, error) {
	var total uint64
	err := filepath.Walk(l.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (l *LocalFS) Properties(ctx context.Context, p string) (map[string]string, error) {
	st, err := l.Info(ctx, p)
	if err != nil {
		return nil, err
	}
	return st.Properties, nil
}

func (l *LocalFS) Close() error {
	return nil
}

// OpenWriter returns an io.WriteCloser over p, creating parent directories
// as needed. This is how the metadata manager's dual-create/append obtains
// the SecondaryWriteHandle that the core registers a Batch against.
func (l *LocalFS) OpenWriter(p string, append bool) (io.WriteCloser, error) {
	native := l.native(p)
	if err := os.MkdirAll(filepath.Dir(native), 0o755); err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(native, flags, 0o644)
}

// Mkdir creates a directory under the root.
func (l *LocalFS) Mkdir(p string) error {
	return os.MkdirAll(l.native(p), 0o755)
}

// Remove deletes a file or, if recursive, a directory tree.
func (l *LocalFS) Remove(p string, recursive bool) error {
	if recursive {
		return os.RemoveAll(l.native(p))
	}
	return os.Remove(l.native(p))
}

// Rename moves src to dest, creating dest's parent directory as needed.
func (l *LocalFS) Rename(ctx context.Context, src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(l.native(dest)), 0o755); err != nil {
		return err
	}
	return os.Rename(l.native(src), l.native(dest))
}

func modePermission(m os.FileMode) string {
	return "0" + strconv.FormatInt(int64(m.Perm()), 8)
}
