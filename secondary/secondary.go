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

// Package secondary defines the SecondaryFS contract: the optional durable
// file system that DUAL_SYNC and DUAL_ASYNC paths mirror through to, plus
// a local-disk reference implementation.
package secondary

import (
	"context"
)

// Status describes what the secondary FS knows about one path, synthesized
// into a meta.FileInfo by the coordinator without ever being inserted into
// the metadata manager.
type Status struct {
	Exists       bool
	IsDirectory  bool
	Length       uint64
	Properties   map[string]string
}

// FS is the external secondary-file-system contract. Implementations need
// not be safe for the core to call with a lock held; the core never calls
// through FS while holding one.
type FS interface {
	Exists(ctx context.Context, p string) (bool, error)
	Info(ctx context.Context, p string) (Status, error)
	ListPaths(ctx context.Context, p string) ([]string, error)
	ListFiles(ctx context.Context, p string) ([]string, error)
	UsedSpaceSize(ctx context.Context) (uint64, error)
	Properties(ctx context.Context, p string) (map[string]string, error)
	Close() error
}
