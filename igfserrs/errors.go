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

// Package igfserrs implements the IGFS core's error taxonomy: a concrete
// type a caller can switch or errors.As on, rather than a flat set of
// sentinel values.
package igfserrs

import (
	"errors"
	"fmt"
)

// Kind enumerates the error taxonomy.
type Kind int

const (
	// IllegalState: operation invoked during shutdown or before managers
	// are ready.
	IllegalState Kind = iota
	// InvalidArgument: null path, negative buffer/size, path syntax errors.
	InvalidArgument
	// InvalidPath: PROXY mode used directly; rename root / into self
	// subtree / across eviction boundary; not-a-file where file required.
	InvalidPath
	// FileNotFound: target missing in all consulted stores.
	FileNotFound
	// ParentNotDirectory: mkdir or rename where parent is a file.
	ParentNotDirectory
	// PathAlreadyExists: create without overwrite hits a live entry.
	PathAlreadyExists
	// DirectoryNotEmpty: non-recursive delete of non-empty directory.
	DirectoryNotEmpty
	// SecondaryConflict: primary-mode path exists in the secondary FS.
	SecondaryConflict
	// Internal: unexpected failure from metadata/data layers.
	Internal
)

func (k Kind) String() string {
	switch k {
	case IllegalState:
		return "illegal-state"
	case InvalidArgument:
		return "invalid-argument"
	case InvalidPath:
		return "invalid-path"
	case FileNotFound:
		return "file-not-found"
	case ParentNotDirectory:
		return "parent-not-directory"
	case PathAlreadyExists:
		return "path-already-exists"
	case DirectoryNotEmpty:
		return "directory-not-empty"
	case SecondaryConflict:
		return "secondary-conflict"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every IGFS core operation
// that fails. Op names the operation that failed, in the manner of the
// teacher's "CreateChildFile: %v" wrapping convention, and Cause is the
// wrapped underlying error, if any.
type Error struct {
	Kind  Kind
	Op    string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds a *Error with no wrapped cause.
func New(kind Kind, op, path string) error {
	return &Error{Kind: kind, Op: op, Path: path}
}

// Wrap builds a *Error around an existing error, never swallowing it:
// errors from storage layers are wrapped, never swallowed, except at the
// specifically tolerable sites that log and continue instead.
func Wrap(kind Kind, op, path string, cause error) error {
	if cause == nil {
		return New(kind, op, path)
	}
	return &Error{Kind: kind, Op: op, Path: path, Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal if err is not
// (or does not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
