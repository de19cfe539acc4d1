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

package igfserrs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoCause(t *testing.T) {
	err := New(FileNotFound, "Info", "/a/b")
	assert.Equal(t, "Info: file-not-found (path=/a/b)", err.Error())
	assert.True(t, Is(err, FileNotFound))
}

func TestWrap_NilCauseBehavesLikeNew(t *testing.T) {
	err := Wrap(Internal, "Create", "/x", nil)
	assert.Equal(t, "Create: internal (path=/x)", err.Error())
}

func TestWrap_PreservesCauseAndUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(Internal, "Append", "/f", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestKindOf_DefaultsToInternalForForeignErrors(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestIs(t *testing.T) {
	err := New(PathAlreadyExists, "Create", "/a")
	assert.True(t, Is(err, PathAlreadyExists))
	assert.False(t, Is(err, FileNotFound))
}
