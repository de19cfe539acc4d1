// Copyright 2023 Google Inc. All Rights Reserved.
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

package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_JSONFormatEmitsSeverityAndMessage(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory("json", INFO, &buf)
	f.Logger().Info("hello")

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "INFO", got["severity"])
	assert.Equal(t, "hello", got["message"])
}

func TestFactory_SeverityThresholdFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory("json", WARNING, &buf)
	f.Logger().Info("should be dropped")

	assert.Empty(t, buf.String())
}

func TestFactory_SetSeverityAppliesImmediately(t *testing.T) {
	var buf bytes.Buffer
	f := NewFactory("text", ERROR, &buf)
	f.Logger().Warn("dropped")
	assert.Empty(t, buf.String())

	f.SetSeverity(WARNING)
	f.Logger().Warn("kept")
	assert.True(t, strings.Contains(buf.String(), "kept"))
}

func TestConfigure_ReplacesPackageDefault(t *testing.T) {
	var buf bytes.Buffer
	Configure(NewFactory("json", INFO, &buf))
	defer Configure(NewFactory("text", INFO, os.Stderr))

	Infof("package-level: %d", 1)
	assert.Contains(t, buf.String(), "package-level: 1")
}
