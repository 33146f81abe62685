// Copyright 2024 The LizardFS-Go Authors
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
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJSONFormatUsesMooseFSSeverityNames(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: FormatJSON, Level: "trace", Output: &buf})

	Trace(context.Background(), l, "tracing")
	l.Debug("debugging")
	l.Warn("warning case")

	out := buf.String()
	assert.Contains(t, out, `"severity":"TRACE"`)
	assert.Contains(t, out, `"severity":"DEBUG"`)
	assert.Contains(t, out, `"severity":"WARNING"`)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: FormatText, Level: "warning", Output: &buf})

	l.Debug("should not appear")
	l.Warn("should appear")

	out := buf.String()
	assert.False(t, strings.Contains(out, "should not appear"))
	assert.True(t, strings.Contains(out, "should appear"))
}

func TestWithComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: FormatJSON, Level: "info", Output: &buf})
	comp := WithComponent(l, "matocsserv")

	comp.Info("registered chunkserver")

	assert.Contains(t, buf.String(), `"component":"matocsserv"`)
}
