// Copyright 2022 Piprate Limited
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

package utils

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandHome(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skip on windows")
	}

	home := UserHomeDir()
	t.Setenv("NODEX_TEST_DIR", "/tmp/nodex-test")

	tests := []struct {
		input string
		want  string
	}{
		{"~", home},
		{"$HOME", home},
		{"~/sub", filepath.Join(home, "sub")},
		{"$HOME/sub", filepath.Join(home, "sub")},
		{"$NODEX_TEST_DIR/cfg", "/tmp/nodex-test/cfg"},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExpandHome(tt.input), tt.input)
	}
}

func TestUserHomeDirNonEmpty(t *testing.T) {
	assert.NotEmpty(t, UserHomeDir())
}
