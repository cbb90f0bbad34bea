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
	"os"
	"path/filepath"
	"strings"
)

// UserHomeDir resolves the home directory the agent's fixed on-disk layout
// (~/.config/nodex, ~/.nodex) hangs off.
func UserHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return os.Getenv("HOME")
}

// ExpandHome rewrites a leading "~" or "$HOME" to the user home dir and
// expands any remaining environment variables, used on operator-supplied
// paths like --config.
func ExpandHome(path string) string {
	switch {
	case path == "~" || path == "$HOME":
		return UserHomeDir()
	case strings.HasPrefix(path, "~"+string(os.PathSeparator)):
		path = filepath.Join(UserHomeDir(), path[2:])
	case strings.HasPrefix(path, "$HOME"+string(os.PathSeparator)):
		path = filepath.Join(UserHomeDir(), path[6:])
	}
	return os.ExpandEnv(path)
}
