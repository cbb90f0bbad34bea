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

// Package supervisor implements the controller side of the agent lifecycle:
// the Idle/Updating/Rollback state machine, update-bundle execution with
// sigstore verification, backup/rollback of the working directory, and
// launching the agent child with the inherited listening socket.
package supervisor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/nodecross/nodex/utils/jsonw"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Operation actions a bundle may carry.
const (
	ActionMove       = "Move"
	ActionUpdateJSON = "UpdateJson"
)

var (
	ErrBundleNotFound = errors.New("supervisor: no update bundle found")
	ErrInvalidVersion = errors.New("supervisor: invalid bundle version")
	ErrUnknownAction  = errors.New("supervisor: unknown bundle action")
	ErrFieldPath      = errors.New("supervisor: invalid json field path")
	ErrSourceNotFound = errors.New("supervisor: source file not found")
	ErrDestNotDir     = errors.New("supervisor: destination is not a directory")
)

// Bundle is one parsed update manifest.
type Bundle struct {
	Version     string      `yaml:"version"`
	Description string      `yaml:"description"`
	Operations  []Operation `yaml:"operations"`

	path   string
	semver *semver.Version
}

// Operation is one step of a bundle. Fields beyond Action/Description are
// populated per action kind.
type Operation struct {
	Action      string `yaml:"action"`
	Description string `yaml:"description"`

	// Move
	Src  string `yaml:"src,omitempty"`
	Dest string `yaml:"dest,omitempty"`

	// UpdateJson
	File  string `yaml:"file,omitempty"`
	Field string `yaml:"field,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// Path returns the manifest file this bundle was parsed from.
func (b *Bundle) Path() string { return b.path }

// Semver returns the parsed bundle version.
func (b *Bundle) Semver() *semver.Version { return b.semver }

// ParseBundle reads and validates one YAML manifest.
func ParseBundle(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read bundle %s", path)
	}
	var b Bundle
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, errors.Wrapf(err, "parse bundle %s", path)
	}
	v, err := semver.NewVersion(b.Version)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidVersion, "%s: %q", path, b.Version)
	}
	b.path = path
	b.semver = v
	return &b, nil
}

// PendingBundles parses every manifest and keeps those whose version is
// strictly greater than current, sorted ascending so they execute in order.
func PendingBundles(paths []string, current *semver.Version) ([]*Bundle, error) {
	var pending []*Bundle
	for _, p := range paths {
		b, err := ParseBundle(p)
		if err != nil {
			return nil, err
		}
		if b.semver.GreaterThan(current) {
			pending = append(pending, b)
		}
	}
	for i := 1; i < len(pending); i++ {
		for j := i; j > 0 && pending[j].semver.LessThan(pending[j-1].semver); j-- {
			pending[j], pending[j-1] = pending[j-1], pending[j]
		}
	}
	return pending, nil
}

// Run executes the bundle's operations in order, stopping at the first
// failure.
func (b *Bundle) Run() error {
	for _, op := range b.Operations {
		var err error
		switch op.Action {
		case ActionMove:
			err = executeMove(op.Src, op.Dest)
		case ActionUpdateJSON:
			err = executeUpdateJSON(op.File, op.Field, op.Value)
		default:
			err = errors.Wrapf(ErrUnknownAction, "%q", op.Action)
		}
		if err != nil {
			return errors.Wrapf(err, "bundle %s: %s", b.Version, op.Description)
		}
	}
	return nil
}

// executeMove moves src into the dest directory, creating dest when absent.
func executeMove(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil || info.IsDir() {
		return errors.Wrapf(ErrSourceNotFound, "%s", src)
	}

	destInfo, err := os.Stat(dest)
	switch {
	case os.IsNotExist(err):
		log.Info().Str("dest", dest).Msg("destination directory does not exist, creating")
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return errors.Wrapf(err, "create destination %s", dest)
		}
	case err != nil:
		return errors.Wrapf(err, "stat destination %s", dest)
	case !destInfo.IsDir():
		return errors.Wrapf(ErrDestNotDir, "%s", dest)
	}

	target := filepath.Join(dest, filepath.Base(src))
	log.Info().Str("src", src).Str("dest", target).Msg("moving file")
	if err := os.Rename(src, target); err != nil {
		return errors.Wrapf(err, "move %s to %s", src, target)
	}
	return nil
}

// executeUpdateJSON sets a dot-separated field path in a JSON file to a
// string value. Intermediate keys must already exist; the file is rewritten
// pretty-printed.
func executeUpdateJSON(file, field, value string) error {
	log.Info().Str("file", file).Str("field", field).Msg("updating json file")

	raw, err := os.ReadFile(file)
	if err != nil {
		return errors.Wrapf(err, "read %s", file)
	}
	var doc map[string]any
	if err := jsonw.Unmarshal(raw, &doc); err != nil {
		return errors.Wrapf(err, "parse %s", file)
	}

	parts := strings.Split(field, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return errors.Wrapf(ErrFieldPath, "%q in %s", field, file)
		}
		current = next
	}
	leaf := parts[len(parts)-1]
	if _, ok := current[leaf]; !ok {
		return errors.Wrapf(ErrFieldPath, "%q in %s", field, file)
	}
	current[leaf] = value

	pretty, err := jsonw.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encode %s", file)
	}
	if err := os.WriteFile(file, pretty, 0o644); err != nil {
		return errors.Wrapf(err, "write %s", file)
	}
	return nil
}
