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

package supervisor

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

var ErrBackupNotFound = errors.New("supervisor: no backup archive found")

// Resources is the filesystem capability the state machine drives: bundle
// discovery, backup creation and rollback restoration.
type Resources interface {
	CollectBundles() []string
	SignaturePath(bundlePath string) string
	Backup() (string, error)
	LatestBackup() (string, bool)
	Rollback(backupFile string) error
}

// ResourceManager is the production Resources implementation rooted at the
// agent's working directory.
type ResourceManager struct {
	WorkDir    string
	BundlesDir string
	BackupsDir string
}

// NewResourceManager builds a ResourceManager, creating the bundle and
// backup directories if absent.
func NewResourceManager(workDir, bundlesDir, backupsDir string) (*ResourceManager, error) {
	for _, dir := range []string{workDir, bundlesDir, backupsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	return &ResourceManager{WorkDir: workDir, BundlesDir: bundlesDir, BackupsDir: backupsDir}, nil
}

// CollectBundles lists YAML manifests in the bundles directory, sorted by
// name.
func (m *ResourceManager) CollectBundles() []string {
	entries, err := os.ReadDir(m.BundlesDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && (strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			out = append(out, filepath.Join(m.BundlesDir, name))
		}
	}
	sort.Strings(out)
	return out
}

// SignaturePath returns the detached sigstore bundle expected beside a
// manifest.
func (m *ResourceManager) SignaturePath(bundlePath string) string {
	return bundlePath + ".sigstore.json"
}

// Backup archives the working directory into a numbered zip under the
// backups directory. Names are zero-padded so lexicographic order is
// creation order.
func (m *ResourceManager) Backup() (string, error) {
	entries, _ := os.ReadDir(m.BackupsDir)
	name := fmt.Sprintf("backup_%05d.zip", len(entries)+1)
	target := filepath.Join(m.BackupsDir, name)

	tmp := target + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrapf(err, "create backup %s", tmp)
	}

	zw := zip.NewWriter(f)
	err = filepath.Walk(m.WorkDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(m.WorkDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err == nil {
		err = zw.Close()
	} else {
		zw.Close()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", errors.Wrap(err, "write backup archive")
	}
	if err := os.Rename(tmp, target); err != nil {
		return "", errors.Wrap(err, "finalize backup archive")
	}

	log.Info().Str("backup", target).Msg("created backup archive")
	return target, nil
}

// LatestBackup returns the lexicographically last archive name.
func (m *ResourceManager) LatestBackup() (string, bool) {
	entries, err := os.ReadDir(m.BackupsDir)
	if err != nil {
		return "", false
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".zip") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return filepath.Join(m.BackupsDir, names[len(names)-1]), true
}

// Rollback restores the working directory from backupFile: extract into a
// sibling staging directory, then swap it into place so a crash mid-restore
// never leaves a half-written tree.
func (m *ResourceManager) Rollback(backupFile string) error {
	staging := m.WorkDir + ".restore"
	if err := os.RemoveAll(staging); err != nil {
		return errors.Wrap(err, "clear staging dir")
	}
	if err := extractZip(backupFile, staging); err != nil {
		os.RemoveAll(staging)
		return err
	}

	old := m.WorkDir + ".old"
	if err := os.RemoveAll(old); err != nil {
		return errors.Wrap(err, "clear old dir")
	}
	if err := os.Rename(m.WorkDir, old); err != nil {
		return errors.Wrap(err, "set aside working dir")
	}
	if err := os.Rename(staging, m.WorkDir); err != nil {
		// Put the original back; the rollback failed but nothing is lost.
		_ = os.Rename(old, m.WorkDir)
		return errors.Wrap(err, "swap restored dir into place")
	}
	if err := os.RemoveAll(old); err != nil {
		log.Warn().Err(err).Str("dir", old).Msg("could not remove previous working dir")
	}

	log.Info().Str("backup", backupFile).Msg("restored working directory from backup")
	return nil
}

func extractZip(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return errors.Wrapf(err, "open backup %s", archive)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return errors.Newf("supervisor: archive entry %q escapes destination", f.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		src, err := f.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			src.Close()
			return err
		}
		_, err = io.Copy(out, src)
		src.Close()
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}
