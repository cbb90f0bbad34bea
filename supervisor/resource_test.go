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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResources(t *testing.T) *ResourceManager {
	t.Helper()
	base := t.TempDir()
	m, err := NewResourceManager(
		filepath.Join(base, "work"),
		filepath.Join(base, "bundles"),
		filepath.Join(base, "backups"),
	)
	require.NoError(t, err)
	return m
}

func TestCollectBundlesSorted(t *testing.T) {
	m := newTestResources(t)
	for _, name := range []string{"v1.2.0.yaml", "v1.1.0.yaml", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(m.BundlesDir, name), []byte("x"), 0o644))
	}

	bundles := m.CollectBundles()
	require.Len(t, bundles, 2)
	assert.Equal(t, filepath.Join(m.BundlesDir, "v1.1.0.yaml"), bundles[0])
	assert.Equal(t, filepath.Join(m.BundlesDir, "v1.2.0.yaml"), bundles[1])
}

func TestBackupRollbackRoundTrip(t *testing.T) {
	m := newTestResources(t)
	require.NoError(t, os.MkdirAll(filepath.Join(m.WorkDir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(m.WorkDir, "config.json"), []byte(`{"v":"1.0.0"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.WorkDir, "sub", "data"), []byte("payload"), 0o644))

	backup, err := m.Backup()
	require.NoError(t, err)

	// Mutate the tree the way a broken update would.
	require.NoError(t, os.WriteFile(filepath.Join(m.WorkDir, "config.json"), []byte(`{"v":"broken"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.WorkDir, "junk"), []byte("x"), 0o644))

	require.NoError(t, m.Rollback(backup))

	restored, err := os.ReadFile(filepath.Join(m.WorkDir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"v":"1.0.0"}`, string(restored))

	nested, err := os.ReadFile(filepath.Join(m.WorkDir, "sub", "data"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(nested))

	_, err = os.Stat(filepath.Join(m.WorkDir, "junk"))
	assert.True(t, os.IsNotExist(err))
}

func TestLatestBackupIsLexicographicMax(t *testing.T) {
	m := newTestResources(t)
	_, ok := m.LatestBackup()
	assert.False(t, ok)

	for _, name := range []string{"backup_00001.zip", "backup_00003.zip", "backup_00002.zip"} {
		require.NoError(t, os.WriteFile(filepath.Join(m.BackupsDir, name), []byte("x"), 0o644))
	}

	latest, ok := m.LatestBackup()
	require.True(t, ok)
	assert.Equal(t, filepath.Join(m.BackupsDir, "backup_00003.zip"), latest)
}
