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
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/nodecross/nodex/runtimeinfo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLauncher struct {
	version  string
	nextPID  int
	launched []int
	killed   []int
	dead     map[int]bool
}

func newMockLauncher() *mockLauncher {
	return &mockLauncher{version: "1.0.0", nextPID: 100, dead: map[int]bool{}}
}

func (m *mockLauncher) LaunchAgent() (*runtimeinfo.ProcessInfo, error) {
	m.nextPID++
	m.launched = append(m.launched, m.nextPID)
	return &runtimeinfo.ProcessInfo{
		PID:       m.nextPID,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Version:   m.version,
		Role:      runtimeinfo.RoleAgent,
	}, nil
}

func (m *mockLauncher) Alive(pid int) bool      { return !m.dead[pid] }
func (m *mockLauncher) Terminate(pid int) error { m.killed = append(m.killed, pid); return nil }
func (m *mockLauncher) SetVersion(v string)     { m.version = v }

type mockResources struct {
	bundles        []string
	backupCalled   int
	rollbackCalled int
	latestBackup   string
}

func (m *mockResources) CollectBundles() []string         { return m.bundles }
func (m *mockResources) SignaturePath(p string) string    { return p + ".sigstore.json" }
func (m *mockResources) Backup() (string, error)          { m.backupCalled++; return "backup_00001.zip", nil }
func (m *mockResources) LatestBackup() (string, bool)     { return m.latestBackup, m.latestBackup != "" }
func (m *mockResources) Rollback(backupFile string) error { m.rollbackCalled++; return nil }

type mockVerifier struct{ err error }

func (m *mockVerifier) Verify(sig, blob string) error { return m.err }

func newTestController(t *testing.T, res *mockResources, ver *mockVerifier) (*Controller, *mockLauncher, runtimeinfo.Storage) {
	t.Helper()
	storage := runtimeinfo.NewMemoryStorage()
	launcher := newMockLauncher()
	c := NewController(storage, res, ver, launcher, semver.MustParse("1.0.0"), t.TempDir())
	c.checkStorage = func(string) bool { return true }
	c.sleep = func(time.Duration) {}
	return c, launcher, storage
}

func currentState(t *testing.T, s runtimeinfo.Storage) runtimeinfo.State {
	t.Helper()
	info, err := s.Read()
	require.NoError(t, err)
	return info.State
}

func TestIdleLaunchesAgentWhenNoneRunning(t *testing.T) {
	c, launcher, storage := newTestController(t, &mockResources{}, &mockVerifier{})

	require.NoError(t, c.Tick())
	assert.Len(t, launcher.launched, 1)
	assert.Equal(t, runtimeinfo.StateIdle, currentState(t, storage))

	// A second tick leaves the running agent alone.
	require.NoError(t, c.Tick())
	assert.Len(t, launcher.launched, 1)
}

func TestIdleTransitionsToUpdatingWhenBundleAppears(t *testing.T) {
	dir := t.TempDir()
	bundle := writeBundle(t, dir, "v1.1.0.yaml", "version: \"1.1.0\"\ndescription: up\noperations: []\n")
	res := &mockResources{bundles: []string{bundle}}
	c, _, storage := newTestController(t, res, &mockVerifier{})

	require.NoError(t, c.Tick())
	assert.Equal(t, runtimeinfo.StateUpdating, currentState(t, storage))
}

func TestSuccessfulUpdateEndsIdleWithNewVersion(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfg, []byte(`{"app":{"version":"1.0.0"}}`), 0o644))
	src := filepath.Join(dir, "agent.new")
	require.NoError(t, os.WriteFile(src, []byte("bin"), 0o644))

	bundle := writeBundle(t, dir, "v1.1.0.yaml", fmt.Sprintf(sampleBundle, src, filepath.Join(dir, "install"), cfg))
	res := &mockResources{bundles: []string{bundle}}
	c, launcher, storage := newTestController(t, res, &mockVerifier{})

	require.NoError(t, c.Tick()) // Idle -> launches agent, sees bundle -> Updating
	require.NoError(t, c.Tick()) // Updating -> executes ops -> Idle

	assert.Equal(t, runtimeinfo.StateIdle, currentState(t, storage))
	assert.Equal(t, "1.1.0", c.Version.String())
	assert.Equal(t, "1.1.0", launcher.version)
	assert.Equal(t, 1, res.backupCalled)
	// Old agent terminated, new one launched.
	assert.Len(t, launcher.killed, 1)
	assert.Len(t, launcher.launched, 2)
}

func TestFailedUpdateTransitionsToRollback(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.json")
	// The field path the bundle targets does not exist.
	require.NoError(t, os.WriteFile(cfg, []byte(`{"other":{}}`), 0o644))
	src := filepath.Join(dir, "agent.new")
	require.NoError(t, os.WriteFile(src, []byte("bin"), 0o644))

	bundle := writeBundle(t, dir, "v1.1.0.yaml", fmt.Sprintf(sampleBundle, src, filepath.Join(dir, "install"), cfg))
	res := &mockResources{bundles: []string{bundle}, latestBackup: "backup_00001.zip"}
	c, _, storage := newTestController(t, res, &mockVerifier{})

	require.NoError(t, c.Tick()) // Idle -> Updating
	require.NoError(t, c.Tick()) // Updating -> ops fail -> Rollback
	assert.Equal(t, runtimeinfo.StateRollback, currentState(t, storage))

	require.NoError(t, c.Tick()) // Rollback -> restore -> Idle
	assert.Equal(t, 1, res.rollbackCalled)
	assert.Equal(t, runtimeinfo.StateIdle, currentState(t, storage))
	assert.Equal(t, "1.0.0", c.Version.String())
}

func TestRejectedSignatureAbortsUpdate(t *testing.T) {
	dir := t.TempDir()
	bundle := writeBundle(t, dir, "v1.1.0.yaml", "version: \"1.1.0\"\ndescription: up\noperations: []\n")
	res := &mockResources{bundles: []string{bundle}}
	c, _, storage := newTestController(t, res, &mockVerifier{err: ErrSignatureInvalid})

	require.NoError(t, c.Tick()) // Idle -> Updating
	require.NoError(t, c.Tick()) // Updating -> signature rejected -> Idle

	assert.Equal(t, runtimeinfo.StateIdle, currentState(t, storage))
	assert.Equal(t, 0, res.backupCalled)
	assert.Equal(t, "1.0.0", c.Version.String())
}

func TestStorageGuardrailBlocksUpdate(t *testing.T) {
	dir := t.TempDir()
	bundle := writeBundle(t, dir, "v1.1.0.yaml", "version: \"1.1.0\"\ndescription: up\noperations: []\n")
	res := &mockResources{bundles: []string{bundle}}
	c, _, storage := newTestController(t, res, &mockVerifier{})
	c.checkStorage = func(string) bool { return false }

	require.NoError(t, c.Tick()) // Idle -> Updating
	require.NoError(t, c.Tick()) // Updating -> guardrail -> Idle

	assert.Equal(t, runtimeinfo.StateIdle, currentState(t, storage))
	assert.Equal(t, 0, res.backupCalled)
}

func TestAgentCrashInWindowTriggersRollback(t *testing.T) {
	dir := t.TempDir()
	bundle := writeBundle(t, dir, "v1.1.0.yaml", "version: \"1.1.0\"\ndescription: up\noperations: []\n")
	res := &mockResources{bundles: []string{bundle}, latestBackup: "backup_00001.zip"}
	c, launcher, storage := newTestController(t, res, &mockVerifier{})

	require.NoError(t, c.Tick()) // Idle -> Updating

	// Whatever agent gets launched next dies immediately.
	c.sleep = func(time.Duration) {
		launcher.dead[launcher.nextPID] = true
	}

	require.NoError(t, c.Tick()) // Updating -> relaunch -> crash -> Rollback
	assert.Equal(t, runtimeinfo.StateRollback, currentState(t, storage))
}

func TestCheckStorageBudget(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, CheckStorage(dir))

	// Budget 50 MiB with a 30 MiB free margin: 15 MiB of content still
	// passes, 10 MiB more tips it under the margin.
	big := make([]byte, 15*1024*1024)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob1"), big, 0o644))
	assert.True(t, CheckStorage(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "blob2"), big[:10*1024*1024], 0o644))
	assert.False(t, CheckStorage(dir))
}
