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
	"context"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/nodecross/nodex/runtimeinfo"
	"github.com/nodecross/nodex/utils/fingerprint"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often the controller re-evaluates its state.
const DefaultPollInterval = 5 * time.Second

// DefaultCrashWindow is how long a freshly launched agent must survive
// after an update before the update counts as successful.
const DefaultCrashWindow = 10 * time.Second

// VersionedLauncher extends Launcher with the version the next agent will
// report, which advances when an update lands.
type VersionedLauncher interface {
	Launcher
	SetVersion(v string)
}

// Controller drives the Idle/Updating/Rollback state machine. It owns the
// shared runtime-info region; the agent only observes it.
type Controller struct {
	Storage   runtimeinfo.Storage
	Resources Resources
	Verifier  Verifier
	Launcher  VersionedLauncher
	Version   *semver.Version
	WorkDir   string

	PollInterval time.Duration
	CrashWindow  time.Duration

	// Injection points for tests.
	checkStorage func(string) bool
	sleep        func(time.Duration)
}

// NewController wires a Controller with production defaults.
func NewController(storage runtimeinfo.Storage, resources Resources, verifier Verifier, launcher VersionedLauncher, version *semver.Version, workDir string) *Controller {
	return &Controller{
		Storage:      storage,
		Resources:    resources,
		Verifier:     verifier,
		Launcher:     launcher,
		Version:      version,
		WorkDir:      workDir,
		PollInterval: DefaultPollInterval,
		CrashWindow:  DefaultCrashWindow,
		checkStorage: CheckStorage,
		sleep:        time.Sleep,
	}
}

// Run executes the state machine until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.Tick(); err != nil {
			log.Err(err).Msg("controller tick failed")
		}
		select {
		case <-ctx.Done():
			log.Info().Msg("controller shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick evaluates the current state once and performs at most one
// transition's worth of work.
func (c *Controller) Tick() error {
	info, err := c.Storage.Read()
	if err != nil {
		return errors.Wrap(err, "read runtime info")
	}

	switch info.State {
	case runtimeinfo.StateIdle:
		return c.handleIdle(info)
	case runtimeinfo.StateUpdating:
		return c.handleUpdating()
	case runtimeinfo.StateRollback:
		return c.handleRollback()
	default:
		return errors.Newf("unknown state %q", info.State)
	}
}

func (c *Controller) setState(s runtimeinfo.State) error {
	return c.Storage.ApplyWithLock(func(r *runtimeinfo.RuntimeInfo) error {
		log.Info().Str("from", string(r.State)).Str("to", string(s)).Msg("state transition")
		r.State = s
		return nil
	})
}

// handleIdle is the only steady state: make sure an agent of the current
// version is running, then check whether a pending bundle moves us to
// Updating.
func (c *Controller) handleIdle(info *runtimeinfo.RuntimeInfo) error {
	c.reapDead(info)

	current, err := c.Storage.Read()
	if err != nil {
		return err
	}
	if !current.IsAgentRunning() {
		if _, err := c.launchAgent(); err != nil {
			return err
		}
	}

	pending, err := PendingBundles(c.Resources.CollectBundles(), c.Version)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring unparseable bundle")
		return nil
	}
	if len(pending) > 0 {
		log.Info().Int("bundles", len(pending)).Msg("update bundle found")
		return c.setState(runtimeinfo.StateUpdating)
	}
	return nil
}

// handleUpdating executes the pending bundles in ascending version order.
// Any operation failure moves the machine to Rollback; success returns to
// Idle with the new version running.
func (c *Controller) handleUpdating() error {
	if !c.checkStorage(c.WorkDir) {
		log.Error().Str("dir", c.WorkDir).Msg("not enough free storage for update")
		return c.setState(runtimeinfo.StateIdle)
	}

	pending, err := PendingBundles(c.Resources.CollectBundles(), c.Version)
	if err != nil {
		log.Err(err).Msg("bundle parse failed")
		return c.setState(runtimeinfo.StateIdle)
	}
	if len(pending) == 0 {
		return c.setState(runtimeinfo.StateIdle)
	}

	for _, b := range pending {
		if err := c.Verifier.Verify(c.Resources.SignaturePath(b.Path()), b.Path()); err != nil {
			log.Err(err).Str("bundle", b.Path()).Msg("bundle signature rejected")
			return c.setState(runtimeinfo.StateIdle)
		}
	}

	if _, err := c.Resources.Backup(); err != nil {
		log.Err(err).Msg("backup failed, refusing to update")
		return c.setState(runtimeinfo.StateIdle)
	}

	for _, b := range pending {
		log.Info().Str("version", b.Version).Str("ref", bundleRef(b.Path())).
			Str("description", b.Description).Msg("executing update bundle")
		if err := b.Run(); err != nil {
			log.Err(err).Str("version", b.Version).Msg("update bundle failed")
			// Discard the manifest so the rollback does not immediately
			// re-enter Updating with the same broken bundle.
			c.discardBundles(pending)
			return c.setState(runtimeinfo.StateRollback)
		}
	}
	c.discardBundles(pending)

	newVersion := pending[len(pending)-1].Semver()
	c.Version = newVersion
	c.Launcher.SetVersion(newVersion.String())

	c.terminateAgents()
	p, err := c.launchAgent()
	if err != nil {
		log.Err(err).Msg("relaunch after update failed")
		return c.setState(runtimeinfo.StateRollback)
	}

	// An agent that dies inside the crash window counts as a failed update.
	c.sleep(c.CrashWindow)
	if !c.Launcher.Alive(p.PID) {
		log.Error().Int("pid", p.PID).Msg("agent crashed within the update window")
		return c.setState(runtimeinfo.StateRollback)
	}

	log.Info().Str("version", newVersion.String()).Msg("update complete")
	return c.setState(runtimeinfo.StateIdle)
}

// handleRollback restores the most recent backup and returns to Idle.
func (c *Controller) handleRollback() error {
	backup, ok := c.Resources.LatestBackup()
	if !ok {
		return errors.Wrap(ErrBackupNotFound, "rollback")
	}
	if err := c.Resources.Rollback(backup); err != nil {
		return errors.Wrap(err, "rollback")
	}
	c.terminateAgents()
	return c.setState(runtimeinfo.StateIdle)
}

// bundleRef names a manifest by content hash for the update audit log.
func bundleRef(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	ref, err := fingerprint.BundleRef(f)
	if err != nil {
		return ""
	}
	return ref
}

// discardBundles removes executed (or failed) manifests and their
// signature bundles from the staging directory.
func (c *Controller) discardBundles(bundles []*Bundle) {
	for _, b := range bundles {
		for _, p := range []string{b.Path(), c.Resources.SignaturePath(b.Path())} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", p).Msg("could not remove bundle file")
			}
		}
	}
}

func (c *Controller) launchAgent() (*runtimeinfo.ProcessInfo, error) {
	p, err := c.Launcher.LaunchAgent()
	if err != nil {
		return nil, errors.Wrap(err, "launch agent")
	}
	err = c.Storage.ApplyWithLock(func(r *runtimeinfo.RuntimeInfo) error {
		r.AddProcess(*p)
		return nil
	})
	return p, err
}

func (c *Controller) terminateAgents() {
	info, err := c.Storage.Read()
	if err != nil {
		return
	}
	for _, p := range info.ProcessInfos {
		if p.Role != runtimeinfo.RoleAgent {
			continue
		}
		if err := c.Launcher.Terminate(p.PID); err != nil {
			log.Warn().Err(err).Int("pid", p.PID).Msg("terminate failed")
		}
		pid := p.PID
		_ = c.Storage.ApplyWithLock(func(r *runtimeinfo.RuntimeInfo) error {
			r.RemoveProcess(pid)
			return nil
		})
	}
}

// reapDead drops table entries whose process has exited.
func (c *Controller) reapDead(info *runtimeinfo.RuntimeInfo) {
	for _, p := range info.ProcessInfos {
		if p.Role == runtimeinfo.RoleAgent && !c.Launcher.Alive(p.PID) {
			pid := p.PID
			_ = c.Storage.ApplyWithLock(func(r *runtimeinfo.RuntimeInfo) error {
				r.RemoveProcess(pid)
				return nil
			})
		}
	}
}
