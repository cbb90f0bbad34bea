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

//go:build !windows

package supervisor

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nodecross/nodex/runtimeinfo"
	"github.com/rs/zerolog/log"
)

// Launcher is the process-management capability the state machine drives.
type Launcher interface {
	LaunchAgent() (*runtimeinfo.ProcessInfo, error)
	Alive(pid int) bool
	Terminate(pid int) error
}

// ExecLauncher launches the agent as a child of the controller: the same
// executable with no subcommand, the duplicated listener fd passed through
// ExtraFiles and announced in the environment.
type ExecLauncher struct {
	ExePath      string
	Version      string
	ListenerFile *os.File
	ExtraEnv     []string
}

// LaunchAgent starts the child and returns its ProcessInfo. The child is
// reaped in the background; exit observation for the crash window goes
// through Alive.
func (l *ExecLauncher) LaunchAgent() (*runtimeinfo.ProcessInfo, error) {
	cmd := exec.Command(l.ExePath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), l.ExtraEnv...)
	if l.ListenerFile != nil {
		// ExtraFiles[0] becomes fd 3 in the child.
		cmd.ExtraFiles = []*os.File{l.ListenerFile}
		cmd.Env = append(cmd.Env, ListenFDEnv+"=3")
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "launch agent %s", l.ExePath)
	}
	pid := cmd.Process.Pid
	log.Info().Int("pid", pid).Str("version", l.Version).Msg("launched agent")

	go func() {
		if err := cmd.Wait(); err != nil {
			log.Warn().Err(err).Int("pid", pid).Msg("agent exited")
		}
	}()

	return &runtimeinfo.ProcessInfo{
		PID:       pid,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
		Version:   l.Version,
		Role:      runtimeinfo.RoleAgent,
	}, nil
}

// SetVersion updates the version reported for the next launched agent.
func (l *ExecLauncher) SetVersion(v string) {
	l.Version = v
}

// Alive reports whether pid still refers to a running process.
func (l *ExecLauncher) Alive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// Terminate sends SIGTERM; the agent's shutdown token handles the rest.
func (l *ExecLauncher) Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := p.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Wrapf(err, "terminate pid %d", pid)
	}
	return nil
}
