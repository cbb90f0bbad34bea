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

//go:build windows

package supervisor

import (
	"os"
	"os/exec"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nodecross/nodex/runtimeinfo"
	"github.com/rs/zerolog/log"
)

// ExecLauncher launches the agent child on Windows. Sockets do not survive
// process boundaries here, so the agreed loopback port travels via
// environment instead of an inherited fd.
type ExecLauncher struct {
	ExePath    string
	Version    string
	ListenPort int
	ExtraEnv   []string
}

func (l *ExecLauncher) LaunchAgent() (*runtimeinfo.ProcessInfo, error) {
	cmd := exec.Command(l.ExePath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(), l.ExtraEnv...)
	if l.ListenPort != 0 {
		cmd.Env = append(cmd.Env, ListenPortEnv+"="+itoa(l.ListenPort))
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

func (l *ExecLauncher) SetVersion(v string) {
	l.Version = v
}

func (l *ExecLauncher) Alive(pid int) bool {
	// FindProcess only succeeds for live processes on Windows.
	_, err := os.FindProcess(pid)
	return err == nil
}

func (l *ExecLauncher) Terminate(pid int) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return p.Kill()
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var buf [12]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
