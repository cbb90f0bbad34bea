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

// Package runtimeinfo is the shared, advisory-locked view of supervisor
// state that the controller and agent processes reconcile through: a
// fixed-size memory-mapped region holding canonical JSON terminated by a
// single NUL byte.
package runtimeinfo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	ncrypto "github.com/nodecross/nodex/crypto"
)

// State is the supervisor state machine position persisted in the region.
type State string

const (
	StateIdle     State = "Idle"
	StateUpdating State = "Updating"
	StateRollback State = "Rollback"
)

// Role distinguishes the two cooperating processes.
type Role string

const (
	RoleController Role = "Controller"
	RoleAgent      Role = "Agent"
)

// RegionSize is the fixed size of the shared region; enough for the bounded
// process count with room to spare.
const RegionSize = 8192

// MaxProcessInfos bounds the process table.
const MaxProcessInfos = 4

var (
	ErrRegionTooSmall      = errors.New("runtimeinfo: encoded record exceeds region size")
	ErrUnsupportedPlatform = errors.New("runtimeinfo: platform not supported")
)

// ProcessInfo describes one running process the supervisor knows about.
type ProcessInfo struct {
	PID       int    `json:"pid"`
	StartedAt string `json:"started_at"`
	Version   string `json:"version"`
	Role      Role   `json:"role"`
}

// RuntimeInfo is the shared record. Mutation goes exclusively through
// Storage.ApplyWithLock.
type RuntimeInfo struct {
	State        State         `json:"state"`
	ProcessInfos []ProcessInfo `json:"process_infos"`
}

// Storage is the capability through which both processes access the shared
// region. ApplyWithLock is the single mutation entry point: it acquires the
// advisory lock, reads, runs op, writes back, flushes and releases, so that
// per-field updates are transactional. Writers block while the peer holds
// the lock.
type Storage interface {
	Read() (*RuntimeInfo, error)
	ApplyWithLock(op func(*RuntimeInfo) error) error
}

// IsAgentRunning reports whether the table lists any agent process.
func (r *RuntimeInfo) IsAgentRunning() bool {
	for _, p := range r.ProcessInfos {
		if p.Role == RoleAgent {
			return true
		}
	}
	return false
}

// AgentOfVersion returns the first agent process of the given version.
func (r *RuntimeInfo) AgentOfVersion(version string) *ProcessInfo {
	for i := range r.ProcessInfos {
		if r.ProcessInfos[i].Role == RoleAgent && r.ProcessInfos[i].Version == version {
			return &r.ProcessInfos[i]
		}
	}
	return nil
}

// AddProcess appends p, evicting the oldest entry when the bounded table is
// full.
func (r *RuntimeInfo) AddProcess(p ProcessInfo) {
	if len(r.ProcessInfos) >= MaxProcessInfos {
		r.ProcessInfos = r.ProcessInfos[1:]
	}
	r.ProcessInfos = append(r.ProcessInfos, p)
}

// RemoveProcess drops the entry with the given pid, if present.
func (r *RuntimeInfo) RemoveProcess(pid int) {
	kept := r.ProcessInfos[:0]
	for _, p := range r.ProcessInfos {
		if p.PID != pid {
			kept = append(kept, p)
		}
	}
	r.ProcessInfos = kept
}

// encode serializes r as canonical JSON followed by a single NUL byte,
// padded with zeros to RegionSize.
func encode(r *RuntimeInfo) ([]byte, error) {
	body, err := ncrypto.CanonicalJSON(r)
	if err != nil {
		return nil, err
	}
	if len(body)+1 > RegionSize {
		return nil, ErrRegionTooSmall
	}
	out := make([]byte, RegionSize)
	copy(out, body)
	return out, nil
}

// decode reads the region back: everything up to the first NUL is the JSON
// record; an all-zero (fresh) region decodes to the Idle default.
func decode(region []byte) (*RuntimeInfo, error) {
	end := bytes.IndexByte(region, 0)
	if end < 0 {
		end = len(region)
	}
	body := bytes.TrimSpace(region[:end])
	if len(body) == 0 {
		return &RuntimeInfo{State: StateIdle, ProcessInfos: []ProcessInfo{}}, nil
	}
	var r RuntimeInfo
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("runtimeinfo: decode: %w", err)
	}
	if r.ProcessInfos == nil {
		r.ProcessInfos = []ProcessInfo{}
	}
	return &r, nil
}
