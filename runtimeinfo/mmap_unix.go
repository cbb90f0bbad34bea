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

package runtimeinfo

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// ShmDir is where the named shared object lives. /dev/shm gives the
// shm_open semantics of the POSIX API without leaving the file API.
const ShmDir = "/dev/shm"

// MmapStorage is the POSIX Storage implementation: a named file in ShmDir,
// ftruncated to RegionSize, mapped shared into both processes. The advisory
// lock is flock(2) on the backing fd; writers block until the peer releases
// it. Flushes go through msync so the peer observes a consistent record.
type MmapStorage struct {
	file   *os.File
	region []byte
}

// NewMmapStorage opens (creating if necessary) the shared region under the
// given object name, e.g. "nodex_runtime_info".
func NewMmapStorage(name string) (*MmapStorage, error) {
	return NewMmapStorageAt(filepath.Join(ShmDir, name))
}

// NewMmapStorageAt is NewMmapStorage with an explicit path, used by tests
// to stay inside a temp dir.
func NewMmapStorageAt(path string) (*MmapStorage, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("runtimeinfo: open region: %w", err)
	}
	if err := f.Truncate(RegionSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("runtimeinfo: truncate region: %w", err)
	}

	region, err := unix.Mmap(int(f.Fd()), 0, RegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("runtimeinfo: mmap: %w", err)
	}

	return &MmapStorage{file: f, region: region}, nil
}

func (s *MmapStorage) lock() error {
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("runtimeinfo: lock: %w", err)
	}
	return nil
}

func (s *MmapStorage) unlock() error {
	if err := unix.Flock(int(s.file.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("runtimeinfo: unlock: %w", err)
	}
	return nil
}

func (s *MmapStorage) flush() error {
	if err := unix.Msync(s.region, unix.MS_SYNC); err != nil {
		return fmt.Errorf("runtimeinfo: msync: %w", err)
	}
	return nil
}

// Read acquires the advisory lock, decodes the region and releases.
func (s *MmapStorage) Read() (*RuntimeInfo, error) {
	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.unlock()

	snapshot := make([]byte, RegionSize)
	copy(snapshot, s.region)
	return decode(snapshot)
}

// ApplyWithLock runs op on the current record and writes the result back
// under the lock, flushing before release.
func (s *MmapStorage) ApplyWithLock(op func(*RuntimeInfo) error) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	info, err := decode(s.region)
	if err != nil {
		return err
	}
	if err := op(info); err != nil {
		return err
	}
	encoded, err := encode(info)
	if err != nil {
		return err
	}
	copy(s.region, encoded)
	return s.flush()
}

// Close unmaps the region and closes the backing file. The region itself is
// left in place for the peer.
func (s *MmapStorage) Close() error {
	if err := unix.Munmap(s.region); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
