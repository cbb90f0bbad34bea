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

package runtimeinfo

import "sync"

// MemoryStorage is an in-process Storage used by supervisor tests and by
// single-process runs that do not share state with a peer. It goes through
// the same encode/decode path as MmapStorage so the size bound and the
// JSON+NUL layout are exercised.
type MemoryStorage struct {
	mu     sync.Mutex
	region [RegionSize]byte
}

// NewMemoryStorage returns an empty MemoryStorage decoding to the Idle
// default.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Read() (*RuntimeInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return decode(s.region[:])
}

func (s *MemoryStorage) ApplyWithLock(op func(*RuntimeInfo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, err := decode(s.region[:])
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
	copy(s.region[:], encoded)
	return nil
}
