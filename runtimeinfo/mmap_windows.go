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

package runtimeinfo

// MmapStorage is not implemented on Windows. The named-mapping equivalent
// (CreateFileMapping / FlushViewOfFile) is a tracked follow-up; until then
// construction fails loudly rather than faking shared state.
type MmapStorage struct{}

func NewMmapStorage(name string) (*MmapStorage, error) {
	return nil, ErrUnsupportedPlatform
}

func NewMmapStorageAt(path string) (*MmapStorage, error) {
	return nil, ErrUnsupportedPlatform
}

func (s *MmapStorage) Read() (*RuntimeInfo, error) { return nil, ErrUnsupportedPlatform }

func (s *MmapStorage) ApplyWithLock(op func(*RuntimeInfo) error) error {
	return ErrUnsupportedPlatform
}

func (s *MmapStorage) Close() error { return nil }
