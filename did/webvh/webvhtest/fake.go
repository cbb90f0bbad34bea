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

// Package webvhtest carries an in-memory DataStore fake used by this
// module's own tests (and by internal/httpapi's) instead of hitting real HTTPS
// endpoints.
package webvhtest

import (
	"context"
	"errors"
	"sync"

	"github.com/nodecross/nodex/did/webvh"
)

// ErrAlreadyExists is returned by Post when a log already exists at path.
var ErrAlreadyExists = errors.New("webvhtest: log already exists")

// FakeDataStore is a thread-safe, in-memory webvh.DataStore keyed by path.
// Post requires the log to be empty; Put/Delete append to whatever is
// already there, matching the real HTTP semantics closely enough for the
// resolve/update chain tests.
type FakeDataStore struct {
	mu   sync.Mutex
	logs map[string][]webvh.LogEntry
}

// NewFakeDataStore returns an empty FakeDataStore.
func NewFakeDataStore() *FakeDataStore {
	return &FakeDataStore{logs: map[string][]webvh.LogEntry{}}
}

func (f *FakeDataStore) Get(_ context.Context, path string) ([]webvh.LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, ok := f.logs[path]
	if !ok {
		return nil, webvh.ErrNotFound
	}
	out := make([]webvh.LogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (f *FakeDataStore) Post(_ context.Context, path string, entries []webvh.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.logs[path]; exists {
		return ErrAlreadyExists
	}
	f.logs[path] = append([]webvh.LogEntry{}, entries...)
	return nil
}

func (f *FakeDataStore) Put(_ context.Context, path string, entry webvh.LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.logs[path]; !ok {
		return webvh.ErrNotFound
	}
	f.logs[path] = append(f.logs[path], entry)
	return nil
}

func (f *FakeDataStore) Delete(_ context.Context, path string, entry webvh.LogEntry) error {
	return f.Put(context.Background(), path, entry)
}
