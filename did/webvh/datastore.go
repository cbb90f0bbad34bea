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

package webvh

import (
	"context"
	"errors"
)

// DataStore is the transport adapter for a did:webvh log: Get fetches
// the ordered JSONL entries at path, Post submits the genesis entry list,
// Put appends subsequent entries, and Delete submits a deactivation entry.
// httpstore.go is the production implementation; webvhtest carries the
// in-memory fake used by this package's own tests and by internal/httpapi's.
type DataStore interface {
	Get(ctx context.Context, path string) ([]LogEntry, error)
	Post(ctx context.Context, path string, entries []LogEntry) error
	Put(ctx context.Context, path string, entry LogEntry) error
	Delete(ctx context.Context, path string, entry LogEntry) error
}

// ErrNotFound is returned by a DataStore when no log exists at path.
var ErrNotFound = errors.New("webvh: log not found")

// ErrTransport wraps any network/transport-layer failure a DataStore
// implementation hits, distinct from the verification failures resolve.go
// raises on a log it successfully fetched.
var ErrTransport = errors.New("webvh: transport error")
