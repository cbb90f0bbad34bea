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

// Package webvh implements the did:webvh method: genesis creation, log
// resolution with hash-chain and proof verification, and update/deactivation
// of an append-only DID log.
package webvh

import "github.com/nodecross/nodex/did"

// Placeholder is the literal SCID placeholder used throughout the genesis
// entry before the real SCID is computed and substituted in.
const Placeholder = "{SCID}"

// MethodVersion is the did:webvh spec version this implementation targets.
const MethodVersion = "did:webvh:0.5"

// Parameters carries the did:webvh-specific metadata of one log entry.
type Parameters struct {
	Portable      bool     `json:"portable"`
	UpdateKeys    []string `json:"updateKeys"`
	NextKeyHashes []string `json:"nextKeyHashes"`
	Method        string   `json:"method"`
	SCID          string   `json:"scid"`
}

// LogEntry is one record of a did:webvh append-only log.
type LogEntry struct {
	VersionID   string             `json:"versionId"`
	VersionTime string             `json:"versionTime"`
	Parameters  Parameters         `json:"parameters"`
	State       did.Document       `json:"state"`
	Proof       []DataIntegrityProof `json:"proof"`
}

// withoutProof returns a shallow copy of e with Proof cleared, the shape
// every hash computation in this package signs or verifies over.
func (e LogEntry) withoutProof() LogEntry {
	e.Proof = nil
	return e
}

// withVersionID returns a copy of e with VersionID replaced, used when
// recomputing an entry-hash against a candidate predecessor versionId.
func (e LogEntry) withVersionID(id string) LogEntry {
	e.VersionID = id
	return e
}
