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
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
)

// Resolution failure kinds.
var (
	ErrSCIDMismatch          = errors.New("webvh: scid mismatch")
	ErrVersionSequenceBroken = errors.New("webvh: version sequence broken")
	ErrUpdateKeyNotAuthorized = errors.New("webvh: update key not authorized by predecessor")
)

// Resolver resolves did:webvh identifiers against a DataStore.
type Resolver struct {
	Store DataStore
}

// NewResolver constructs a Resolver backed by store.
func NewResolver(store DataStore) *Resolver {
	return &Resolver{Store: store}
}

// Resolve validates the full log fetched
// for d's path and returns the final state, with Deactivated surfaced if
// the last entry is a deactivation.
func (r *Resolver) Resolve(ctx context.Context, d *did.DID) (*did.Document, error) {
	scid, ok := d.SCID()
	if !ok {
		return nil, fmt.Errorf("webvh: resolve: %w", did.ErrUnsupportedMethod)
	}
	_, path, _ := strings.Cut(d.MethodSpecificID, ":")

	entries, err := r.Store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}

	if err := verifyGenesis(entries[0], scid); err != nil {
		return nil, err
	}

	for i := 1; i < len(entries); i++ {
		if err := verifySuccessor(entries[i-1], entries[i], i+1); err != nil {
			return nil, err
		}
	}

	final := entries[len(entries)-1]
	state := final.State
	if final.State.Deactivated {
		state.Deactivated = true
	}
	return &state, nil
}

// verifyGenesis recomputes the SCID from entry #1 with every placeholder
// restored and the proof cleared, and checks it against parameters.scid,
// the versionId prefix, and the genesis proof.
func verifyGenesis(entry LogEntry, scid string) error {
	if !strings.HasPrefix(entry.VersionID, "1-") {
		return ErrVersionSequenceBroken
	}
	if entry.Parameters.SCID != scid {
		return ErrSCIDMismatch
	}

	restored, err := restorePlaceholders(entry, scid)
	if err != nil {
		return err
	}
	recomputed, err := computeSCID(restored)
	if err != nil {
		return err
	}
	if recomputed != scid {
		return ErrSCIDMismatch
	}

	entryHash, err := computeEntryHash(entry, Placeholder)
	if err != nil {
		return err
	}
	if entry.VersionID != "1-"+entryHash {
		return ErrVersionSequenceBroken
	}

	return verifyEntryProofs(entry, entry.Parameters.UpdateKeys)
}

// restorePlaceholders is the inverse of substituteSCID: it puts the literal
// {SCID} placeholder back everywhere the real scid appears, so the genesis
// SCID computation can be recomputed at resolution time.
func restorePlaceholders(entry LogEntry, scid string) (LogEntry, error) {
	e := entry
	e.VersionID = Placeholder
	e.Parameters.SCID = Placeholder
	raw, err := json.Marshal(e)
	if err != nil {
		return LogEntry{}, err
	}
	restored := strings.ReplaceAll(string(raw), scid, Placeholder)
	var out LogEntry
	if err := json.Unmarshal([]byte(restored), &out); err != nil {
		return LogEntry{}, err
	}
	return out, nil
}

// verifySuccessor checks entry e against its predecessor prev:
// versionId numeric prefix, entry-hash chaining, update-key
// attestation via the predecessor's nextKeyHashes, and the proof itself.
func verifySuccessor(prev, e LogEntry, index int) error {
	prefix := strconv.Itoa(index) + "-"
	if !strings.HasPrefix(e.VersionID, prefix) {
		return ErrVersionSequenceBroken
	}

	entryHash, err := computeEntryHash(e, prev.VersionID)
	if err != nil {
		return err
	}
	if e.VersionID != prefix+entryHash {
		return ErrVersionSequenceBroken
	}

	attested := make(map[string]bool, len(prev.Parameters.NextKeyHashes))
	for _, h := range prev.Parameters.NextKeyHashes {
		attested[h] = true
	}
	for _, key := range e.Parameters.UpdateKeys {
		h, err := ncrypto.Base58BTCMultihashOfMultibase(key)
		if err != nil {
			return err
		}
		if !attested[h] {
			return ErrUpdateKeyNotAuthorized
		}
	}

	return verifyEntryProofs(e, e.Parameters.UpdateKeys)
}
