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
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"
	"time"

	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
)

// Update appends a new entry to the log at d's path: state
// becomes newState, parameters carry nextUpdateKeys' commitments as the new
// nextKeyHashes, and the entry is signed with signingKey, whose multibase
// form signingKeyMultibase becomes the new entry's sole updateKey; Resolve
// accepts the entry only if the previous entry's nextKeyHashes commit to
// that key. nextUpdateKeys are the multibase-encoded Ed25519 keys that will be
// authorized to sign the *following* entry.
func Update(
	ctx context.Context,
	store DataStore,
	d *did.DID,
	newState did.Document,
	signingKey ed25519.PrivateKey,
	signingKeyMultibase string,
	nextUpdateKeys []string,
) (*did.Document, error) {
	entry, path, err := buildSuccessorEntry(ctx, store, d, newState, signingKey, signingKeyMultibase, nextUpdateKeys)
	if err != nil {
		return nil, err
	}
	if err := store.Put(ctx, path, entry); err != nil {
		return nil, fmt.Errorf("webvh: update: %w", err)
	}
	result := entry.State
	return &result, nil
}

// Deactivate appends a terminal entry whose state sets Deactivated, keeping
// every other field (verification methods, services) as currentState left
// them; deactivation is an update whose state sets
// deactivated=true and is terminal. It is submitted via DataStore.Delete.
func Deactivate(
	ctx context.Context,
	store DataStore,
	d *did.DID,
	currentState did.Document,
	signingKey ed25519.PrivateKey,
	signingKeyMultibase string,
) (*did.Document, error) {
	deactivated := currentState
	deactivated.Deactivated = true

	entry, path, err := buildSuccessorEntry(ctx, store, d, deactivated, signingKey, signingKeyMultibase, nil)
	if err != nil {
		return nil, err
	}
	if err := store.Delete(ctx, path, entry); err != nil {
		return nil, fmt.Errorf("webvh: deactivate: %w", err)
	}
	result := entry.State
	return &result, nil
}

// buildSuccessorEntry fetches the current log, builds and signs the next
// entry in sequence, and returns it together with the log path —
// shared by Update (PUT) and Deactivate (DELETE), which differ only in
// which DataStore verb they submit the entry through.
func buildSuccessorEntry(
	ctx context.Context,
	store DataStore,
	d *did.DID,
	newState did.Document,
	signingKey ed25519.PrivateKey,
	signingKeyMultibase string,
	nextUpdateKeys []string,
) (LogEntry, string, error) {
	scid, ok := d.SCID()
	if !ok {
		return LogEntry{}, "", fmt.Errorf("webvh: update: %w", did.ErrUnsupportedMethod)
	}
	_, path, _ := strings.Cut(d.MethodSpecificID, ":")

	entries, err := store.Get(ctx, path)
	if err != nil {
		return LogEntry{}, "", fmt.Errorf("webvh: update: fetch log: %w", err)
	}
	if len(entries) == 0 {
		return LogEntry{}, "", ErrNotFound
	}
	prev := entries[len(entries)-1]

	nextHashes := make([]string, 0, len(nextUpdateKeys))
	for _, mb := range nextUpdateKeys {
		h, err := ncrypto.Base58BTCMultihashOfMultibase(mb)
		if err != nil {
			return LogEntry{}, "", fmt.Errorf("webvh: update: hash next key: %w", err)
		}
		nextHashes = append(nextHashes, h)
	}

	entry := LogEntry{
		VersionTime: time.Now().UTC().Format(time.RFC3339),
		Parameters: Parameters{
			Portable:      prev.Parameters.Portable,
			UpdateKeys:    []string{signingKeyMultibase},
			NextKeyHashes: nextHashes,
			Method:        MethodVersion,
			SCID:          scid,
		},
		State: newState,
	}

	index := len(entries) + 1
	entryHash, err := computeEntryHash(entry, prev.VersionID)
	if err != nil {
		return LogEntry{}, "", fmt.Errorf("webvh: update: entry hash: %w", err)
	}
	entry.VersionID = strconv.Itoa(index) + "-" + entryHash

	proof, err := signEntry(entry, signingKey, signingKeyMultibase)
	if err != nil {
		return LogEntry{}, "", fmt.Errorf("webvh: update: sign proof: %w", err)
	}
	entry.Proof = []DataIntegrityProof{proof}

	return entry, path, nil
}
