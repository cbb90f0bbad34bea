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
	"time"

	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/keyring"
)

// placeholderDID is the did:webvh string carrying the literal SCID
// placeholder, used while building the genesis document.
func placeholderDID(path string) string {
	return fmt.Sprintf("did:webvh:%s:%s", Placeholder, path)
}

// buildDocument assembles the DID Document for subject from the keyring's
// public verification methods, wiring the key-purpose lists (authentication,
// assertionMethod, keyAgreement, capabilityInvocation/Delegation) to
// #signingKey / #encryptionKey.
func buildDocument(subject string, kr *keyring.Keyring) (did.Document, error) {
	vms, err := kr.ToVerificationMethods(subject)
	if err != nil {
		return did.Document{}, fmt.Errorf("webvh: verification methods: %w", err)
	}

	return did.Document{
		Context:              did.DefaultContext,
		ID:                   subject,
		VerificationMethod:   vms,
		Authentication:       []string{subject + did.FragmentSigningKey},
		AssertionMethod:      []string{subject + did.FragmentSigningKey},
		KeyAgreement:         []string{subject + did.FragmentEncryptionKey},
		CapabilityInvocation: []string{subject + did.FragmentSigningKey},
		CapabilityDelegation: []string{subject + did.FragmentSigningKey},
		Created:              time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Create runs the genesis algorithm: build the placeholder document,
// compute the SCID, substitute it in, sign the entry with the keyring's
// update key, and post the resulting single-entry log to store at path.
func Create(ctx context.Context, store DataStore, path string, portable bool, kr *keyring.Keyring) (*did.Document, error) {
	subject := placeholderDID(path)

	doc, err := buildDocument(subject, kr)
	if err != nil {
		return nil, err
	}

	updatePub := kr.Update().Public().(ed25519.PublicKey)
	updateMB, err := ncrypto.MultibaseEncodeEd25519Pub(updatePub)
	if err != nil {
		return nil, fmt.Errorf("webvh: create: encode update key: %w", err)
	}

	nextPub := kr.NextKey().Public().(ed25519.PublicKey)
	nextMB, err := ncrypto.MultibaseEncodeEd25519Pub(nextPub)
	if err != nil {
		return nil, fmt.Errorf("webvh: create: encode next key: %w", err)
	}
	nextHash, err := ncrypto.Base58BTCMultihashOfMultibase(nextMB)
	if err != nil {
		return nil, fmt.Errorf("webvh: create: hash next key: %w", err)
	}

	preEntry := LogEntry{
		VersionID:   Placeholder,
		VersionTime: time.Now().UTC().Format(time.RFC3339),
		Parameters: Parameters{
			Portable:      portable,
			UpdateKeys:    []string{updateMB},
			NextKeyHashes: []string{nextHash},
			Method:        MethodVersion,
			SCID:          Placeholder,
		},
		State: doc,
	}

	scid, err := computeSCID(preEntry)
	if err != nil {
		return nil, fmt.Errorf("webvh: create: compute scid: %w", err)
	}

	entry, err := substituteSCID(preEntry, scid)
	if err != nil {
		return nil, fmt.Errorf("webvh: create: substitute scid: %w", err)
	}

	entryHash, err := computeEntryHash(entry, Placeholder)
	if err != nil {
		return nil, fmt.Errorf("webvh: create: entry hash: %w", err)
	}
	entry.VersionID = "1-" + entryHash

	proof, err := signEntry(entry, kr.Update(), updateMB)
	if err != nil {
		return nil, fmt.Errorf("webvh: create: sign proof: %w", err)
	}
	entry.Proof = []DataIntegrityProof{proof}

	if err := store.Post(ctx, path, []LogEntry{entry}); err != nil {
		return nil, fmt.Errorf("webvh: create: %w", err)
	}

	result := entry.State
	return &result, nil
}
