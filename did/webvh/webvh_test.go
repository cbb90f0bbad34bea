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

package webvh_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/did/webvh"
	"github.com/nodecross/nodex/did/webvh/webvhtest"
	"github.com/nodecross/nodex/keyring"
)

var scidPattern = regexp.MustCompile(`^did:webvh:[1-9A-HJ-NP-Za-km-z]{46,50}:`)

func freshKeyring(t *testing.T) *keyring.Keyring {
	t.Helper()
	kr, _, err := keyring.Create(rand.Reader)
	require.NoError(t, err)
	return kr
}

// TestCreateAndResolve: creating a
// fresh identity and resolving it returns a document whose id matches the
// webvh SCID shape and carries all three required verification methods.
func TestCreateAndResolve(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	kr := freshKeyring(t)

	doc, err := webvh.Create(context.Background(), store, "example.com%3A8443", false, kr)
	require.NoError(t, err)
	assert.Regexp(t, scidPattern, doc.ID)
	assert.NotNil(t, doc.FindVerificationMethod(did.FragmentSigningKey))
	assert.NotNil(t, doc.FindVerificationMethod(did.FragmentEncryptionKey))
	assert.NotNil(t, doc.FindVerificationMethod(did.FragmentSignTimeSeriesKey))

	parsed, err := did.Parse(doc.ID)
	require.NoError(t, err)

	resolved, err := webvh.NewResolver(store).Resolve(context.Background(), parsed)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, resolved.ID)
	assert.False(t, resolved.Deactivated)
}

// TestSCIDStability: recomputing the SCID from the
// substituted genesis entry's placeholders-restored form must equal the
// stored parameters.scid, which Resolve enforces as a hard failure.
func TestSCIDStability(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	kr := freshKeyring(t)

	doc, err := webvh.Create(context.Background(), store, "example.com", true, kr)
	require.NoError(t, err)

	parsed, err := did.Parse(doc.ID)
	require.NoError(t, err)
	_, err = webvh.NewResolver(store).Resolve(context.Background(), parsed)
	require.NoError(t, err, "recomputed SCID must match parameters.scid or Resolve fails")
}

// TestUpdateAppendsVerifiableEntry covers the append path: the new
// entry's versionId carries the "2-" prefix, its updateKeys are attested by
// the genesis entry's nextKeyHashes (kr.NextKey is the only key committed
// to at genesis), and Resolve accepts the two-entry log end to end.
func TestUpdateAppendsVerifiableEntry(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	kr := freshKeyring(t)

	doc, err := webvh.Create(context.Background(), store, "example.com", false, kr)
	require.NoError(t, err)
	parsed, err := did.Parse(doc.ID)
	require.NoError(t, err)

	nextMB, err := ncrypto.MultibaseEncodeEd25519Pub(kr.NextKey().Public().(ed25519.PublicKey))
	require.NoError(t, err)

	updated := *doc
	updated.Service = []did.Service{{ID: doc.ID + "#svc", Type: "LinkedDomains", ServiceEndpoint: "https://example.com"}}

	result, err := webvh.Update(context.Background(), store, parsed, updated, kr.NextKey(), nextMB, nil)
	require.NoError(t, err)
	assert.Len(t, result.Service, 1)

	resolved, err := webvh.NewResolver(store).Resolve(context.Background(), parsed)
	require.NoError(t, err)
	assert.Len(t, resolved.Service, 1)
}

// TestUpdateKeyNotAuthorizedIsRejected: an
// entry whose signing key was never committed to by the predecessor's
// nextKeyHashes must fail resolution with ErrUpdateKeyNotAuthorized.
func TestUpdateKeyNotAuthorizedIsRejected(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	kr := freshKeyring(t)

	doc, err := webvh.Create(context.Background(), store, "example.com", false, kr)
	require.NoError(t, err)
	parsed, err := did.Parse(doc.ID)
	require.NoError(t, err)

	rogue := freshKeyring(t)
	rogueMB, err := ncrypto.MultibaseEncodeEd25519Pub(rogue.Update().Public().(ed25519.PublicKey))
	require.NoError(t, err)

	_, err = webvh.Update(context.Background(), store, parsed, *doc, rogue.Update(), rogueMB, nil)
	require.NoError(t, err, "Update itself doesn't validate; the rejection happens at Resolve")

	_, err = webvh.NewResolver(store).Resolve(context.Background(), parsed)
	require.ErrorIs(t, err, webvh.ErrUpdateKeyNotAuthorized)
}

// TestDeactivateIsTerminal: the final
// entry's state.deactivated surfaces through Resolve.
func TestDeactivateIsTerminal(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	kr := freshKeyring(t)

	doc, err := webvh.Create(context.Background(), store, "example.com", false, kr)
	require.NoError(t, err)
	parsed, err := did.Parse(doc.ID)
	require.NoError(t, err)

	nextMB, err := ncrypto.MultibaseEncodeEd25519Pub(kr.NextKey().Public().(ed25519.PublicKey))
	require.NoError(t, err)

	_, err = webvh.Deactivate(context.Background(), store, parsed, *doc, kr.NextKey(), nextMB)
	require.NoError(t, err)

	resolved, err := webvh.NewResolver(store).Resolve(context.Background(), parsed)
	require.NoError(t, err)
	assert.True(t, resolved.Deactivated)
}
