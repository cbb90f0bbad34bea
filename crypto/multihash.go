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

// Package crypto holds the dependency-free primitives the rest of the agent
// builds on: multihash/multibase encoding, JSON canonicalization (JCS),
// detached JWS, AEAD sealing and HD key derivation. Nothing in this package
// performs I/O.
package crypto

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/btcsuite/btcd/btcutil/base58"
	mh "github.com/multiformats/go-multihash"
)

// MultihashSHA256 returns the self-describing multihash of b: the two-byte
// prefix 0x12 0x20 (SHA2-256, 32-byte digest) followed by SHA-256(b).
func MultihashSHA256(b []byte) ([]byte, error) {
	digest := sha256.Sum256(b)
	return mh.Encode(digest[:], mh.SHA2_256)
}

// MultihashSHA256Base58BTC returns the base58-btc encoding of
// MultihashSHA256(b), with no multibase prefix character. This is the form
// used for SCIDs and did-webvh entry hashes.
func MultihashSHA256Base58BTC(b []byte) (string, error) {
	h, err := MultihashSHA256(b)
	if err != nil {
		return "", err
	}
	return base58.Encode(h), nil
}

// MultihashSHA256Base64URLNoPad returns the unpadded base64url encoding of
// MultihashSHA256(b).
func MultihashSHA256Base64URLNoPad(b []byte) (string, error) {
	h, err := MultihashSHA256(b)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(h), nil
}

// Base58BTCMultihashOfMultibase computes the multihash commitment of the
// multibase-encoded string mb itself (used for parameters.nextKeyHashes,
// which commit to the multibase *encoding* of a future update key, not to
// the raw key bytes).
func Base58BTCMultihashOfMultibase(mb string) (string, error) {
	return MultihashSHA256Base58BTC([]byte(mb))
}
