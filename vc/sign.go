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

package vc

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/keyring"
)

const proofType = "EcdsaSecp256k1Signature2019"

var (
	ErrNoProof        = errors.New("vc: credential carries no proof")
	ErrVerifyFailed   = errors.New("vc: proof verification failed")
	ErrNoSigningKey   = errors.New("vc: issuer document has no signing key")
	ErrContextInvalid = errors.New("vc: credential context cannot be expanded")
)

// Sign attaches a detached ES256K JWS proof over the canonical JSON of c
// (with proof cleared) using kr's signing key, referencing the issuer's
// #signingKey verification method. The credential must expand as JSON-LD
// first; a credential whose @context does not resolve is never signed.
func Sign(c *Credential, kr *keyring.Keyring, signedAt time.Time) error {
	if err := PreloadContexts(); err != nil {
		return err
	}
	unsigned := c.withoutProof()
	if _, err := ExpandCredential(&unsigned); err != nil {
		return fmt.Errorf("%w: %v", ErrContextInvalid, err)
	}

	jws, err := ncrypto.SignDetachedJWS(unsigned, kr.Sign())
	if err != nil {
		return err
	}
	c.Proof = &Proof{
		Type:               proofType,
		ProofPurpose:       "authentication",
		Created:            signedAt.UTC().Format(time.RFC3339),
		VerificationMethod: c.Issuer.ID + did.FragmentSigningKey,
		JWS:                jws,
	}
	return nil
}

// Verify checks c's proof against the issuer's resolved DID document. The
// returned error distinguishes a missing proof or key from a signature that
// simply does not verify.
func Verify(c *Credential, issuerDoc *did.Document) error {
	if c.Proof == nil || c.Proof.JWS == "" {
		return ErrNoProof
	}
	vm := issuerDoc.FindVerificationMethod(did.FragmentSigningKey)
	if vm == nil {
		return ErrNoSigningKey
	}
	pubBytes, err := ncrypto.MultibaseDecodeSecp256k1Pub(vm.PublicKeyMultibase)
	if err != nil {
		return ErrNoSigningKey
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return ErrNoSigningKey
	}

	ok, err := ncrypto.VerifyDetachedJWS(c.withoutProof(), c.Proof.JWS, pub)
	if err != nil || !ok {
		return ErrVerifyFailed
	}
	return nil
}
