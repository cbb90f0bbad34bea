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
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	ncrypto "github.com/nodecross/nodex/crypto"
)

// Cryptosuite this package signs and verifies; the only one did:webvh
// entries in this module ever carry.
const Cryptosuite = "eddsa-jcs-2022"

const ProofTypeDataIntegrity = "DataIntegrityProof"

// DataIntegrityProof is a W3C Data Integrity proof over the canonical JSON
// of a log entry with its proof field cleared, grounded on the same
// sign-then-attach-then-rehash shape as
// model/signature.go Sign/Verify pair, adapted from Ed25519Signature2018 +
// JSON-LD normalization to eddsa-jcs-2022 + JCS normalization.
type DataIntegrityProof struct {
	Type               string `json:"type"`
	Cryptosuite        string `json:"cryptosuite"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
}

var (
	ErrProofInvalid       = errors.New("webvh: data integrity proof invalid")
	ErrVerificationMethod = errors.New("webvh: verification method is not a did:key")
)

// didKeyVerificationMethod builds the `did:key:<mb>#<mb>` identifier the
// update key's proof carries.
func didKeyVerificationMethod(updateKeyMultibase string) string {
	return "did:key:" + updateKeyMultibase + "#" + updateKeyMultibase
}

// signEntry produces a DataIntegrityProof over entry (with its own proof
// field cleared first) signed by updateKey, whose public half is encoded as
// updateKeyMultibase.
func signEntry(entry LogEntry, updateKey ed25519.PrivateKey, updateKeyMultibase string) (DataIntegrityProof, error) {
	unsigned := entry.withoutProof()
	payload, err := ncrypto.CanonicalJSON(unsigned)
	if err != nil {
		return DataIntegrityProof{}, err
	}

	sig := ed25519.Sign(updateKey, payload)

	return DataIntegrityProof{
		Type:               ProofTypeDataIntegrity,
		Cryptosuite:        Cryptosuite,
		Created:            time.Now().UTC().Format(time.RFC3339),
		VerificationMethod: didKeyVerificationMethod(updateKeyMultibase),
		ProofPurpose:       "authentication",
		ProofValue:         base58.Encode(sig),
	}, nil
}

// verifyEntryProofs checks that every proof attached to entry is a valid
// eddsa-jcs-2022 signature over entry-without-proof, and that each proof's
// verificationMethod decodes to a did:key whose public key multibase
// appears in allowedUpdateKeys (typically entry.Parameters.UpdateKeys).
func verifyEntryProofs(entry LogEntry, allowedUpdateKeys []string) error {
	if len(entry.Proof) == 0 {
		return ErrProofInvalid
	}
	unsigned := entry.withoutProof()
	payload, err := ncrypto.CanonicalJSON(unsigned)
	if err != nil {
		return err
	}

	allowed := make(map[string]bool, len(allowedUpdateKeys))
	for _, k := range allowedUpdateKeys {
		allowed[k] = true
	}

	for _, proof := range entry.Proof {
		if proof.Type != ProofTypeDataIntegrity || proof.Cryptosuite != Cryptosuite {
			return ErrProofInvalid
		}

		mb, ok := verificationMethodKey(proof.VerificationMethod)
		if !ok {
			return ErrVerificationMethod
		}
		if !allowed[mb] {
			return ErrProofInvalid
		}

		pub, err := ncrypto.MultibaseDecodeEd25519Pub(mb)
		if err != nil {
			return ErrProofInvalid
		}

		sig := base58.Decode(proof.ProofValue)
		if !ed25519.Verify(pub, payload, sig) {
			return ErrProofInvalid
		}
	}

	return nil
}

// verificationMethodKey splits a "did:key:<mb>#<mb>" identifier and returns
// the multibase fragment, or false if the shape doesn't match.
func verificationMethodKey(vm string) (string, bool) {
	const prefix = "did:key:"
	if len(vm) <= len(prefix) {
		return "", false
	}
	rest := vm[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '#' {
			head, frag := rest[:i], rest[i+1:]
			if head == "" || head != frag {
				return "", false
			}
			return head, true
		}
	}
	return "", false
}
