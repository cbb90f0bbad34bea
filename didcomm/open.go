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

package didcomm

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/keyring"
	"github.com/nodecross/nodex/utils/zero"
)

// VerifyAndDecrypt opens env: it checks the protected header's skid against
// fromDoc, verifies the outer ES256K signature with fromDoc's #signingKey,
// and only then unwraps the CEK with toKeyring's encrypt secret and decrypts
// the payload. Every recipient slot is tried; a keyring that cannot unwrap
// any of them gets ErrDecryptionFailed, never an internal error.
func VerifyAndDecrypt(env *Envelope, fromDoc *did.Document, toKeyring *keyring.Keyring) (*Message, error) {
	hdr, err := env.decodeProtected()
	if err != nil {
		return nil, err
	}
	if hdr.SKID == "" {
		return nil, ErrSenderNotFound
	}
	if hdr.SKID != fromDoc.ID {
		return nil, ErrSenderMismatch
	}

	if err := verifyOuterSignature(env, hdr, fromDoc); err != nil {
		return nil, err
	}

	_, encPriv := toKeyring.EncryptKeyPair()
	plaintext, err := decryptPayload(env, encPriv)
	if err != nil {
		return nil, err
	}

	var msg Message
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJSON, err)
	}
	return &msg, nil
}

// VerifyAndDecryptContainer is VerifyAndDecrypt plus metadata-attachment
// lifting, the shape the HTTP boundary returns.
func VerifyAndDecryptContainer(env *Envelope, fromDoc *did.Document, toKeyring *keyring.Keyring) (*VerifiedContainer, error) {
	msg, err := VerifyAndDecrypt(env, fromDoc, toKeyring)
	if err != nil {
		return nil, err
	}
	return Container(msg), nil
}

func verifyOuterSignature(env *Envelope, hdr *protectedHeader, fromDoc *did.Document) error {
	vm := fromDoc.FindVerificationMethod(did.FragmentSigningKey)
	if vm == nil {
		return ErrPublicKeyMissing
	}
	pubBytes, err := ncrypto.MultibaseDecodeSecp256k1Pub(vm.PublicKeyMultibase)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPublicKeyMissing, err)
	}
	pub, err := btcec.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPublicKeyMissing, err)
	}

	ok, err := ncrypto.VerifyDetachedJWS(signedPart{
		Ciphertext: env.Ciphertext,
		IV:         env.IV,
		SKID:       hdr.SKID,
		Tag:        env.Tag,
	}, hdr.Signature, pub)
	if err != nil || !ok {
		return ErrVerifyFailed
	}
	return nil
}

func decryptPayload(env *Envelope, encPriv []byte) ([]byte, error) {
	iv, err := base64.RawURLEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	tag, err := base64.RawURLEncoding.DecodeString(env.Tag)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	sealed := append(ciphertext, tag...)

	for _, r := range env.Recipients {
		cek, err := unwrapRecipient(&r, encPriv)
		if err != nil {
			continue
		}
		plaintext, err := ncrypto.XC20POpen(cek, iv, sealed, nil)
		zero.Bytes(cek)
		if err != nil {
			continue
		}
		return plaintext, nil
	}
	return nil, ErrDecryptionFailed
}

func unwrapRecipient(r *Recipient, encPriv []byte) ([]byte, error) {
	ephPub, err := base64.RawURLEncoding.DecodeString(r.Header.Epk.X)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	keyIV, err := base64.RawURLEncoding.DecodeString(r.Header.IV)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	encryptedKey, err := base64.RawURLEncoding.DecodeString(r.EncryptedKey)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	keyTag, err := base64.RawURLEncoding.DecodeString(r.Header.Tag)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	shared, err := ncrypto.X25519ECDH(encPriv, ephPub)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	defer zero.Bytes(shared)
	kek := sha256.Sum256(shared)
	defer zero.Bytes(kek[:])

	cek, err := ncrypto.XC20POpen(kek[:], keyIV, append(encryptedKey, keyTag...), nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return cek, nil
}
