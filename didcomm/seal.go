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
	"time"

	"github.com/google/uuid"
	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/keyring"
	"github.com/nodecross/nodex/utils/zero"
)

const (
	cekSize     = 32
	xNonceSize  = 24
	polyTagSize = 16
)

// signedPart is the value the outer ES256K signature covers: the sealed
// ciphertext plus the sender identity. Tamper with any byte of the
// ciphertext and verification fails before decryption is attempted.
type signedPart struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	SKID       string `json:"skid"`
	Tag        string `json:"tag"`
}

// EncryptAndSign seals body (plus optional attachments) from the sender
// identified by fromDID into an Envelope addressed to toDoc's subject:
// XC20P content encryption under a fresh CEK, the CEK wrapped for the
// recipient's #encryptionKey via ephemeral X25519 ECDH, then the whole
// ciphertext signed with the sender's secp256k1 signing key.
func EncryptAndSign(body, fromDID string, fromKeyring *keyring.Keyring, toDoc *did.Document, attachments []Attachment) (*Envelope, error) {
	vm := toDoc.FindVerificationMethod(did.FragmentEncryptionKey)
	if vm == nil {
		return nil, ErrPublicKeyMissing
	}
	recipientPub, err := ncrypto.MultibaseDecodeX25519Pub(vm.PublicKeyMultibase)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPublicKeyMissing, err)
	}

	msg := Message{
		ID:          uuid.NewString(),
		Typ:         TypPlain,
		From:        fromDID,
		To:          []string{toDoc.ID},
		CreatedTime: time.Now().Unix(),
		Body:        body,
		Attachments: attachments,
	}
	plaintext, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJSON, err)
	}

	cek, err := ncrypto.RandomBytes(cekSize)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(cek)

	iv, err := ncrypto.RandomBytes(xNonceSize)
	if err != nil {
		return nil, err
	}
	sealed, err := ncrypto.XC20PSeal(cek, iv, plaintext, nil)
	if err != nil {
		return nil, err
	}
	ciphertext, tag := splitTag(sealed)

	recipient, err := wrapRecipient(cek, recipientPub, toDoc.ID)
	if err != nil {
		return nil, err
	}

	env := &Envelope{
		Ciphertext: b64(ciphertext),
		IV:         b64(iv),
		Recipients: []Recipient{*recipient},
		Tag:        b64(tag),
	}

	signature, err := ncrypto.SignDetachedJWS(signedPart{
		Ciphertext: env.Ciphertext,
		IV:         env.IV,
		SKID:       fromDID,
		Tag:        env.Tag,
	}, fromKeyring.Sign())
	if err != nil {
		return nil, err
	}

	hdr, err := json.Marshal(protectedHeader{
		Typ:       TypEncrypted,
		Enc:       EncXC20P,
		SKID:      fromDID,
		Signature: signature,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJSON, err)
	}
	env.Protected = base64.RawURLEncoding.EncodeToString(hdr)

	return env, nil
}

// wrapRecipient wraps cek for one recipient: ephemeral X25519 ECDH against
// the recipient's public key, the shared secret hashed into a KEK, and the
// CEK sealed under the KEK with its own nonce.
func wrapRecipient(cek, recipientPub []byte, kid string) (*Recipient, error) {
	ephPub, ephPriv, err := ncrypto.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(ephPriv)

	shared, err := ncrypto.X25519ECDH(ephPriv, recipientPub)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(shared)
	kek := sha256.Sum256(shared)
	defer zero.Bytes(kek[:])

	keyIV, err := ncrypto.RandomBytes(xNonceSize)
	if err != nil {
		return nil, err
	}
	sealedKey, err := ncrypto.XC20PSeal(kek[:], keyIV, cek, nil)
	if err != nil {
		return nil, err
	}
	encryptedKey, keyTag := splitTag(sealedKey)

	return &Recipient{
		EncryptedKey: b64(encryptedKey),
		Header: RecipientHeader{
			Alg:    AlgKeyWrap,
			Epk:    Epk{Crv: "X25519", Kty: "OKP", X: b64(ephPub)},
			IV:     b64(keyIV),
			KeyOps: []string{"wrapKey"},
			Kid:    kid,
			Tag:    b64(keyTag),
		},
	}, nil
}

func splitTag(sealed []byte) (ciphertext, tag []byte) {
	n := len(sealed) - polyTagSize
	return sealed[:n], sealed[n:]
}

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
