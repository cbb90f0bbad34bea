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

// Package didcomm seals and opens authenticated, encrypted messages between
// two DIDs: a JWE envelope with XC20P content encryption, ECDH-ES recipient
// key wrapping, and an ES256K signature over the ciphertext carried in the
// protected header. Encryption always happens before signing, so the
// signature covers the ciphertext.
package didcomm

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Failure kinds surfaced by this package. The HTTP boundary maps these to
// the numeric code table in internal/apierror; nothing here downgrades a
// verification failure to anything weaker.
var (
	ErrSenderNotFound   = errors.New("didcomm: sender not found in protected header")
	ErrSenderMismatch   = errors.New("didcomm: skid does not match sender document")
	ErrPublicKeyMissing = errors.New("didcomm: public key missing from did document")
	ErrNotAddressedToMe = errors.New("didcomm: message is not addressed to me")
	ErrDecryptionFailed = errors.New("didcomm: decryption failed")
	ErrVerifyFailed     = errors.New("didcomm: signature verification failed")
	ErrJSON             = errors.New("didcomm: malformed json")
)

// Media type and algorithm identifiers fixed by the envelope profile.
const (
	TypEncrypted = "application/didcomm-encrypted+json"
	TypPlain     = "application/didcomm-plain+json"
	EncXC20P     = "XC20P"
	AlgKeyWrap   = "ECDH-ES+XC20PKW"
)

// Envelope is the JWE wire form exchanged between agents and relayed by the
// studio. All binary fields are unpadded base64url.
type Envelope struct {
	Ciphertext string      `json:"ciphertext"`
	IV         string      `json:"iv"`
	Protected  string      `json:"protected"`
	Recipients []Recipient `json:"recipients"`
	Tag        string      `json:"tag"`
}

// Recipient wraps the content-encryption key for one recipient DID.
type Recipient struct {
	EncryptedKey string          `json:"encrypted_key"`
	Header       RecipientHeader `json:"header"`
}

// RecipientHeader carries the per-recipient key-agreement parameters; Kid is
// the recipient DID.
type RecipientHeader struct {
	Alg    string   `json:"alg"`
	Epk    Epk      `json:"epk"`
	IV     string   `json:"iv"`
	KeyOps []string `json:"key_ops"`
	Kid    string   `json:"kid"`
	Tag    string   `json:"tag"`
}

// Epk is the sender's ephemeral X25519 public key in JWK form.
type Epk struct {
	Crv string `json:"crv"`
	Kty string `json:"kty"`
	X   string `json:"x"`
}

// protectedHeader is the decoded content of Envelope.Protected. Signature is
// the detached ES256K JWS over the envelope's ciphertext (see seal.go).
type protectedHeader struct {
	Typ       string `json:"typ"`
	Enc       string `json:"enc"`
	SKID      string `json:"skid"`
	Signature string `json:"signature"`
}

func (e *Envelope) decodeProtected() (*protectedHeader, error) {
	raw, err := base64.RawURLEncoding.DecodeString(e.Protected)
	if err != nil {
		return nil, ErrSenderNotFound
	}
	var hdr protectedHeader
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return nil, ErrSenderNotFound
	}
	return &hdr, nil
}

// FindSender decodes only the protected header and returns the sender DID
// (skid). Useful before resolving the sender's DID document, since
// resolution itself is network-bound.
func (e *Envelope) FindSender() (string, error) {
	hdr, err := e.decodeProtected()
	if err != nil {
		return "", err
	}
	if hdr.SKID == "" {
		return "", ErrSenderNotFound
	}
	return hdr.SKID, nil
}

// FindReceivers lists the recipient DIDs (header kid values) in order.
func (e *Envelope) FindReceivers() []string {
	out := make([]string, 0, len(e.Recipients))
	for _, r := range e.Recipients {
		out = append(out, r.Header.Kid)
	}
	return out
}
