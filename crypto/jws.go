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

package crypto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	// ErrUnsupportedAlgorithm is returned when a JWS header names anything
	// other than ES256K, or sets b64 to true (detached JWS requires
	// b64:false, crit:["b64"] per RFC 7797).
	ErrUnsupportedAlgorithm = errors.New("unsupported JWS algorithm or b64 flag")
	ErrMalformedJWS         = errors.New("malformed detached JWS")
)

type jwsHeader struct {
	Alg  string   `json:"alg"`
	B64  bool     `json:"b64"`
	Crit []string `json:"crit"`
}

var detachedHeader = jwsHeader{Alg: "ES256K", B64: false, Crit: []string{"b64"}}

// SignDetachedJWS produces a detached JWS ("<header>..<signature>") over the
// canonical JSON of value, signed with an ES256K (secp256k1) key. The
// payload itself is never embedded in the token, per RFC 7797 b64:false.
func SignDetachedJWS(value any, sk *btcec.PrivateKey) (string, error) {
	headerB64, err := encodeHeader(detachedHeader)
	if err != nil {
		return "", err
	}

	payload, err := CanonicalJSON(value)
	if err != nil {
		return "", err
	}

	signingInput := append([]byte(headerB64+"."), payload...)
	sig, err := Secp256k1ECDSASign(sk, signingInput)
	if err != nil {
		return "", err
	}

	return headerB64 + ".." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// VerifyDetachedJWS re-canonicalizes value and checks it against a detached
// JWS produced by SignDetachedJWS.
func VerifyDetachedJWS(value any, jws string, pk *btcec.PublicKey) (bool, error) {
	parts := strings.Split(jws, ".")
	if len(parts) != 3 || parts[1] != "" {
		return false, ErrMalformedJWS
	}

	var hdr jwsHeader
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return false, ErrMalformedJWS
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return false, ErrMalformedJWS
	}
	if hdr.Alg != "ES256K" || hdr.B64 {
		return false, ErrUnsupportedAlgorithm
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return false, ErrMalformedJWS
	}
	if len(sig) != 64 {
		return false, ErrInvalidSignatureLength
	}

	payload, err := CanonicalJSON(value)
	if err != nil {
		return false, err
	}

	signingInput := append([]byte(parts[0]+"."), payload...)
	return Secp256k1ECDSAVerify(pk, signingInput, sig)
}

func encodeHeader(h jwsHeader) (string, error) {
	b, err := json.Marshal(h)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
