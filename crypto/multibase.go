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
	"errors"

	"github.com/multiformats/go-multibase"
)

// multicodec varint prefixes, as used by did:key (https://w3c-ccg.github.io/did-method-key/).
var (
	ed25519PubMulticodec   = []byte{0xed, 0x01}
	x25519PubMulticodec    = []byte{0xec, 0x01}
	secp256k1PubMulticodec = []byte{0xe7, 0x01}
)

var (
	ErrInvalidMultibase = errors.New("invalid multibase encoding")
)

// MultibaseEncodeEd25519Pub encodes an Ed25519 public key as a
// base58-btc multibase string ("z..."), per the did:key method.
func MultibaseEncodeEd25519Pub(pub []byte) (string, error) {
	return multibase.Encode(multibase.Base58BTC, append(append([]byte{}, ed25519PubMulticodec...), pub...))
}

// MultibaseEncodeX25519Pub encodes an X25519 public key as a base58-btc
// multibase string.
func MultibaseEncodeX25519Pub(pub []byte) (string, error) {
	return multibase.Encode(multibase.Base58BTC, append(append([]byte{}, x25519PubMulticodec...), pub...))
}

// MultibaseEncodeSecp256k1Pub encodes a compressed secp256k1 public key as a
// base58-btc multibase string, used for the #signingKey verification method.
func MultibaseEncodeSecp256k1Pub(pub []byte) (string, error) {
	return multibase.Encode(multibase.Base58BTC, append(append([]byte{}, secp256k1PubMulticodec...), pub...))
}

// MultibaseDecodeSecp256k1Pub reverses MultibaseEncodeSecp256k1Pub.
func MultibaseDecodeSecp256k1Pub(mb string) ([]byte, error) {
	return decodeMulticodec(mb, secp256k1PubMulticodec)
}

// MultibaseDecodeEd25519Pub reverses MultibaseEncodeEd25519Pub and validates
// the multicodec prefix.
func MultibaseDecodeEd25519Pub(mb string) ([]byte, error) {
	return decodeMulticodec(mb, ed25519PubMulticodec)
}

// MultibaseDecodeX25519Pub reverses MultibaseEncodeX25519Pub.
func MultibaseDecodeX25519Pub(mb string) ([]byte, error) {
	return decodeMulticodec(mb, x25519PubMulticodec)
}

func decodeMulticodec(mb string, prefix []byte) ([]byte, error) {
	_, data, err := multibase.Decode(mb)
	if err != nil {
		return nil, ErrInvalidMultibase
	}
	if len(data) <= len(prefix) || data[0] != prefix[0] || data[1] != prefix[1] {
		return nil, ErrInvalidMultibase
	}
	return data[len(prefix):], nil
}
