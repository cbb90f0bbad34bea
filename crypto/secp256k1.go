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
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// ErrInvalidSignatureLength is returned whenever a raw secp256k1 or
// detached-JWS signature is not exactly 64 bytes (r||s).
var ErrInvalidSignatureLength = errors.New("invalid signature length")

// GenerateSecp256k1KeyPair returns a new secp256k1 keypair.
func GenerateSecp256k1KeyPair() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// Secp256k1ECDSASign signs sha256(message) and returns a fixed 64-byte
// r||s encoding (never DER), matching the detached-JWS ES256K profile.
func Secp256k1ECDSASign(sk *btcec.PrivateKey, message []byte) ([]byte, error) {
	hash := sha256.Sum256(message)
	r, s, err := ecdsa.Sign(rand.Reader, sk.ToECDSA(), hash[:])
	if err != nil {
		return nil, err
	}
	return serializeRS(r, s), nil
}

// Secp256k1ECDSAVerify verifies a 64-byte r||s signature over sha256(message).
func Secp256k1ECDSAVerify(pk *btcec.PublicKey, message, signature []byte) (bool, error) {
	if len(signature) != 64 {
		return false, ErrInvalidSignatureLength
	}
	r := new(big.Int).SetBytes(signature[:32])
	s := new(big.Int).SetBytes(signature[32:])
	hash := sha256.Sum256(message)
	return ecdsa.Verify(pk.ToECDSA(), hash[:], r, s), nil
}

func serializeRS(r, s *big.Int) []byte {
	out := make([]byte, 64)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(out[32-len(rBytes):32], rBytes)
	copy(out[64-len(sBytes):64], sBytes)
	return out
}

// PublicKeyFromECDSA adapts a generic *ecdsa.PublicKey (as decoded from
// storage) back into a btcec key for verification.
func PublicKeyFromECDSA(pub *ecdsa.PublicKey) *btcec.PublicKey {
	x, y := new(btcec.FieldVal), new(btcec.FieldVal)
	x.SetByteSlice(pub.X.Bytes())
	y.SetByteSlice(pub.Y.Bytes())
	return btcec.NewPublicKey(x, y)
}
