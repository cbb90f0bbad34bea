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

package keyring

import (
	"crypto/ed25519"

	"github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
)

// ToVerificationMethods returns the three public verification methods a
// fresh DID Document must carry: #signingKey (secp256k1), #encryptionKey
// (X25519), #signTimeSeriesKey (Ed25519, from the update role).
func (k *Keyring) ToVerificationMethods(subject string) ([]did.VerificationMethod, error) {
	signPub := k.Sign().PubKey().SerializeCompressed()
	signMB, err := crypto.MultibaseEncodeSecp256k1Pub(signPub)
	if err != nil {
		return nil, err
	}

	encPub, _ := k.EncryptKeyPair()
	encMB, err := crypto.MultibaseEncodeX25519Pub(encPub)
	if err != nil {
		return nil, err
	}

	signTimePub := k.Update().Public().(ed25519.PublicKey)
	signTimeMB, err := crypto.MultibaseEncodeEd25519Pub(signTimePub)
	if err != nil {
		return nil, err
	}

	return []did.VerificationMethod{
		{
			ID:                 subject + did.FragmentSigningKey,
			Type:               did.TypeMultikey,
			Controller:         subject,
			PublicKeyMultibase: signMB,
		},
		{
			ID:                 subject + did.FragmentEncryptionKey,
			Type:               did.TypeMultikey,
			Controller:         subject,
			PublicKeyMultibase: encMB,
		},
		{
			ID:                 subject + did.FragmentSignTimeSeriesKey,
			Type:               did.TypeMultikey,
			Controller:         subject,
			PublicKeyMultibase: signTimeMB,
		},
	}, nil
}
