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
	"github.com/tyler-smith/go-bip39"
)

// BIP39Seed generates a fresh BIP-39 mnemonic at the given entropy size (in
// bits, must be a multiple of 32 between 128 and 256) together with the
// 64-byte seed it derives via the bip39.NewEntropy / bip39.NewMnemonic /
// bip39.NewSeed sequence.
func BIP39Seed(entropyBits int, passphrase string) (mnemonic string, seed []byte, err error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", nil, err
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, err
	}
	seed = bip39.NewSeed(mnemonic, passphrase)
	return mnemonic, seed, nil
}

// BIP39SeedFromMnemonic recovers the seed from an existing mnemonic, used
// when restoring a keyring from a recovery phrase.
func BIP39SeedFromMnemonic(mnemonic, passphrase string) []byte {
	return bip39.NewSeed(mnemonic, passphrase)
}

// BIP39SeedFromEntropy builds a mnemonic and seed from caller-supplied
// entropy (16-32 bytes), rather than generating fresh entropy internally.
// Used by keyring.Create so that the RandomSource it's handed actually
// drives key generation instead of being discarded in favor of
// crypto/rand.
func BIP39SeedFromEntropy(entropy []byte, passphrase string) (mnemonic string, seed []byte, err error) {
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, err
	}
	seed = bip39.NewSeed(mnemonic, passphrase)
	return mnemonic, seed, nil
}
