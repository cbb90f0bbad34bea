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

// Package keyring owns the agent's six-role keypair bundle: sign (secp256k1),
// update and next_key (Ed25519), encrypt (X25519), and the two legacy
// sidetree commitment roles (secp256k1). It never performs network I/O; it
// is handed a Keystore capability by its caller.
package keyring

import (
	"crypto/ed25519"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/crypto/slip10"
	"github.com/nodecross/nodex/utils/zero"
)

// Role identifies one of the six keypairs a Keyring owns.
type Role string

const (
	RoleSign             Role = "sign"
	RoleUpdate           Role = "update"
	RoleNextKey          Role = "next_key"
	RoleEncrypt          Role = "encrypt"
	RoleSidetreeUpdate   Role = "sidetree_update"
	RoleSidetreeRecovery Role = "sidetree_recovery"
)

// Roles lists all six roles in the fixed order create/load/save iterate over.
var Roles = []Role{RoleSign, RoleUpdate, RoleNextKey, RoleEncrypt, RoleSidetreeUpdate, RoleSidetreeRecovery}

// Curve names recorded alongside key material.
const (
	CurveSecp256k1 = "secp256k1"
	CurveEd25519   = "Ed25519"
	CurveX25519    = "X25519"
)

func curveForRole(r Role) string {
	switch r {
	case RoleSign, RoleSidetreeUpdate, RoleSidetreeRecovery:
		return CurveSecp256k1
	case RoleUpdate, RoleNextKey:
		return CurveEd25519
	case RoleEncrypt:
		return CurveX25519
	default:
		return ""
	}
}

// derivationIndex assigns each role a distinct SLIP-10 hardened child index
// under the keyring's master seed. These numbers have no external meaning;
// they only need to be stable across save/load of the same seed.
var derivationIndex = map[Role]uint32{
	RoleSign:             1,
	RoleUpdate:           2,
	RoleNextKey:          3,
	RoleEncrypt:          4,
	RoleSidetreeUpdate:   5,
	RoleSidetreeRecovery: 6,
}

var (
	ErrKeyNotFound    = errors.New("keyring: key material not found")
	ErrPartialKeyring = errors.New("keyring: partial load is not allowed")
	ErrUnknownRole    = errors.New("keyring: unknown role")
)

// KeyMaterial is the opaque record a Keystore persists for one role.
type KeyMaterial struct {
	Role    Role   `json:"role"`
	Curve   string `json:"curve"`
	Private []byte `json:"private"`
	Public  []byte `json:"public"`
}

func (km *KeyMaterial) Zero() {
	if km == nil {
		return
	}
	zero.Bytes(km.Private)
}

// Keyring is the immutable, read-only-after-load view of all six keypairs.
// Exactly one of secp/ed25/x25priv+x25pub is populated per role; accessor
// methods below pick the right one.
type Keyring struct {
	secp   map[Role]*btcec.PrivateKey
	ed25   map[Role]ed25519.PrivateKey
	x25pub map[Role][]byte
	x25priv map[Role][]byte
}

// Create generates all six keypairs from fresh entropy read from rng (the
// agent's RandomSource — see randomsource.go). It also returns the BIP-39
// recovery mnemonic for the master seed, which the caller is responsible
// for surfacing to the operator exactly once.
func Create(rng io.Reader) (*Keyring, string, error) {
	entropy := make([]byte, 32)
	if _, err := io.ReadFull(rng, entropy); err != nil {
		return nil, "", err
	}
	defer zero.Bytes(entropy)

	mnemonic, seed, err := ncrypto.BIP39SeedFromEntropy(entropy, "")
	if err != nil {
		return nil, "", err
	}

	kr, err := fromSeed(seed)
	zero.Bytes(seed)
	if err != nil {
		return nil, "", err
	}
	return kr, mnemonic, nil
}

// CreateFromMnemonic rebuilds a keyring deterministically from an existing
// recovery phrase, used by account recovery flows.
func CreateFromMnemonic(mnemonic string) (*Keyring, error) {
	seed := ncrypto.BIP39SeedFromMnemonic(mnemonic, "")
	defer zero.Bytes(seed)
	return fromSeed(seed)
}

func fromSeed(seed []byte) (*Keyring, error) {
	kr := &Keyring{
		secp:    map[Role]*btcec.PrivateKey{},
		ed25:    map[Role]ed25519.PrivateKey{},
		x25pub:  map[Role][]byte{},
		x25priv: map[Role][]byte{},
	}

	for _, role := range Roles {
		node, err := slip10.Derive(seed, derivationIndex[role])
		if err != nil {
			return nil, err
		}

		switch curveForRole(role) {
		case CurveSecp256k1:
			sk, err := node.Secp256k1()
			if err != nil {
				node.Zero()
				return nil, err
			}
			kr.secp[role] = sk
		case CurveEd25519:
			_, priv, err := node.Ed25519()
			if err != nil {
				node.Zero()
				return nil, err
			}
			kr.ed25[role] = priv
		case CurveX25519:
			pub, priv, err := node.X25519()
			if err != nil {
				node.Zero()
				return nil, err
			}
			kr.x25priv[role] = priv
			kr.x25pub[role] = pub
		}
		node.Zero()
	}

	return kr, nil
}

// Sign returns the secp256k1 keypair used for JWS signatures.
func (k *Keyring) Sign() *btcec.PrivateKey { return k.secp[RoleSign] }

// Update returns the Ed25519 keypair that authorizes the next did-webvh
// log entry.
func (k *Keyring) Update() ed25519.PrivateKey { return k.ed25[RoleUpdate] }

// NextKey returns the Ed25519 keypair committed to (by hash) as the
// authority for the entry after the one currently being signed. It
// must never be revealed before that transition; callers outside this
// package should only ever persist/compare its public multihash commitment,
// never serialize the private half back out.
func (k *Keyring) NextKey() ed25519.PrivateKey { return k.ed25[RoleNextKey] }

// EncryptKeyPair returns the X25519 (public, private) pair used for JWE
// recipient wrapping.
func (k *Keyring) EncryptKeyPair() (pub, priv []byte) {
	return k.x25pub[RoleEncrypt], k.x25priv[RoleEncrypt]
}

// SidetreeUpdate and SidetreeRecovery are retained only as inert key
// material for the legacy sidetree method, which this module does not
// implement; they are inert key material kept so the bundle stays whole.
func (k *Keyring) SidetreeUpdate() *btcec.PrivateKey   { return k.secp[RoleSidetreeUpdate] }
func (k *Keyring) SidetreeRecovery() *btcec.PrivateKey { return k.secp[RoleSidetreeRecovery] }

// Zero overwrites every secret scalar this keyring holds. The Keyring must
// not be used afterwards.
func (k *Keyring) Zero() {
	for _, sk := range k.secp {
		if sk != nil {
			sk.Zero()
		}
	}
	for _, priv := range k.ed25 {
		zero.Bytes(priv)
	}
	for _, priv := range k.x25priv {
		zero.Bytes(priv)
	}
}

// materialize converts the internal typed keys into the persistable
// KeyMaterial records a Keystore writes, in Roles order.
func (k *Keyring) materialize() ([]*KeyMaterial, error) {
	out := make([]*KeyMaterial, 0, len(Roles))
	for _, role := range Roles {
		switch curveForRole(role) {
		case CurveSecp256k1:
			sk := k.secp[role]
			out = append(out, &KeyMaterial{
				Role:    role,
				Curve:   CurveSecp256k1,
				Private: sk.Serialize(),
				Public:  sk.PubKey().SerializeCompressed(),
			})
		case CurveEd25519:
			priv := k.ed25[role]
			out = append(out, &KeyMaterial{
				Role:    role,
				Curve:   CurveEd25519,
				Private: append([]byte{}, priv...),
				Public:  append([]byte{}, priv.Public().(ed25519.PublicKey)...),
			})
		case CurveX25519:
			out = append(out, &KeyMaterial{
				Role:    role,
				Curve:   CurveX25519,
				Private: append([]byte{}, k.x25priv[role]...),
				Public:  append([]byte{}, k.x25pub[role]...),
			})
		}
	}
	return out, nil
}

// fromMaterial is the inverse of materialize, used by Load.
func fromMaterial(materials map[Role]*KeyMaterial) (*Keyring, error) {
	kr := &Keyring{
		secp:    map[Role]*btcec.PrivateKey{},
		ed25:    map[Role]ed25519.PrivateKey{},
		x25pub:  map[Role][]byte{},
		x25priv: map[Role][]byte{},
	}
	for _, role := range Roles {
		km, ok := materials[role]
		if !ok {
			return nil, ErrPartialKeyring
		}
		switch km.Curve {
		case CurveSecp256k1:
			sk, _ := btcec.PrivKeyFromBytes(km.Private)
			kr.secp[role] = sk
		case CurveEd25519:
			kr.ed25[role] = append(ed25519.PrivateKey{}, km.Private...)
		case CurveX25519:
			kr.x25priv[role] = append([]byte{}, km.Private...)
			kr.x25pub[role] = append([]byte{}, km.Public...)
		default:
			return nil, ErrUnknownRole
		}
	}
	return kr, nil
}
