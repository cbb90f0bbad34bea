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

// Package slip10 implements the hardened-only SLIP-0010
// (https://github.com/satoshilabs/slips/blob/master/slip-0010.md) key tree
// the keyring derives its six roles from. SLIP-10 only standardizes the
// ed25519 derivation function; this package additionally feeds each node's
// 32-byte scalar to secp256k1 and X25519, so one mnemonic-derived master
// seed yields key material for every curve a role needs. Reusing the
// ed25519 master-seed expansion for the other curves is a pragmatic
// single-seed scheme, not a published standard.
package slip10

import (
	"bytes"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/nodecross/nodex/utils/zero"
	"golang.org/x/crypto/curve25519"
)

// masterHMACKey is the fixed HMAC key SLIP-10 prescribes for the ed25519
// curve's master node.
const masterHMACKey = "ed25519 seed"

// hardenedOffset is added to every child index; this tree has no public
// derivation, so all children are hardened.
const hardenedOffset = uint32(0x80000000)

// Seed length bounds in bytes, per BIP-32/SLIP-10.
const (
	MinSeedBytes = 16
	MaxSeedBytes = 64
)

var (
	ErrInvalidSeedLen = fmt.Errorf("slip10: seed length must be between %d and %d bits",
		MinSeedBytes*8, MaxSeedBytes*8)
	ErrZeroScalar = errors.New("slip10: derived scalar is not usable on this curve")
)

// Node is one point of the hardened key tree: a 32-byte scalar plus the
// chain code that derives its children. The scalar is curve-agnostic; the
// per-curve accessors below interpret it.
type Node struct {
	scalar    [32]byte
	chainCode [32]byte
}

// Master expands seed into the tree's root node.
func Master(seed []byte) (*Node, error) {
	if len(seed) < MinSeedBytes || len(seed) > MaxSeedBytes {
		return nil, ErrInvalidSeedLen
	}
	mac := hmac.New(sha512.New, []byte(masterHMACKey))
	mac.Write(seed)
	return nodeFromSum(mac.Sum(nil)), nil
}

// Child derives the hardened child at index (the hardened offset is applied
// here; callers pass plain role indices).
func (n *Node) Child(index uint32) *Node {
	var data [1 + 32 + 4]byte
	copy(data[1:33], n.scalar[:])
	binary.BigEndian.PutUint32(data[33:], index+hardenedOffset)

	mac := hmac.New(sha512.New, n.chainCode[:])
	mac.Write(data[:])
	child := nodeFromSum(mac.Sum(nil))
	zero.Bytes(data[1:33])
	return child
}

// Derive walks the hardened indices from the master node of seed, e.g.
// Derive(seed, 1) is m/1'.
func Derive(seed []byte, indices ...uint32) (*Node, error) {
	n, err := Master(seed)
	if err != nil {
		return nil, err
	}
	for _, i := range indices {
		next := n.Child(i)
		n.Zero()
		n = next
	}
	return n, nil
}

func nodeFromSum(sum []byte) *Node {
	n := &Node{}
	copy(n.scalar[:], sum[:32])
	copy(n.chainCode[:], sum[32:])
	zero.Bytes(sum)
	return n
}

// Ed25519 interprets the node's scalar as an ed25519 seed and returns the
// keypair, the curve SLIP-10 defines this derivation for.
func (n *Node) Ed25519() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(bytes.NewReader(n.scalar[:]))
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

// Secp256k1 interprets the node's scalar as a secp256k1 secret key.
// PrivKeyFromBytes reduces mod the group order; the zero scalar (probability
// ~2^-256, or a hostile seed) is rejected rather than returned.
func (n *Node) Secp256k1() (*btcec.PrivateKey, error) {
	sk, _ := btcec.PrivKeyFromBytes(n.scalar[:])
	if sk.Key.IsZero() {
		return nil, ErrZeroScalar
	}
	return sk, nil
}

// X25519 interprets the node's scalar as an X25519 private scalar (clamped
// by the curve operation itself) and returns both halves.
func (n *Node) X25519() (pub, priv []byte, err error) {
	priv = append([]byte{}, n.scalar[:]...)
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		zero.Bytes(priv)
		return nil, nil, err
	}
	return pub, priv, nil
}

// Zero scrubs the node's secret material. The node must not be used after.
func (n *Node) Zero() {
	zero.Bytes(n.scalar[:])
	zero.Bytes(n.chainCode[:])
}
