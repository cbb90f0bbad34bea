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

// Package fingerprint hashes the artifacts the agent accounts for to the
// studio and the update audit log: the running executable reported in
// device-info, and update bundles before the supervisor executes them.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcutil/base58"
	mh "github.com/multiformats/go-multihash"
)

// Algorithm names accepted by Fingerprint.
const (
	AlgoSHA256    = "sha256"
	AlgoMultihash = "multihash-sha256"
)

var algorithms = map[string]func(io.Reader) ([]byte, error){
	AlgoSHA256:    rawSHA256,
	AlgoMultihash: multihashSHA256,
}

// Fingerprint hashes r with the named algorithm.
func Fingerprint(algo string, r io.Reader) ([]byte, error) {
	fn, ok := algorithms[algo]
	if !ok {
		return nil, fmt.Errorf("fingerprint: unsupported algorithm %q", algo)
	}
	return fn(r)
}

// BinaryHex is the device-info form: lowercase hex SHA-256 of the running
// executable.
func BinaryHex(r io.Reader) (string, error) {
	sum, err := rawSHA256(r)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// BundleRef is the audit-log form for update bundles: the base58-btc
// multihash, matching how the rest of the system names content by hash.
func BundleRef(r io.Reader) (string, error) {
	sum, err := multihashSHA256(r)
	if err != nil {
		return "", err
	}
	return base58.Encode(sum), nil
}

func rawSHA256(r io.Reader) ([]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func multihashSHA256(r io.Reader) ([]byte, error) {
	sum, err := rawSHA256(r)
	if err != nil {
		return nil, err
	}
	return mh.Encode(sum, mh.SHA2_256)
}
