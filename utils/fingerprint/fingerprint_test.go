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

package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinaryHex(t *testing.T) {
	msg := []byte("test message")
	got, err := BinaryHex(bytes.NewReader(msg))
	require.NoError(t, err)

	want := sha256.Sum256(msg)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestBundleRefIsSelfDescribing(t *testing.T) {
	refA, err := BundleRef(bytes.NewReader([]byte("bundle a")))
	require.NoError(t, err)
	refB, err := BundleRef(bytes.NewReader([]byte("bundle b")))
	require.NoError(t, err)

	assert.NotEqual(t, refA, refB)
	// base58-btc of a 0x12 0x20 multihash always starts with "Qm".
	assert.Equal(t, "Qm", refA[:2])
}

func TestFingerprintRegistry(t *testing.T) {
	msg := []byte("x")

	raw, err := Fingerprint(AlgoSHA256, bytes.NewReader(msg))
	require.NoError(t, err)
	assert.Len(t, raw, 32)

	wrapped, err := Fingerprint(AlgoMultihash, bytes.NewReader(msg))
	require.NoError(t, err)
	require.Len(t, wrapped, 34)
	assert.Equal(t, byte(0x12), wrapped[0])
	assert.Equal(t, raw, wrapped[2:])

	_, err = Fingerprint("md5", bytes.NewReader(msg))
	assert.Error(t, err)
}
