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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetachedJWSRoundTrip(t *testing.T) {
	sk, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	value := map[string]any{"hello": "world", "n": 42}
	jws, err := SignDetachedJWS(value, sk)
	require.NoError(t, err)

	// Detached form: header..signature with an empty payload segment.
	parts := strings.Split(jws, ".")
	require.Len(t, parts, 3)
	assert.Empty(t, parts[1])

	ok, err := VerifyDetachedJWS(value, jws, sk.PubKey())
	require.NoError(t, err)
	assert.True(t, ok)

	// Key order in the value must not matter.
	ok, err = VerifyDetachedJWS(json.RawMessage(`{"n":42,"hello":"world"}`), jws, sk.PubKey())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDetachedJWSRejectsTamperedValue(t *testing.T) {
	sk, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	jws, err := SignDetachedJWS(map[string]any{"v": "original"}, sk)
	require.NoError(t, err)

	ok, err := VerifyDetachedJWS(map[string]any{"v": "tampered"}, jws, sk.PubKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetachedJWSRejectsWrongKey(t *testing.T) {
	sk, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	other, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	jws, err := SignDetachedJWS(map[string]any{"v": 1}, sk)
	require.NoError(t, err)

	ok, err := VerifyDetachedJWS(map[string]any{"v": 1}, jws, other.PubKey())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetachedJWSRejectsB64True(t *testing.T) {
	sk, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	jws, err := SignDetachedJWS(map[string]any{"v": 1}, sk)
	require.NoError(t, err)

	parts := strings.Split(jws, ".")
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256K","b64":true,"crit":["b64"]}`))

	_, err = VerifyDetachedJWS(map[string]any{"v": 1}, header+".."+parts[2], sk.PubKey())
	assert.True(t, errors.Is(err, ErrUnsupportedAlgorithm))
}

func TestDetachedJWSRejectsWrongAlgorithm(t *testing.T) {
	sk, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	jws, err := SignDetachedJWS(map[string]any{"v": 1}, sk)
	require.NoError(t, err)

	parts := strings.Split(jws, ".")
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"ES256","b64":false,"crit":["b64"]}`))

	_, err = VerifyDetachedJWS(map[string]any{"v": 1}, header+".."+parts[2], sk.PubKey())
	assert.True(t, errors.Is(err, ErrUnsupportedAlgorithm))
}

func TestDetachedJWSRejectsBadSignatureLength(t *testing.T) {
	sk, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	jws, err := SignDetachedJWS(map[string]any{"v": 1}, sk)
	require.NoError(t, err)

	parts := strings.Split(jws, ".")
	shortSig := base64.RawURLEncoding.EncodeToString(make([]byte, 63))

	_, err = VerifyDetachedJWS(map[string]any{"v": 1}, parts[0]+".."+shortSig, sk.PubKey())
	assert.True(t, errors.Is(err, ErrInvalidSignatureLength))
}

func TestSecp256k1SignatureIsAlways64Bytes(t *testing.T) {
	sk, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		sig, err := Secp256k1ECDSASign(sk, []byte("message"))
		require.NoError(t, err)
		assert.Len(t, sig, 64)

		ok, err := Secp256k1ECDSAVerify(sk.PubKey(), []byte("message"), sig)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestMultihashEncodings(t *testing.T) {
	h, err := MultihashSHA256([]byte("hello"))
	require.NoError(t, err)
	// Self-describing prefix: 0x12 (sha2-256), 0x20 (32-byte digest).
	assert.Equal(t, byte(0x12), h[0])
	assert.Equal(t, byte(0x20), h[1])
	assert.Len(t, h, 34)

	b58, err := MultihashSHA256Base58BTC([]byte("hello"))
	require.NoError(t, err)
	assert.NotEmpty(t, b58)

	b64, err := MultihashSHA256Base64URLNoPad([]byte("hello"))
	require.NoError(t, err)
	assert.NotContains(t, b64, "=")
}
