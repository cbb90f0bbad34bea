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
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProducesAllSixRoles(t *testing.T) {
	kr, mnemonic, err := Create(OSRandom)
	require.NoError(t, err)
	assert.NotEmpty(t, mnemonic)

	assert.NotNil(t, kr.Sign())
	assert.NotNil(t, kr.Update())
	assert.NotNil(t, kr.NextKey())
	pub, priv := kr.EncryptKeyPair()
	assert.Len(t, pub, 32)
	assert.Len(t, priv, 32)
	assert.NotNil(t, kr.SidetreeUpdate())
	assert.NotNil(t, kr.SidetreeRecovery())
}

func TestCreateFromMnemonicIsDeterministic(t *testing.T) {
	_, mnemonic, err := Create(OSRandom)
	require.NoError(t, err)

	a, err := CreateFromMnemonic(mnemonic)
	require.NoError(t, err)
	b, err := CreateFromMnemonic(mnemonic)
	require.NoError(t, err)

	assert.Equal(t, a.Sign().Serialize(), b.Sign().Serialize())
	aPub, _ := a.EncryptKeyPair()
	bPub, _ := b.EncryptKeyPair()
	assert.Equal(t, aPub, bPub)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewFileKeystore(t.TempDir(), []byte("correct horse battery staple"))
	require.NoError(t, err)

	kr, _, err := Create(OSRandom)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, Save(ctx, store, kr, "did:webvh:Qm123:example.com"))

	loaded, err := Load(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, kr.Sign().Serialize(), loaded.Sign().Serialize())

	ownerDID, err := LoadOwnerDID(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "did:webvh:Qm123:example.com", ownerDID)
}

func TestLoadFailsOnPartialKeyring(t *testing.T) {
	store, err := NewFileKeystore(t.TempDir(), []byte("passphrase"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Write(ctx, string(RoleSign), []byte(`{"role":"sign","curve":"secp256k1"}`)))

	_, err = Load(ctx, store)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialKeyring))
}

func TestToVerificationMethods(t *testing.T) {
	kr, _, err := Create(OSRandom)
	require.NoError(t, err)

	vms, err := kr.ToVerificationMethods("did:webvh:Qm123:example.com")
	require.NoError(t, err)
	require.Len(t, vms, 3)
	assert.Equal(t, "did:webvh:Qm123:example.com#signingKey", vms[0].ID)
	assert.Equal(t, "did:webvh:Qm123:example.com#encryptionKey", vms[1].ID)
	assert.Equal(t, "did:webvh:Qm123:example.com#signTimeSeriesKey", vms[2].ID)
}
