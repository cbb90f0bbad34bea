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
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/utils/jsonw"
	"github.com/nodecross/nodex/utils/zero"
	"golang.org/x/crypto/scrypt"
)

// Keystore is the secure-storage capability the keyring package is handed
// by its caller; it knows nothing about roles beyond the string key it is
// given. Read returns ErrKeyNotFound (wrapped) when key is absent.
type Keystore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

const (
	didKey = "__owner_did"
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	saltLen = 16
)

// FileKeystore is a passphrase-protected, file-backed Keystore: a symmetric
// key derived from the passphrase with scrypt seals each record with
// crypto.AeadEncrypt. Every write is atomic: encode to a temp file in the
// same directory, then rename.
type FileKeystore struct {
	dir        string
	passphrase []byte
}

// NewFileKeystore opens (creating if necessary) a keystore rooted at dir,
// protected by passphrase. The caller owns the passphrase slice and may
// zero it after this call returns; FileKeystore keeps its own copy.
func NewFileKeystore(dir string, passphrase []byte) (*FileKeystore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &FileKeystore{dir: dir, passphrase: append([]byte{}, passphrase...)}, nil
}

func (f *FileKeystore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(f.dir, fmt.Sprintf("%x.key", sum))
}

func (f *FileKeystore) deriveKey(salt []byte) ([]byte, error) {
	return scrypt.Key(f.passphrase, salt, scryptN, scryptR, scryptP, 32)
}

type sealedRecord struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func (f *FileKeystore) Read(_ context.Context, key string) ([]byte, error) {
	raw, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrKeyNotFound)
		}
		return nil, err
	}

	var rec sealedRecord
	if err := jsonw.UnmarshalStrict(raw, &rec); err != nil {
		return nil, err
	}
	dk, err := f.deriveKey(rec.Salt)
	if err != nil {
		return nil, err
	}
	defer zero.Bytes(dk)
	return ncrypto.AeadDecrypt(dk, rec.Nonce, rec.Ciphertext, []byte(key))
}

func (f *FileKeystore) Write(_ context.Context, key string, value []byte) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	dk, err := f.deriveKey(salt)
	if err != nil {
		return err
	}
	defer zero.Bytes(dk)

	nonce := make([]byte, 12)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	ct, err := ncrypto.AeadEncrypt(dk, nonce, value, []byte(key))
	if err != nil {
		return err
	}

	body, err := jsonw.Marshal(sealedRecord{Salt: salt, Nonce: nonce, Ciphertext: ct})
	if err != nil {
		return err
	}

	target := f.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, target)
}

func (f *FileKeystore) Delete(_ context.Context, key string) error {
	err := os.Remove(f.path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load reads exactly the six roles from store. A missing role at any point
// is a hard error (ErrPartialKeyring), never a partial keyring.
func Load(ctx context.Context, store Keystore) (*Keyring, error) {
	materials := make(map[Role]*KeyMaterial, len(Roles))
	for _, role := range Roles {
		raw, err := store.Read(ctx, string(role))
		if err != nil {
			if errors.Is(err, ErrKeyNotFound) {
				return nil, ErrPartialKeyring
			}
			return nil, err
		}
		// Key material is written only by Save; an unknown field means the
		// record is not ours.
		var km KeyMaterial
		if err := jsonw.UnmarshalStrict(raw, &km); err != nil {
			return nil, err
		}
		materials[role] = &km
	}
	return fromMaterial(materials)
}

// Save writes all six roles and then the owning DID. If any write after the
// first fails, the roles already written are left in place (the caller is
// expected to retry Save wholesale, which is idempotent per role).
func Save(ctx context.Context, store Keystore, k *Keyring, did string) error {
	materials, err := k.materialize()
	if err != nil {
		return err
	}
	for _, km := range materials {
		body, err := jsonw.Marshal(km)
		if err != nil {
			return err
		}
		if err := store.Write(ctx, string(km.Role), body); err != nil {
			return err
		}
	}
	return store.Write(ctx, didKey, []byte(did))
}

// LoadOwnerDID returns the DID recorded by the last successful Save.
func LoadOwnerDID(ctx context.Context, store Keystore) (string, error) {
	raw, err := store.Read(ctx, didKey)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
