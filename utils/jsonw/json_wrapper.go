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

// Package jsonw funnels all non-canonical JSON traffic (HTTP bodies, the
// shared runtime record, bundle manifests, persisted key material) through
// sonic. Canonical JSON for hashing and signing never goes through here;
// that is its own primitive in package crypto.
package jsonw

import (
	"bytes"
	"io"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/decoder"
	"github.com/bytedance/sonic/encoder"
)

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// MarshalIndent encodes v pretty-printed, the form bundle-rewritten JSON
// files and the network config are persisted in.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return encoder.EncodeIndented(v, prefix, indent, 0)
}

// Unmarshal decodes data into v, ignoring unknown fields.
func Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// UnmarshalStrict decodes data into v and rejects unknown fields. Used for
// records this agent itself persisted (sealed keystore entries, key
// material), where an unknown field means corruption or tampering rather
// than a newer peer.
func UnmarshalStrict(data []byte, v any) error {
	d := decoder.NewStreamDecoder(bytes.NewReader(data))
	d.DisallowUnknownFields()
	return d.Decode(v)
}

// Decode streams one JSON value from r into v.
func Decode(r io.Reader, v any) error {
	return decoder.NewStreamDecoder(r).Decode(v)
}
