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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsKeys(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"b": 1, "a": 2, "c": []any{"x"}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":2,"b":1,"c":["x"]}`, string(out))
}

func TestCanonicalJSONIsIdempotent(t *testing.T) {
	in := map[string]any{
		"z":      "last",
		"a":      1,
		"nested": map[string]any{"y": true, "x": nil},
		"list":   []any{3, 2, 1},
	}
	once, err := CanonicalJSON(in)
	require.NoError(t, err)

	var decoded any
	require.NoError(t, json.Unmarshal(once, &decoded))
	twice, err := CanonicalJSON(decoded)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestCanonicalJSONIgnoresKeyOrder(t *testing.T) {
	a, err := CanonicalJSON(json.RawMessage(`{"x":1,"y":{"b":2,"a":3}}`))
	require.NoError(t, err)
	b, err := CanonicalJSON(json.RawMessage(`{"y":{"a":3,"b":2},"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalJSONStructsAndMapsAgree(t *testing.T) {
	type pair struct {
		B string `json:"b"`
		A int    `json:"a"`
	}
	fromStruct, err := CanonicalJSON(pair{B: "v", A: 7})
	require.NoError(t, err)
	fromMap, err := CanonicalJSON(map[string]any{"a": 7, "b": "v"})
	require.NoError(t, err)
	assert.Equal(t, fromMap, fromStruct)
}

func TestCanonicalJSONIntegersStayIntegers(t *testing.T) {
	out, err := CanonicalJSON(map[string]any{"n": int64(9007199254740993)})
	require.NoError(t, err)
	assert.Equal(t, `{"n":9007199254740993}`, string(out))
}

func TestCanonicalJSONRejectsNonFinite(t *testing.T) {
	_, err := CanonicalJSON(map[string]any{"n": json.Number("NaN")})
	assert.Error(t, err)
}
