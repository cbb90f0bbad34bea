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

package did

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSupportedMethods(t *testing.T) {
	cases := []struct {
		in     string
		method Method
	}{
		{"did:web:example.com", MethodWeb},
		{"did:webvh:Qm123:example.com%3A8443", MethodWebVH},
		{"did:key:z6Mkabc", MethodKey},
	}
	for _, c := range cases {
		d, err := Parse(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.method, d.Method)
		assert.Equal(t, c.in, d.String())
	}
}

func TestParseRejectsUnsupportedMethod(t *testing.T) {
	_, err := Parse("did:nodex:abc123")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedMethod))
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"not-a-did", "did:web", "did:web:"} {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestSCID(t *testing.T) {
	d, err := Parse("did:webvh:Qm123:example.com%3A8443")
	require.NoError(t, err)
	scid, ok := d.SCID()
	assert.True(t, ok)
	assert.Equal(t, "Qm123", scid)

	web, err := Parse("did:web:example.com")
	require.NoError(t, err)
	_, ok = web.SCID()
	assert.False(t, ok)
}
