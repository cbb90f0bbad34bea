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

package apierror

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusClasses(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CreateDidCommMessageNoMessage, http.StatusBadRequest},
		{SendEventInvalidOccurredAt, http.StatusBadRequest},
		{VerifyDidcommMessageNotAddressedToMe, http.StatusForbidden},
		{VerifyDidcommMessageVerifyFailed, http.StatusUnauthorized},
		{CreateDidCommMessageNoDid, http.StatusNotFound},
		{CreateIdentifierInternal, http.StatusInternalServerError},
		{MessageActivityConflict, http.StatusConflict},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, tt.code.HTTPStatus(), "code %d", tt.code)
	}
}

func TestBoundaryCodes(t *testing.T) {
	// Fixed numeric values clients depend on.
	assert.Equal(t, 1004, int(CreateDidCommMessageNoMessage))
	assert.Equal(t, 1022, int(SendEventInvalidOccurredAt))
	assert.Equal(t, 3002, int(VerifyDidcommMessageVerifyFailed))
	assert.Equal(t, 6001, int(MessageActivityConflict))
}

func TestResponseShape(t *testing.T) {
	resp := New(VerifyDidcommMessageVerifyFailed)
	assert.Equal(t, 3002, resp.Code)
	assert.Equal(t, "verify failed", resp.Message)
}

func TestClientClassSplit(t *testing.T) {
	assert.True(t, CreateDidCommMessageNoMessage.IsClientClass())
	assert.True(t, VerifyDidcommMessageVerifyFailed.IsClientClass())
	assert.False(t, CreateIdentifierInternal.IsClientClass())
	assert.False(t, MessageActivityConflict.IsClientClass())
}
