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

package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	ncrypto "github.com/nodecross/nodex/crypto"
	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/did/webvh/webvhtest"
	"github.com/nodecross/nodex/didcomm"
	"github.com/nodecross/nodex/internal/identity"
	"github.com/nodecross/nodex/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAgent builds one agent (identity service + keyring + server) over a
// shared in-memory webvh datastore, creating its identifier up front.
func newAgent(t *testing.T, store *webvhtest.FakeDataStore, host string) (*Server, *did.Document) {
	t.Helper()

	keystore, err := keyring.NewFileKeystore(t.TempDir(), []byte("test-passphrase"))
	require.NoError(t, err)
	svc := identity.NewService(store, keystore, host)

	doc, err := svc.CreateIdentifier(context.Background())
	require.NoError(t, err)

	accessor, err := svc.Accessor(context.Background())
	require.NoError(t, err)

	srv := NewServer(Deps{
		Version:  "1.0.0",
		Identity: svc,
		Accessor: accessor,
	})
	return srv, doc
}

func postJSON(t *testing.T, srv *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	return w
}

func getPath(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func TestCreateAndResolveSelf(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	srv, _ := newAgent(t, store, "hub.example.com:8443")

	w := postJSON(t, srv, "/identifiers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc did.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Regexp(t, regexp.MustCompile(`^did:webvh:[1-9A-HJ-NP-Za-km-z]{40,60}:`), doc.ID)

	w2 := getPath(t, srv, "/identifiers/"+doc.ID)
	require.Equal(t, http.StatusOK, w2.Code)

	var doc2 did.Document
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &doc2))

	c1, err := ncrypto.CanonicalJSON(doc)
	require.NoError(t, err)
	c2, err := ncrypto.CanonicalJSON(doc2)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	// The document carries all three verification methods.
	for _, frag := range []string{"#signingKey", "#encryptionKey", "#signTimeSeriesKey"} {
		assert.NotNil(t, doc.FindVerificationMethod(frag), frag)
	}
}

func TestDidCommRoundTripBetweenAgents(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	agentA, _ := newAgent(t, store, "a.example.com")
	agentB, docB := newAgent(t, store, "b.example.com")

	w := postJSON(t, agentA, "/create-didcomm-message", createMessageRequest{
		DestinationDid: docB.ID,
		Message:        "Hello, world!",
		OperationTag:   "t",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w2 := postJSON(t, agentB, "/verify-didcomm-message", map[string]json.RawMessage{
		"message": json.RawMessage(w.Body.Bytes()),
	})
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())
	assert.Contains(t, w2.Body.String(), `"payload":"Hello, world!"`)
}

func TestTamperedCiphertextYields3002(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	agentA, _ := newAgent(t, store, "a.example.com")
	agentB, docB := newAgent(t, store, "b.example.com")

	w := postJSON(t, agentA, "/create-didcomm-message", createMessageRequest{
		DestinationDid: docB.ID,
		Message:        "Hello, world!",
		OperationTag:   "t",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var env didcomm.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	raw, err := base64.RawURLEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0xff
	env.Ciphertext = base64.RawURLEncoding.EncodeToString(raw)
	tampered, err := json.Marshal(env)
	require.NoError(t, err)

	w2 := postJSON(t, agentB, "/verify-didcomm-message", map[string]json.RawMessage{
		"message": tampered,
	})
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
	assert.Equal(t, 3002, errorCode(t, w2))
}

func TestWrongRecipientYields3002Never5xxx(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	agentA, _ := newAgent(t, store, "a.example.com")
	_, docB := newAgent(t, store, "b.example.com")
	agentC, _ := newAgent(t, store, "c.example.com")

	w := postJSON(t, agentA, "/create-didcomm-message", createMessageRequest{
		DestinationDid: docB.ID,
		Message:        "Hello, world!",
		OperationTag:   "t",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w2 := postJSON(t, agentC, "/verify-didcomm-message", map[string]json.RawMessage{
		"message": json.RawMessage(w.Body.Bytes()),
	})
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
	assert.Equal(t, 3002, errorCode(t, w2))
}

func TestVerifiableMessageRoundTrip(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	agentA, _ := newAgent(t, store, "a.example.com")
	agentB, docB := newAgent(t, store, "b.example.com")

	w := postJSON(t, agentA, "/create-verifiable-message", createMessageRequest{
		DestinationDid: docB.ID,
		Message:        "Hello, world!",
		OperationTag:   "t",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"proof"`)

	w2 := postJSON(t, agentB, "/verify-verifiable-message", map[string]json.RawMessage{
		"message": json.RawMessage(w.Body.Bytes()),
	})
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())
	assert.Contains(t, w2.Body.String(), `"payload":"Hello, world!"`)
}

func TestTamperedCredentialYields3003(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	agentA, _ := newAgent(t, store, "a.example.com")
	agentB, docB := newAgent(t, store, "b.example.com")

	w := postJSON(t, agentA, "/create-verifiable-message", createMessageRequest{
		DestinationDid: docB.ID,
		Message:        "Hello, world!",
		OperationTag:   "t",
	})
	require.Equal(t, http.StatusOK, w.Code)

	tampered := bytes.Replace(w.Body.Bytes(), []byte("Hello, world!"), []byte("Hacked, world"), 1)
	w2 := postJSON(t, agentB, "/verify-verifiable-message", map[string]json.RawMessage{
		"message": tampered,
	})
	assert.Equal(t, http.StatusUnauthorized, w2.Code)
	assert.Equal(t, 3003, errorCode(t, w2))
}

func TestEmptyBodyCreateDidCommYields1004(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	srv, _ := newAgent(t, store, "a.example.com")

	w := postJSON(t, srv, "/create-didcomm-message", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1004, errorCode(t, w))
}

func TestBadOccurredAtYields1022(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	srv, _ := newAgent(t, store, "a.example.com")

	w := postJSON(t, srv, "/events", []eventItem{
		{Key: "boot", Detail: "agent started", OccurredAt: "12345"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 1022, errorCode(t, w))

	// A proper 13-digit millisecond timestamp passes.
	w2 := postJSON(t, srv, "/events", []eventItem{
		{Key: "boot", Detail: "agent started", OccurredAt: "1717200000000"},
	})
	assert.Equal(t, http.StatusNoContent, w2.Code)
}

func TestVersionEndpoints(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	srv, _ := newAgent(t, store, "a.example.com")

	w := getPath(t, srv, "/internal/version/get")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":"1.0.0"}`, w.Body.String())

	w2 := postJSON(t, srv, "/internal/version/update", map[string]any{
		"message": map[string]string{"binary_url": ""},
	})
	assert.Equal(t, http.StatusBadRequest, w2.Code)
	assert.Equal(t, 1001, errorCode(t, w2))
}

func TestAttributeValidation(t *testing.T) {
	store := webvhtest.NewFakeDataStore()
	srv, _ := newAgent(t, store, "a.example.com")

	w := postJSON(t, srv, "/attributes", attributeRequest{Value: "v"})
	assert.Equal(t, 1016, errorCode(t, w))

	w2 := postJSON(t, srv, "/attributes", attributeRequest{KeyName: "k"})
	assert.Equal(t, 1017, errorCode(t, w2))

	w3 := postJSON(t, srv, "/attributes", attributeRequest{KeyName: "k", Value: "v"})
	assert.Equal(t, http.StatusNoContent, w3.Code)
}
