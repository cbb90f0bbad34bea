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

package studio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/didcomm"
	"github.com/nodecross/nodex/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticResolver struct {
	docs map[string]*did.Document
}

func (r *staticResolver) Resolve(_ context.Context, d *did.DID) (*did.Document, error) {
	doc, ok := r.docs[d.String()]
	if !ok {
		return nil, did.ErrUnsupportedMethod
	}
	return doc, nil
}

type ackRecord struct {
	id      string
	success bool
}

// queueServer plays the studio's message queue: a fixed batch plus an ack
// log.
type queueServer struct {
	mu    sync.Mutex
	queue []QueuedMessage
	acks  []ackRecord
}

func (s *queueServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/message/list":
			s.mu.Lock()
			body, _ := json.Marshal(s.queue)
			s.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
		case "/v1/message/ack":
			var req struct {
				MessageID  string `json:"message_id"`
				IsVerified bool   `json:"is_verified"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			s.mu.Lock()
			s.acks = append(s.acks, ackRecord{id: req.MessageID, success: req.IsVerified})
			s.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func newPollerFixture(t *testing.T) (projectKr, agentKr *keyring.Keyring, projectDoc, agentDoc *did.Document) {
	t.Helper()
	mk := func(subject string) (*keyring.Keyring, *did.Document) {
		kr, _, err := keyring.Create(keyring.OSRandom)
		require.NoError(t, err)
		vms, err := kr.ToVerificationMethods(subject)
		require.NoError(t, err)
		return kr, &did.Document{Context: did.DefaultContext, ID: subject, VerificationMethod: vms}
	}
	projectKr, projectDoc = mk("did:web:project")
	agentKr, agentDoc = mk("did:web:agent")
	return
}

func TestPollerVerifiesAcksAndDispatchesUpdate(t *testing.T) {
	projectKr, agentKr, projectDoc, agentDoc := newPollerFixture(t)

	body, _ := json.Marshal(controlMessage{Operation: OperationUpdateAgent, BinaryURL: "https://example.com/releases/v1.1.0"})
	env, err := didcomm.EncryptAndSign(string(body), projectDoc.ID, projectKr, agentDoc, nil)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	// Second message: tampered ciphertext, must be ACKed as failed.
	badEnv, err := didcomm.EncryptAndSign("x", projectDoc.ID, projectKr, agentDoc, nil)
	require.NoError(t, err)
	ct, _ := base64.RawURLEncoding.DecodeString(badEnv.Ciphertext)
	ct[0] ^= 0xff
	badEnv.Ciphertext = base64.RawURLEncoding.EncodeToString(ct)
	badRaw, err := json.Marshal(badEnv)
	require.NoError(t, err)

	qs := &queueServer{queue: []QueuedMessage{
		{ID: "m1", RawMessage: string(raw)},
		{ID: "m2", RawMessage: string(badRaw)},
	}}
	srv := httptest.NewServer(qs.handler())
	defer srv.Close()

	var updatedWith string
	p := &Poller{
		Client:   NewClient(srv.URL, projectDoc.ID, []byte("secret")),
		Resolver: &staticResolver{docs: map[string]*did.Document{projectDoc.ID: projectDoc}},
		Accessor: &keyring.StaticAccessor{DID: agentDoc.ID, Keyring: agentKr},
		UpdateAgent: func(_ context.Context, url string) error {
			updatedWith = url
			return nil
		},
	}

	require.NoError(t, p.ReceiveMessages(context.Background()))

	require.Len(t, qs.acks, 2)
	assert.Equal(t, ackRecord{id: "m1", success: true}, qs.acks[0])
	assert.Equal(t, ackRecord{id: "m2", success: false}, qs.acks[1])
	assert.Equal(t, "https://example.com/releases/v1.1.0", updatedWith)
}

func TestPollerIgnoresControlFromPeers(t *testing.T) {
	_, agentKr, _, agentDoc := newPollerFixture(t)
	peerKr, _, err := keyring.Create(keyring.OSRandom)
	require.NoError(t, err)
	peerVMs, err := peerKr.ToVerificationMethods("did:web:peer")
	require.NoError(t, err)
	peerDoc := &did.Document{Context: did.DefaultContext, ID: "did:web:peer", VerificationMethod: peerVMs}

	body, _ := json.Marshal(controlMessage{Operation: OperationUpdateAgent, BinaryURL: "https://example.com/x"})
	env, err := didcomm.EncryptAndSign(string(body), peerDoc.ID, peerKr, agentDoc, nil)
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	qs := &queueServer{queue: []QueuedMessage{{ID: "m1", RawMessage: string(raw)}}}
	srv := httptest.NewServer(qs.handler())
	defer srv.Close()

	updateCalled := false
	p := &Poller{
		Client:   NewClient(srv.URL, "did:web:project", []byte("secret")),
		Resolver: &staticResolver{docs: map[string]*did.Document{peerDoc.ID: peerDoc}},
		Accessor: &keyring.StaticAccessor{DID: agentDoc.ID, Keyring: agentKr},
		UpdateAgent: func(context.Context, string) error {
			updateCalled = true
			return nil
		},
	}

	require.NoError(t, p.ReceiveMessages(context.Background()))

	// The peer's message verifies (ACK success) but never dispatches control.
	require.Len(t, qs.acks, 1)
	assert.True(t, qs.acks[0].success)
	assert.False(t, updateCalled)
}

func TestPollerAcksInvalidJSONAsFailed(t *testing.T) {
	_, agentKr, _, agentDoc := newPollerFixture(t)

	qs := &queueServer{queue: []QueuedMessage{{ID: "m1", RawMessage: "not json"}}}
	srv := httptest.NewServer(qs.handler())
	defer srv.Close()

	p := &Poller{
		Client:   NewClient(srv.URL, "did:web:project", []byte("secret")),
		Resolver: &staticResolver{docs: map[string]*did.Document{}},
		Accessor: &keyring.StaticAccessor{DID: agentDoc.ID, Keyring: agentKr},
	}

	require.NoError(t, p.ReceiveMessages(context.Background()))
	require.Len(t, qs.acks, 1)
	assert.Equal(t, ackRecord{id: "m1", success: false}, qs.acks[0])
}
