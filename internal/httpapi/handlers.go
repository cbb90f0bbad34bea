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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/did/webvh"
	"github.com/nodecross/nodex/didcomm"
	"github.com/nodecross/nodex/internal/apierror"
	"github.com/nodecross/nodex/internal/studio"
	"github.com/nodecross/nodex/utils/jsonw"
	"github.com/nodecross/nodex/vc"
)

func isErr(err, target error) bool { return errors.Is(err, target) }

// --- identifiers -----------------------------------------------------------

func (s *Server) createIdentifier(c *gin.Context) {
	doc, err := s.deps.Identity.CreateIdentifier(c.Request.Context())
	if err != nil {
		respondError(c, apierror.CreateIdentifierInternal, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) findIdentifier(c *gin.Context) {
	doc, err := s.deps.Identity.FindIdentifier(c.Request.Context(), c.Param("did"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, doc)
	case isErr(err, webvh.ErrNotFound), isErr(err, did.ErrUnsupportedMethod):
		respondError(c, apierror.VerifyVerifiableMessageNoIssuer, err)
	default:
		respondError(c, apierror.FindIdentifierInternal, err)
	}
}

// --- didcomm messages ------------------------------------------------------

type createMessageRequest struct {
	DestinationDid string `json:"destination_did"`
	Message        string `json:"message"`
	OperationTag   string `json:"operation_tag"`
}

// messagePayload is the body sealed into outbound messages; verification on
// the far side surfaces it as-is.
type messagePayload struct {
	Payload      string `json:"payload"`
	OperationTag string `json:"operation_tag"`
}

func (s *Server) createDidCommMessage(c *gin.Context) {
	var req createMessageRequest
	_ = c.ShouldBindJSON(&req)
	if req.Message == "" {
		respondError(c, apierror.CreateDidCommMessageNoMessage, nil)
		return
	}
	if req.DestinationDid == "" {
		respondError(c, apierror.CreateDidCommMessageNoDestinationDid, nil)
		return
	}
	if req.OperationTag == "" {
		respondError(c, apierror.CreateDidCommMessageNoOperationTag, nil)
		return
	}

	ctx := c.Request.Context()
	toDoc, err := s.deps.Identity.FindIdentifier(ctx, req.DestinationDid)
	if err != nil {
		if isErr(err, webvh.ErrNotFound) || isErr(err, did.ErrUnsupportedMethod) {
			respondError(c, apierror.CreateDidCommMessageNoDid, err)
		} else {
			respondError(c, apierror.CreateDidcommMessageInternal, err)
		}
		return
	}

	body, err := jsonw.Marshal(messagePayload{Payload: req.Message, OperationTag: req.OperationTag})
	if err != nil {
		respondError(c, apierror.CreateDidcommMessageInternal, err)
		return
	}

	env, err := didcomm.EncryptAndSign(string(body), s.deps.Accessor.MyDID(), s.deps.Accessor.MyKeyring(), toDoc, nil)
	if err != nil {
		if isErr(err, didcomm.ErrPublicKeyMissing) {
			respondError(c, apierror.CreateDidCommMessageNoPubKey, err)
		} else {
			respondError(c, apierror.CreateDidcommMessageInternal, err)
		}
		return
	}

	if s.deps.Studio != nil {
		err := s.deps.Studio.CreateMessageActivity(ctx, &studio.MessageActivity{
			FromDID:    s.deps.Accessor.MyDID(),
			ToDID:      req.DestinationDid,
			Operation:  req.OperationTag,
			OccurredAt: time.Now().Unix(),
		})
		if err != nil {
			respondError(c, mapStudioError(err), err)
			return
		}
	}

	c.JSON(http.StatusOK, env)
}

type verifyMessageRequest struct {
	Message json.RawMessage `json:"message"`
}

func (s *Server) verifyDidCommMessage(c *gin.Context) {
	var req verifyMessageRequest
	_ = c.ShouldBindJSON(&req)

	var env didcomm.Envelope
	if err := json.Unmarshal(req.Message, &env); err != nil {
		respondError(c, apierror.VerifyDidcommMessageJSONError, err)
		return
	}

	sender, err := env.FindSender()
	if err != nil {
		respondError(c, apierror.VerifyDidcommMessageNoSender, err)
		return
	}

	ctx := c.Request.Context()
	fromDoc, err := s.deps.Identity.FindIdentifier(ctx, sender)
	if err != nil {
		if isErr(err, webvh.ErrNotFound) || isErr(err, did.ErrUnsupportedMethod) {
			respondError(c, apierror.VerifyDidcommMessageNoTargetDid, err)
		} else {
			respondError(c, apierror.VerifyDidcommMessageInternal, err)
		}
		return
	}

	msg, err := didcomm.VerifyAndDecrypt(&env, fromDoc, s.deps.Accessor.MyKeyring())
	if err != nil {
		switch {
		case isErr(err, didcomm.ErrVerifyFailed),
			isErr(err, didcomm.ErrDecryptionFailed),
			isErr(err, didcomm.ErrSenderMismatch):
			respondError(c, apierror.VerifyDidcommMessageVerifyFailed, err)
		case isErr(err, didcomm.ErrPublicKeyMissing):
			respondError(c, apierror.VerifyDidcommMessageNoPublicKey, err)
		case isErr(err, didcomm.ErrJSON):
			respondError(c, apierror.VerifyDidcommMessageJSONError, err)
		default:
			respondError(c, apierror.VerifyDidcommMessageInternal, err)
		}
		return
	}

	if !msg.AddressedTo(s.deps.Accessor.MyDID()) {
		respondError(c, apierror.VerifyDidcommMessageNotAddressedToMe, nil)
		return
	}

	if s.deps.Studio != nil {
		err := s.deps.Studio.VerifyMessageActivity(ctx, &studio.MessageActivity{
			MessageID:  msg.ID,
			FromDID:    msg.From,
			ToDID:      s.deps.Accessor.MyDID(),
			IsVerified: true,
			OccurredAt: time.Now().Unix(),
		})
		if err != nil {
			respondError(c, mapStudioError(err), err)
			return
		}
	}

	container := didcomm.Container(msg)
	resp := gin.H{"message": decodedBody(msg.Body)}
	if container.Metadata != nil {
		resp["metadata"] = container.Metadata
	}
	c.JSON(http.StatusOK, resp)
}

// decodedBody surfaces a JSON body as JSON instead of an escaped string;
// non-JSON bodies pass through as-is.
func decodedBody(body string) any {
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return body
	}
	return v
}

// --- verifiable messages ---------------------------------------------------

func (s *Server) createVerifiableMessage(c *gin.Context) {
	var req createMessageRequest
	_ = c.ShouldBindJSON(&req)
	if req.Message == "" {
		respondError(c, apierror.CreateVerifiableMessageNoMessage, nil)
		return
	}
	if req.DestinationDid == "" {
		respondError(c, apierror.CreateVerifiableMessageNoDestination, nil)
		return
	}
	if req.OperationTag == "" {
		respondError(c, apierror.CreateVerifiableMessageNoOperationTag, nil)
		return
	}

	ctx := c.Request.Context()
	if _, err := s.deps.Identity.FindIdentifier(ctx, req.DestinationDid); err != nil {
		if isErr(err, webvh.ErrNotFound) || isErr(err, did.ErrUnsupportedMethod) {
			respondError(c, apierror.CreateVerifiableMessageNoTarget, err)
		} else {
			respondError(c, apierror.CreateVerifiableMessageInternal, err)
		}
		return
	}

	container, err := jsonw.Marshal(messagePayload{Payload: req.Message, OperationTag: req.OperationTag})
	if err != nil {
		respondError(c, apierror.CreateVerifiableMessageInternal, err)
		return
	}

	cred := vc.New(s.deps.Accessor.MyDID(), container, time.Now())
	cred.CredentialSubject.ID = req.DestinationDid
	if err := vc.Sign(cred, s.deps.Accessor.MyKeyring(), time.Now()); err != nil {
		respondError(c, apierror.CreateVerifiableMessageInternal, err)
		return
	}

	if s.deps.Studio != nil {
		err := s.deps.Studio.CreateMessageActivity(ctx, &studio.MessageActivity{
			FromDID:    s.deps.Accessor.MyDID(),
			ToDID:      req.DestinationDid,
			Operation:  req.OperationTag,
			OccurredAt: time.Now().Unix(),
		})
		if err != nil {
			respondError(c, mapStudioError(err), err)
			return
		}
	}

	c.JSON(http.StatusOK, cred)
}

func (s *Server) verifyVerifiableMessage(c *gin.Context) {
	var req verifyMessageRequest
	_ = c.ShouldBindJSON(&req)

	var cred vc.Credential
	if err := json.Unmarshal(req.Message, &cred); err != nil {
		respondError(c, apierror.VerifyVerifiableMessageJSONError, err)
		return
	}
	if cred.Issuer.ID == "" {
		respondError(c, apierror.VerifyVerifiableMessageNoIssuer, nil)
		return
	}

	issuerDoc, err := s.deps.Identity.FindIdentifier(c.Request.Context(), cred.Issuer.ID)
	if err != nil {
		if isErr(err, webvh.ErrNotFound) || isErr(err, did.ErrUnsupportedMethod) {
			respondError(c, apierror.VerifyVerifiableMessageNoIssuer, err)
		} else {
			respondError(c, apierror.VerifyVerifiableMessageInternal, err)
		}
		return
	}

	if err := vc.Verify(&cred, issuerDoc); err != nil {
		if isErr(err, vc.ErrNoSigningKey) {
			respondError(c, apierror.VerifyVerifiableMessageNoPublicKey, err)
		} else {
			respondError(c, apierror.VerifyVerifiableMessageVerifyFailed, err)
		}
		return
	}

	if cred.CredentialSubject.ID != "" && cred.CredentialSubject.ID != s.deps.Accessor.MyDID() {
		respondError(c, apierror.VerifyVerifiableMessageNotAddressedToMe, nil)
		return
	}

	c.JSON(http.StatusOK, cred)
}

// --- events / metrics / attributes ----------------------------------------

// occurredAtMillis validates the fixed 13-digit millisecond form.
func occurredAtMillis(s string) (int64, bool) {
	if len(s) != 13 {
		return 0, false
	}
	var v int64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		v = v*10 + int64(r-'0')
	}
	return v, true
}

type eventItem struct {
	Key        string `json:"key"`
	Detail     string `json:"detail"`
	OccurredAt string `json:"occurred_at"`
}

func (s *Server) sendEvents(c *gin.Context) {
	var items []eventItem
	_ = c.ShouldBindJSON(&items)

	events := make([]studio.EventRecord, 0, len(items))
	for _, it := range items {
		if it.Key == "" {
			respondError(c, apierror.SendEventNoKey, nil)
			return
		}
		if it.Detail == "" {
			respondError(c, apierror.SendEventNoDetail, nil)
			return
		}
		ms, ok := occurredAtMillis(it.OccurredAt)
		if !ok {
			respondError(c, apierror.SendEventInvalidOccurredAt, nil)
			return
		}
		events = append(events, studio.EventRecord{Key: it.Key, Detail: it.Detail, OccurredAt: ms})
	}

	if s.deps.Studio != nil {
		if err := s.deps.Studio.SendEvents(c.Request.Context(), events); err != nil {
			respondError(c, apierror.SendEventInternal, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

type customMetricRequest struct {
	Key        string  `json:"key"`
	Value      float64 `json:"value"`
	OccurredAt string  `json:"occurred_at"`
}

func (s *Server) sendCustomMetric(c *gin.Context) {
	var req customMetricRequest
	_ = c.ShouldBindJSON(&req)
	if req.Key == "" {
		respondError(c, apierror.SendCustomMetricNoKey, nil)
		return
	}
	ms, ok := occurredAtMillis(req.OccurredAt)
	if !ok {
		respondError(c, apierror.SendCustomMetricInvalidOccurredAt, nil)
		return
	}

	if s.deps.Studio != nil {
		metrics := []studio.MetricRecord{{Key: req.Key, Value: req.Value, OccurredAt: ms}}
		if err := s.deps.Studio.SendMetrics(c.Request.Context(), metrics); err != nil {
			respondError(c, apierror.SendCustomMetricInternal, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

type attributeRequest struct {
	KeyName string `json:"key_name"`
	Value   string `json:"value"`
}

func (s *Server) sendAttribute(c *gin.Context) {
	var req attributeRequest
	_ = c.ShouldBindJSON(&req)
	if req.KeyName == "" {
		respondError(c, apierror.SendAttributeNoKeyName, nil)
		return
	}
	if req.Value == "" {
		respondError(c, apierror.SendAttributeNoValue, nil)
		return
	}

	if s.deps.Studio != nil {
		if err := s.deps.Studio.SendAttribute(c.Request.Context(), req.KeyName, req.Value); err != nil {
			respondError(c, apierror.SendAttributeInternal, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// --- internal --------------------------------------------------------------

func (s *Server) versionGet(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": s.deps.Version})
}

type versionUpdateRequest struct {
	Message struct {
		BinaryURL string `json:"binary_url"`
	} `json:"message"`
}

func (s *Server) versionUpdate(c *gin.Context) {
	var req versionUpdateRequest
	_ = c.ShouldBindJSON(&req)
	if req.Message.BinaryURL == "" {
		respondError(c, apierror.VersionNoBinaryURL, nil)
		return
	}

	if s.deps.StageUpdate != nil {
		if err := s.deps.StageUpdate(c.Request.Context(), req.Message.BinaryURL); err != nil {
			respondError(c, apierror.VersionInternal, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{})
}

type networkUpdateRequest struct {
	Message map[string]string `json:"message"`
}

func (s *Server) updateNetwork(c *gin.Context) {
	var req networkUpdateRequest
	_ = c.ShouldBindJSON(&req)

	if s.deps.Network != nil && len(req.Message) > 0 {
		if err := s.deps.Network.SetAll(req.Message); err != nil {
			respondError(c, apierror.NetworkInternal, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{})
}
