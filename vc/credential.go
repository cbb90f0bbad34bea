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

// Package vc carries a signed payload as a minimal verifiable credential:
// issuer, issuance date, a credentialSubject container, and a detached
// ES256K JWS proof. It is deliberately not a full W3C VC profile.
package vc

import (
	"encoding/json"
	"time"
)

// CredentialContext and CredentialType are the fixed @context / type values
// every credential this agent issues carries.
const (
	CredentialContext = "https://www.w3.org/2018/credentials/v1"
	CredentialType    = "VerifiableCredential"
)

type Issuer struct {
	ID string `json:"id"`
}

// CredentialSubject wraps the caller's payload under a container key, so the
// credential shape stays stable regardless of what is being signed.
type CredentialSubject struct {
	ID        string          `json:"id,omitempty"`
	Container json.RawMessage `json:"container"`
}

// Proof is the detached-JWS proof attached to a signed credential.
type Proof struct {
	Type               string `json:"type"`
	ProofPurpose       string `json:"proofPurpose"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	JWS                string `json:"jws"`
	Controller         string `json:"controller,omitempty"`
	Challenge          string `json:"challenge,omitempty"`
	Domain             string `json:"domain,omitempty"`
}

// Credential is the signed message envelope for the verifiable-message
// endpoints.
type Credential struct {
	ID                string            `json:"id,omitempty"`
	Issuer            Issuer            `json:"issuer"`
	IssuanceDate      string            `json:"issuanceDate"`
	ExpirationDate    string            `json:"expirationDate,omitempty"`
	Context           []string          `json:"@context"`
	Type              []string          `json:"type"`
	CredentialSubject CredentialSubject `json:"credentialSubject"`
	Proof             *Proof            `json:"proof,omitempty"`
}

// New builds an unsigned credential issued by fromDID over message.
func New(fromDID string, message json.RawMessage, issuedAt time.Time) *Credential {
	return &Credential{
		Issuer:            Issuer{ID: fromDID},
		IssuanceDate:      issuedAt.UTC().Format(time.RFC3339),
		Context:           []string{CredentialContext},
		Type:              []string{CredentialType},
		CredentialSubject: CredentialSubject{Container: message},
	}
}

// withoutProof returns a copy of c with the proof cleared, the value every
// signature in this package covers.
func (c Credential) withoutProof() Credential {
	c.Proof = nil
	return c
}
