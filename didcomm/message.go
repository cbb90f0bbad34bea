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

package didcomm

import "encoding/json"

// Message is the plaintext sealed into an Envelope.
type Message struct {
	ID          string       `json:"id"`
	Typ         string       `json:"typ"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	CreatedTime int64        `json:"created_time"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is a typed payload carried alongside the body.
type Attachment struct {
	ID        string         `json:"id"`
	MediaType string         `json:"media_type,omitempty"`
	Format    string         `json:"format,omitempty"`
	Data      AttachmentData `json:"data"`
}

// AttachmentData holds the attachment content inline as JSON.
type AttachmentData struct {
	JSON json.RawMessage `json:"json"`
}

// FormatMetadata marks an attachment whose JSON is surfaced alongside the
// verified body as VerifiedContainer.Metadata.
const FormatMetadata = "metadata"

// VerifiedContainer pairs a verified, decrypted message with the metadata
// attachment, when one is present.
type VerifiedContainer struct {
	Message  *Message        `json:"message"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// Container wraps m, lifting a format=metadata attachment into Metadata.
func Container(m *Message) *VerifiedContainer {
	c := &VerifiedContainer{Message: m}
	for _, a := range m.Attachments {
		if a.Format == FormatMetadata {
			c.Metadata = a.Data.JSON
			break
		}
	}
	return c
}

// AddressedTo reports whether m lists ownDID among its recipients.
func (m *Message) AddressedTo(ownDID string) bool {
	for _, to := range m.To {
		if to == ownDID {
			return true
		}
	}
	return false
}
