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

// Package studio is the HTTP client for the project backend: message
// activity records, metrics, device registration, and the per-device
// message queue the polling task drains. Requests authenticate with an
// HMAC-SHA-256 over the agent's project DID keyed by the shared secret.
package studio

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nodecross/nodex/utils/jsonw"
)

// SignatureHeader carries the HMAC authentication value.
const SignatureHeader = "X-Nodex-Signature"

// Status-aligned failure kinds; the HTTP boundary maps these to the
// MessageActivity* code table.
var (
	ErrBadRequest   = errors.New("studio: bad request")
	ErrForbidden    = errors.New("studio: forbidden")
	ErrUnauthorized = errors.New("studio: unauthorized")
	ErrNotFound     = errors.New("studio: not found")
	ErrConflict     = errors.New("studio: conflict")
	ErrInternal     = errors.New("studio: internal error")
)

// Client talks to one studio backend on behalf of one device.
type Client struct {
	BaseURL    string
	ProjectDID string
	secret     []byte
	http       *retryablehttp.Client
}

// NewClient builds a Client with the standard retry policy: three attempts,
// exponential backoff capped at one minute.
func NewClient(baseURL, projectDID string, secret []byte) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMax = time.Minute
	c.Logger = nil
	c.HTTPClient.Timeout = 30 * time.Second
	return &Client{
		BaseURL:    baseURL,
		ProjectDID: projectDID,
		secret:     append([]byte{}, secret...),
		http:       c,
	}
}

// Signature computes the HMAC-SHA-256 over the project DID, hex-encoded,
// carried in SignatureHeader on every request.
func (c *Client) Signature() string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(c.ProjectDID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = jsonw.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrInternal, err)
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, c.Signature())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInternal, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return jsonw.Decode(resp.Body, out)
}

func statusError(status int) error {
	switch {
	case status < 300:
		return nil
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	default:
		return fmt.Errorf("%w: status %d", ErrInternal, status)
	}
}

// MessageActivity is one message-activity record.
type MessageActivity struct {
	ID          string          `json:"id,omitempty"`
	MessageID   string          `json:"message_id,omitempty"`
	FromDID     string          `json:"from_did,omitempty"`
	ToDID       string          `json:"to_did,omitempty"`
	Operation   string          `json:"operation_tag,omitempty"`
	IsVerified  bool            `json:"is_verified,omitempty"`
	OccurredAt  int64           `json:"occurred_at,omitempty"`
	MessageBody json.RawMessage `json:"message,omitempty"`
}

// CreateMessageActivity records an outbound message.
func (c *Client) CreateMessageActivity(ctx context.Context, rec *MessageActivity) error {
	return c.do(ctx, http.MethodPost, "/v1/message-activity", rec, nil)
}

// VerifyMessageActivity records the verification of an inbound message.
func (c *Client) VerifyMessageActivity(ctx context.Context, rec *MessageActivity) error {
	return c.do(ctx, http.MethodPut, "/v1/message-activity", rec, nil)
}

// MetricRecord is one data point for POST /v1/metrics.
type MetricRecord struct {
	Key        string  `json:"key"`
	Value      float64 `json:"value"`
	OccurredAt int64   `json:"occurred_at"`
}

// SendMetrics pushes collected metrics.
func (c *Client) SendMetrics(ctx context.Context, metrics []MetricRecord) error {
	return c.do(ctx, http.MethodPost, "/v1/metrics", metrics, nil)
}

// EventRecord is one application event.
type EventRecord struct {
	Key        string `json:"key"`
	Detail     string `json:"detail"`
	OccurredAt int64  `json:"occurred_at"`
}

// SendEvents pushes application events through the device endpoint.
func (c *Client) SendEvents(ctx context.Context, events []EventRecord) error {
	return c.do(ctx, http.MethodPost, "/v1/device", map[string]any{"events": events}, nil)
}

// SendAttribute registers a device attribute.
func (c *Client) SendAttribute(ctx context.Context, keyName, value string) error {
	return c.do(ctx, http.MethodPost, "/v1/device", map[string]string{
		"key_name": keyName,
		"value":    value,
	}, nil)
}

// DeviceInfo describes this device to the backend.
type DeviceInfo struct {
	DID           string `json:"did"`
	Version       string `json:"version"`
	OS            string `json:"os"`
	BinaryHash    string `json:"binary_hash,omitempty"`
	MACAddress    string `json:"mac_address,omitempty"`
}

// SendDeviceInfo reports device metadata.
func (c *Client) SendDeviceInfo(ctx context.Context, info *DeviceInfo) error {
	return c.do(ctx, http.MethodPost, "/v1/device-info", info, nil)
}

// QueuedMessage is one entry of the device's message queue.
type QueuedMessage struct {
	ID         string `json:"id"`
	RawMessage string `json:"raw_message"`
}

// GetMessages drains the queue of messages addressed to this device.
func (c *Client) GetMessages(ctx context.Context) ([]QueuedMessage, error) {
	var out []QueuedMessage
	err := c.do(ctx, http.MethodPost, "/v1/message/list", map[string]string{
		"project_did": c.ProjectDID,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AckMessage acknowledges one queued message, exactly once per message,
// recording whether verification succeeded.
func (c *Client) AckMessage(ctx context.Context, messageID string, success bool) error {
	return c.do(ctx, http.MethodPost, "/v1/message/ack", map[string]any{
		"project_did": c.ProjectDID,
		"message_id":  messageID,
		"is_verified": success,
	}, nil)
}
