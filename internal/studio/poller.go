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
	"encoding/json"
	"strings"
	"time"

	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/didcomm"
	"github.com/nodecross/nodex/keyring"
	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often the queue is drained.
const DefaultPollInterval = time.Hour

// OperationUpdateAgent is the control operation the project DID sends to
// trigger a supervised update.
const OperationUpdateAgent = "UpdateAgent"

// OperationUpdateNetwork asks the agent to refresh its network config from
// the studio.
const OperationUpdateNetwork = "UpdateNetworkJson"

// Resolver resolves a sender DID to its document; satisfied by
// did/webvh.Resolver behind the agent's datastore.
type Resolver interface {
	Resolve(ctx context.Context, d *did.DID) (*did.Document, error)
}

// controlMessage is the body shape of a project-originated control message.
type controlMessage struct {
	Operation string `json:"operation"`
	BinaryURL string `json:"binary_url"`
}

// Poller owns the receive loop: it drains queued messages in the order the
// studio returns them, verifies each through didcomm, ACKs exactly once per
// message (success or failure), and dispatches control operations when the
// sender is the project DID.
type Poller struct {
	Client   *Client
	Resolver Resolver
	Accessor keyring.Accessor
	Interval time.Duration

	// UpdateAgent stages an update for the controller; RefreshNetwork pulls
	// fresh network config. Both are injected from main.
	UpdateAgent    func(ctx context.Context, binaryURL string) error
	RefreshNetwork func(ctx context.Context) error
}

// Run drives the canonical two-arm select loop: interval tick or shutdown.
// Per-message errors never stop the loop.
func (p *Poller) Run(ctx context.Context) {
	log.Info().Msg("polling task is started")

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := p.ReceiveMessages(ctx); err != nil {
				log.Err(err).Msg("message receive failed")
			}
		case <-ctx.Done():
			log.Info().Msg("polling task is stopped")
			return
		}
	}
}

// ReceiveMessages drains the queue once. Messages are processed strictly in
// order, ACK-then-next; a message that fails verification is ACKed as
// failed and the loop continues.
func (p *Poller) ReceiveMessages(ctx context.Context) error {
	messages, err := p.Client.GetMessages(ctx)
	if err != nil {
		return err
	}

	for _, m := range messages {
		if err := p.handleMessage(ctx, m); err != nil {
			log.Err(err).Str("message_id", m.ID).Msg("message handling failed")
		}
	}
	return nil
}

func (p *Poller) handleMessage(ctx context.Context, m QueuedMessage) error {
	var env didcomm.Envelope
	if err := json.Unmarshal([]byte(m.RawMessage), &env); err != nil {
		if ackErr := p.Client.AckMessage(ctx, m.ID, false); ackErr != nil {
			return ackErr
		}
		return err
	}
	log.Info().Str("message_id", m.ID).Msg("received message")

	sender, err := env.FindSender()
	if err != nil {
		return p.ackFailed(ctx, m.ID, err)
	}
	senderDID, err := did.Parse(sender)
	if err != nil {
		return p.ackFailed(ctx, m.ID, err)
	}
	fromDoc, err := p.Resolver.Resolve(ctx, senderDID)
	if err != nil {
		return p.ackFailed(ctx, m.ID, err)
	}

	msg, err := didcomm.VerifyAndDecrypt(&env, fromDoc, p.Accessor.MyKeyring())
	if err != nil {
		log.Error().Str("message_id", m.ID).Msg("verify failed")
		return p.ackFailed(ctx, m.ID, err)
	}

	log.Info().Str("message_id", m.ID).Str("from", sender).Msg("verify success")
	if err := p.Client.AckMessage(ctx, m.ID, true); err != nil {
		return err
	}

	if sender != p.Client.ProjectDID {
		log.Error().Str("from", sender).Msg("control messages from peers are not supported")
		return nil
	}
	return p.dispatchControl(ctx, msg)
}

func (p *Poller) ackFailed(ctx context.Context, messageID string, cause error) error {
	if err := p.Client.AckMessage(ctx, messageID, false); err != nil {
		return err
	}
	return cause
}

func (p *Poller) dispatchControl(ctx context.Context, msg *didcomm.Message) error {
	var ctrl controlMessage
	if err := json.Unmarshal([]byte(msg.Body), &ctrl); err != nil {
		log.Error().Err(err).Msg("control message body is not json")
		return nil
	}

	switch ctrl.Operation {
	case OperationUpdateAgent:
		if ctrl.BinaryURL == "" {
			log.Error().Msg("update message carries no binary_url")
			return nil
		}
		if !strings.HasPrefix(ctrl.BinaryURL, "https://") {
			log.Error().Str("url", ctrl.BinaryURL).Msg("refusing non-https binary url")
			return nil
		}
		if p.UpdateAgent == nil {
			return nil
		}
		return p.UpdateAgent(ctx, ctrl.BinaryURL)
	case OperationUpdateNetwork:
		if p.RefreshNetwork == nil {
			return nil
		}
		return p.RefreshNetwork(ctx)
	default:
		log.Error().Str("operation", ctrl.Operation).Msg("unknown control operation")
		return nil
	}
}
