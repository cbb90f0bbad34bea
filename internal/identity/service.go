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

// Package identity glues the keyring and the did:webvh engine into the
// create/find identifier operations the HTTP surface exposes. Creation is
// idempotent: an agent that already owns a DID resolves and returns it.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/nodecross/nodex/did"
	"github.com/nodecross/nodex/did/webvh"
	"github.com/nodecross/nodex/keyring"
	"github.com/rs/zerolog/log"
)

// Service owns the agent's identity lifecycle.
type Service struct {
	Store    webvh.DataStore
	Resolver *webvh.Resolver
	Keystore keyring.Keystore

	// HostBase is the did host (host or host:port) log entries publish
	// under; colons are %3A-encoded when it becomes part of a DID.
	HostBase string
	Portable bool
	Random   keyring.RandomSource
}

// NewService wires a Service over one datastore.
func NewService(store webvh.DataStore, keystore keyring.Keystore, hostBase string) *Service {
	return &Service{
		Store:    store,
		Resolver: webvh.NewResolver(store),
		Keystore: keystore,
		HostBase: hostBase,
		Portable: true,
		Random:   keyring.OSRandom,
	}
}

// CreateIdentifier returns the agent's DID Document, creating keyring and
// did:webvh log on first boot. The keyring and the resulting DID are saved
// together; a crash between create and save leaves the store unloadable and
// the next boot starts over.
func (s *Service) CreateIdentifier(ctx context.Context) (*did.Document, error) {
	if ownerDID, err := keyring.LoadOwnerDID(ctx, s.Keystore); err == nil {
		if _, err := keyring.Load(ctx, s.Keystore); err == nil {
			if d, err := did.Parse(ownerDID); err == nil {
				if doc, err := s.Resolver.Resolve(ctx, d); err == nil {
					return doc, nil
				}
				log.Warn().Str("did", ownerDID).Msg("saved identifier no longer resolves, recreating")
			}
		}
	}

	kr, mnemonic, err := keyring.Create(s.Random)
	if err != nil {
		return nil, err
	}
	// The recovery phrase is surfaced exactly once, at creation.
	log.Info().Str("mnemonic", mnemonic).Msg("new keyring recovery phrase")

	path := s.logPath()
	doc, err := webvh.Create(ctx, s.Store, path, s.Portable, kr)
	if err != nil {
		return nil, err
	}

	if err := keyring.Save(ctx, s.Keystore, kr, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

// logPath builds a fresh per-identity path under the configured host, with
// colons pre-encoded per the did:webvh identifier shape.
func (s *Service) logPath() string {
	base := strings.ReplaceAll(s.HostBase, ":", "%3A")
	return base + "/webvh/v1/" + uuid.NewString()
}

// FindIdentifier resolves any supported DID.
func (s *Service) FindIdentifier(ctx context.Context, didStr string) (*did.Document, error) {
	d, err := did.Parse(didStr)
	if err != nil {
		return nil, err
	}
	return s.Resolver.Resolve(ctx, d)
}

// Accessor loads the saved keyring and DID into the read-only Accessor the
// handlers and polling task consume. It fails when the agent has not yet
// created an identity.
func (s *Service) Accessor(ctx context.Context) (keyring.Accessor, error) {
	ownerDID, err := keyring.LoadOwnerDID(ctx, s.Keystore)
	if err != nil {
		return nil, errors.New("identity: no identifier created yet")
	}
	kr, err := keyring.Load(ctx, s.Keystore)
	if err != nil {
		return nil, err
	}
	return &keyring.StaticAccessor{DID: ownerDID, Keyring: kr}, nil
}
