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
	"os"
	"sync"

	"github.com/nodecross/nodex/utils/jsonw"
)

// Well-known network configuration keys.
const (
	NetworkKeyProjectDID     = "project_did"
	NetworkKeySecretKey      = "secret_key"
	NetworkKeyStudioEndpoint = "studio_endpoint"
)

// NetworkStore is the read-mostly network configuration (project DID,
// shared secret, studio endpoint) guarded by a short-lived lock. Writes
// persist immediately; the file is rewritten atomically.
type NetworkStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// LoadNetworkStore reads the config file at path, starting empty when it
// does not exist yet.
func LoadNetworkStore(path string) (*NetworkStore, error) {
	s := &NetworkStore{path: path, values: map[string]string{}}
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if err := jsonw.Unmarshal(raw, &s.values); err != nil {
		return nil, err
	}
	return s, nil
}

// Get returns the value for key, empty when unset.
func (s *NetworkStore) Get(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set updates key and persists the whole map.
func (s *NetworkStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.persist()
}

// SetAll replaces several keys in one write.
func (s *NetworkStore) SetAll(values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range values {
		s.values[k] = v
	}
	return s.persist()
}

func (s *NetworkStore) persist() error {
	body, err := jsonw.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, body, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
