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

package webvh

import (
	"encoding/json"
	"strings"

	ncrypto "github.com/nodecross/nodex/crypto"
)

// computeSCID hashes the canonical JSON of the pre-entry (genesis entry
// with every "{SCID}" placeholder still literally present and proof
// cleared).
func computeSCID(preEntry LogEntry) (string, error) {
	payload, err := ncrypto.CanonicalJSON(preEntry.withoutProof())
	if err != nil {
		return "", err
	}
	return ncrypto.MultihashSHA256Base58BTC(payload)
}

// substituteSCID replaces every literal Placeholder occurrence with scid,
// inside state.id, parameters.scid, and versionId. It works
// by round-tripping through JSON text substitution rather than field-by-
// field reflection, since the placeholder can appear nested in the
// document id, verification method ids, and service endpoints alike.
func substituteSCID(entry LogEntry, scid string) (LogEntry, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return LogEntry{}, err
	}
	replaced := strings.ReplaceAll(string(raw), Placeholder, scid)

	var out LogEntry
	if err := json.Unmarshal([]byte(replaced), &out); err != nil {
		return LogEntry{}, err
	}
	return out, nil
}

// computeEntryHash computes the multihash of the
// canonical JSON of entry with its proof cleared and its versionId replaced
// by previousVersionID (or the SCID placeholder for the genesis entry).
func computeEntryHash(entry LogEntry, previousVersionID string) (string, error) {
	candidate := entry.withoutProof().withVersionID(previousVersionID)
	payload, err := ncrypto.CanonicalJSON(candidate)
	if err != nil {
		return "", err
	}
	return ncrypto.MultihashSHA256Base58BTC(payload)
}
