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

package vc

import (
	_ "embed"
	"errors"
	"sync"

	"github.com/nodecross/nodex/utils/jsonw"
	"github.com/piprate/json-gold/ld"
)

const ldBase = "https://nodecross.io/"

// credentialsV1Context is a trimmed offline copy of the W3C credentials
// context covering the terms this profile emits, so signing never blocks
// on fetching the context over the network.
//
//go:embed contexts/credentials-v1.jsonld
var credentialsV1Context []byte

var (
	documentLoaderLock    sync.Mutex
	defaultDocumentLoader = ld.DocumentLoader(ld.NewCachingDocumentLoader(ld.NewDefaultDocumentLoader(nil)))
	preloadOnce           sync.Once
)

// DefaultDocumentLoader returns the process-wide caching JSON-LD document
// loader used to expand credential contexts.
func DefaultDocumentLoader() ld.DocumentLoader {
	return defaultDocumentLoader
}

// PreloadContexts seeds the loader's cache with the embedded context copies.
// Sign calls it lazily; calling it up front in main just front-loads the
// parse.
func PreloadContexts() error {
	var err error
	preloadOnce.Do(func() {
		err = PutBinaryContextIntoDefaultDocumentLoader(CredentialContext, credentialsV1Context)
	})
	return err
}

// PutBinaryContextIntoDefaultDocumentLoader caches ctx (raw JSON) for url.
// Besides the embedded defaults, operators can preload additional contexts
// their credential subjects reference.
func PutBinaryContextIntoDefaultDocumentLoader(url string, ctx []byte) error {
	documentLoaderLock.Lock()
	defer documentLoaderLock.Unlock()

	cdl, correctType := defaultDocumentLoader.(*ld.CachingDocumentLoader)
	if !correctType {
		return errors.New("failed to put context into cache: wrong loader type")
	}

	var ctxDoc any
	if err := jsonw.Unmarshal(ctx, &ctxDoc); err != nil {
		return err
	}

	cdl.AddDocument(url, ctxDoc)

	return nil
}

// ExpandCredential runs JSON-LD expansion over the serialized credential;
// it fails when the credential's @context cannot be resolved or the
// document does not parse as JSON-LD. Sign uses it as a structural check
// before producing a proof.
func ExpandCredential(c *Credential) ([]byte, error) {
	input, err := jsonw.Marshal(c)
	if err != nil {
		return nil, err
	}

	var val any
	if err := jsonw.Unmarshal(input, &val); err != nil {
		return nil, err
	}

	proc := ld.NewJsonLdProcessor()

	opts := ld.NewJsonLdOptions(ldBase)
	opts.ProcessingMode = ld.JsonLd_1_1
	opts.DocumentLoader = DefaultDocumentLoader()

	newData, err := proc.Expand(val, opts)
	if err != nil {
		return nil, err
	}

	return jsonw.Marshal(newData)
}
