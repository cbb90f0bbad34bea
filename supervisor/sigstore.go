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

package supervisor

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/verify"
)

// ErrSignatureInvalid marks a bundle whose detached sigstore signature did
// not verify against the configured identity policy. Unverified bundles are
// never executed.
var ErrSignatureInvalid = errors.New("supervisor: bundle signature invalid")

// Verifier checks a detached sigstore signature bundle against the blob it
// signs.
type Verifier interface {
	Verify(signaturePath, blobPath string) error
}

// SigstoreVerifier verifies signed artifact bundles against the Sigstore
// public-good trust root with a fixed certificate identity and OIDC issuer.
type SigstoreVerifier struct {
	Identity string
	Issuer   string
}

// Verify parses the sigstore bundle JSON at signaturePath and runs full
// verification (certificate chain, transparency log, identity policy)
// against the blob at blobPath.
func (v *SigstoreVerifier) Verify(signaturePath, blobPath string) error {
	blob, err := os.ReadFile(blobPath)
	if err != nil {
		return errors.Wrapf(err, "read artifact %s", blobPath)
	}
	bundleJSON, err := os.ReadFile(signaturePath)
	if err != nil {
		return errors.Wrapf(err, "read signature bundle %s", signaturePath)
	}

	b := &bundle.Bundle{}
	if err := b.UnmarshalJSON(bundleJSON); err != nil {
		return errors.Wrapf(ErrSignatureInvalid, "parse bundle: %v", err)
	}

	trustedMaterial, err := root.FetchTrustedRoot()
	if err != nil {
		return errors.Wrap(err, "fetch sigstore trusted root")
	}

	verifier, err := verify.NewSignedEntityVerifier(trustedMaterial,
		verify.WithSignedTimestamps(1),
	)
	if err != nil {
		return errors.Wrap(err, "create sigstore verifier")
	}

	certID, err := verify.NewShortCertificateIdentity(v.Issuer, "", v.Identity, "")
	if err != nil {
		return errors.Wrap(err, "build certificate identity policy")
	}

	policy := verify.NewPolicy(
		verify.WithArtifact(bytes.NewReader(blob)),
		verify.WithCertificateIdentity(certID),
	)

	if _, err := verifier.Verify(b, policy); err != nil {
		return errors.Wrapf(ErrSignatureInvalid, "%v", err)
	}
	return nil
}
