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

// Package did implements DID string parsing and the DID Document model
// shared by the webvh and key methods this agent supports.
package did

import (
	"errors"
	"fmt"
	"strings"
)

// Method is one of the DID methods this module can resolve.
type Method string

const (
	MethodWeb   Method = "web"
	MethodWebVH Method = "webvh"
	MethodKey   Method = "key"
)

var ErrUnsupportedMethod = errors.New("did: unsupported method")

// ParseError wraps a malformed DID string with the reason it was rejected.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("did: cannot parse %q: %s", e.Input, e.Reason)
}

func (e *ParseError) Unwrap() error { return ErrUnsupportedMethod }

// DID is a parsed `did:<method>:<method-specific-id>` identifier. For
// did:webvh, MethodSpecificID additionally carries the SCID as its first
// colon-delimited segment per the did:webvh spec's `did:webvh:<scid>:<path>`
// shape; SCID() exposes that split without re-parsing.
type DID struct {
	Method           Method
	MethodSpecificID string
	raw              string
}

// Parse validates s as a `did:<method>:...` string and recognizes exactly
// the web, webvh, and key methods; every other method string (including the
// legacy sidetree-based did:nodex/did:unid methods)
// is rejected with ErrUnsupportedMethod.
func Parse(s string) (*DID, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] != "did" {
		return nil, &ParseError{Input: s, Reason: "not a did: URI"}
	}
	if parts[2] == "" {
		return nil, &ParseError{Input: s, Reason: "empty method-specific-id"}
	}

	method := Method(parts[1])
	switch method {
	case MethodWeb, MethodWebVH, MethodKey:
	default:
		return nil, &ParseError{Input: s, Reason: fmt.Sprintf("method %q not supported", parts[1])}
	}

	return &DID{Method: method, MethodSpecificID: parts[2], raw: s}, nil
}

// String returns the original DID string.
func (d *DID) String() string { return d.raw }

// SCID returns the SCID segment of a did:webvh identifier (the portion
// before the first further colon), or ("", false) for other methods.
func (d *DID) SCID() (string, bool) {
	if d.Method != MethodWebVH {
		return "", false
	}
	scid, _, _ := strings.Cut(d.MethodSpecificID, ":")
	return scid, true
}
