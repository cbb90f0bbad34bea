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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// HTTPStore is the production DataStore: it resolves a did:webvh path
// (host-and-path with "%3A" standing in for colons) to the fixed
// "/did.jsonl" resource, using the same retryablehttp client
// pattern as the studio client (internal/studio).
type HTTPStore struct {
	Scheme string // defaults to "https" unless explicitly configured otherwise
	Client *retryablehttp.Client
}

// NewHTTPStore builds an HTTPStore with the default timeout/retry policy: three
// attempts, exponential backoff capped at one minute.
func NewHTTPStore() *HTTPStore {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.RetryWaitMax = time.Minute
	client.Logger = nil
	client.HTTPClient.Timeout = 30 * time.Second
	return &HTTPStore{Scheme: "https", Client: client}
}

func (s *HTTPStore) scheme() string {
	if s.Scheme == "" {
		return "https"
	}
	return s.Scheme
}

// logURL decodes "%3A" back to ":" in the host-and-path segment and appends
// the fixed "/did.jsonl" resource name.
func (s *HTTPStore) logURL(path string) string {
	decoded := strings.ReplaceAll(path, "%3A", ":")
	return fmt.Sprintf("%s://%s/did.jsonl", s.scheme(), decoded)
}

func (s *HTTPStore) Get(ctx context.Context, path string) ([]LogEntry, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.logURL(path), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	var entries []LogEntry
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("webvh: decode log line: %w", err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTransport, err)
	}
	return entries, nil
}

func (s *HTTPStore) Post(ctx context.Context, path string, entries []LogEntry) error {
	return s.submit(ctx, http.MethodPost, path, entries)
}

func (s *HTTPStore) Put(ctx context.Context, path string, entry LogEntry) error {
	return s.submit(ctx, http.MethodPut, path, []LogEntry{entry})
}

func (s *HTTPStore) Delete(ctx context.Context, path string, entry LogEntry) error {
	return s.submit(ctx, http.MethodDelete, path, []LogEntry{entry})
}

func (s *HTTPStore) submit(ctx context.Context, method, path string, entries []LogEntry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("webvh: encode log line: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, s.logURL(path), &buf)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/jsonl")

	resp, err := s.Client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("method", method).Str("path", path).Msg("webvh log submission failed")
		return fmt.Errorf("%w: %s", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}
	return nil
}
