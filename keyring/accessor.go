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

package keyring

// Accessor is the indirection HTTP handlers and the polling task use
// instead of the concrete keyring: the agent's own DID plus its loaded
// (read-only) keyring. Constructed once in main and threaded through
// constructors.
type Accessor interface {
	MyDID() string
	MyKeyring() *Keyring
}

// StaticAccessor is the production Accessor, fixed at agent startup.
type StaticAccessor struct {
	DID     string
	Keyring *Keyring
}

func (a *StaticAccessor) MyDID() string       { return a.DID }
func (a *StaticAccessor) MyKeyring() *Keyring { return a.Keyring }
