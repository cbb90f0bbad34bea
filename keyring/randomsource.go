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

import (
	"crypto/rand"
	"io"
)

// RandomSource abstracts where Create reads its entropy from. The default
// is the OS CSPRNG; build-time addons that wire an external TRNG satisfy
// the same interface without this package knowing
// the difference.
type RandomSource interface {
	io.Reader
}

// OSRandom is the default RandomSource, backed by crypto/rand.
var OSRandom RandomSource = rand.Reader
