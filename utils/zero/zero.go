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

// Package zero overwrites sensitive byte slices in place so secret material
// doesn't linger in memory longer than necessary.
package zero

// Bytes sets every byte in b to zero.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// String drops the reference *s holds by setting it to the empty string.
// Go strings are immutable, so the bytes of the old value are not
// overwritten; they stay in memory until the garbage collector reclaims them.
func String(s *string) {
	*s = ""
}
