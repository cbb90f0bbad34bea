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

//go:build windows

package supervisor

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Windows has no fd inheritance for sockets; the controller and agent agree
// on a fixed loopback TCP port instead.
const ListenPortEnv = "NODEX_LISTEN_PORT"

var ErrNoInheritedListener = errors.New("supervisor: no inherited listener")

// ListenerFromEnvironment binds the loopback port named in the environment.
func ListenerFromEnvironment() (net.Listener, error) {
	v := os.Getenv(ListenPortEnv)
	if v == "" {
		return nil, ErrNoInheritedListener
	}
	port, err := strconv.Atoi(v)
	if err != nil {
		return nil, errors.Wrapf(err, "bad %s value %q", ListenPortEnv, v)
	}
	return net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
}

// CreateListener binds the controller's loopback listener. The *os.File
// return is always nil on Windows; the port travels via environment.
func CreateListener(addr string) (net.Listener, *os.File, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "bind %s", addr)
	}
	return l, nil, nil
}
