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

//go:build !windows

package supervisor

import (
	"net"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
)

// ListenFDEnv names the file descriptor the controller passes to the agent
// child. The fd number recorded here is the child's view (ExtraFiles start
// at 3).
const ListenFDEnv = "NODEX_LISTEN_FD"

// systemd socket activation passes the first socket as fd 3.
const systemdFDStart = 3

// ErrNoInheritedListener is returned when neither systemd activation nor a
// controller-passed fd is present; the caller then binds its own listener.
var ErrNoInheritedListener = errors.New("supervisor: no inherited listener")

// ListenerFromEnvironment reconstitutes the pre-bound listening socket: from
// systemd socket activation when LISTEN_PID matches this process and
// LISTEN_FDS is positive, otherwise from the controller-passed fd. The
// reconstituted listener is never re-bound.
func ListenerFromEnvironment() (net.Listener, error) {
	if pid, err := strconv.Atoi(os.Getenv("LISTEN_PID")); err == nil && pid == os.Getpid() {
		if n, err := strconv.Atoi(os.Getenv("LISTEN_FDS")); err == nil && n > 0 {
			log.Info().Msg("using systemd socket activation")
			return listenerFromFD(systemdFDStart)
		}
	}

	if v := os.Getenv(ListenFDEnv); v != "" {
		fd, err := strconv.Atoi(v)
		if err != nil {
			return nil, errors.Wrapf(err, "bad %s value %q", ListenFDEnv, v)
		}
		return listenerFromFD(fd)
	}

	return nil, ErrNoInheritedListener
}

func listenerFromFD(fd int) (net.Listener, error) {
	f := os.NewFile(uintptr(fd), "inherited-listener")
	if f == nil {
		return nil, errors.Newf("supervisor: fd %d is not open", fd)
	}
	l, err := net.FileListener(f)
	// FileListener dups the fd; the original is no longer needed.
	f.Close()
	if err != nil {
		return nil, errors.Wrapf(err, "reconstitute listener from fd %d", fd)
	}
	return l, nil
}

// CreateListener binds the Unix domain socket the controller owns and
// returns both the listener and a duplicated *os.File suitable for passing
// to the agent child via ExtraFiles. A stale socket file from a previous
// run is removed first.
func CreateListener(sockPath string) (net.Listener, *os.File, error) {
	if err := os.Remove(sockPath); err != nil && !os.IsNotExist(err) {
		return nil, nil, errors.Wrapf(err, "remove stale socket %s", sockPath)
	}

	l, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "bind %s", sockPath)
	}

	f, err := l.(*net.UnixListener).File()
	if err != nil {
		l.Close()
		return nil, nil, errors.Wrap(err, "duplicate listener fd")
	}
	return l, f, nil
}
