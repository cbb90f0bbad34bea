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

package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/nodecross/nodex/runtimeinfo"
	"github.com/nodecross/nodex/supervisor"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// runtimeInfoName is the fixed shared-memory object both processes open.
const runtimeInfoName = "nodex_runtime_info"

func runController(c *cli.Context) error {
	paths := defaultPaths()
	if err := ensureDirs(paths); err != nil {
		return cli.Exit(err, 1)
	}
	cfg, err := loadConfig(c.String("config"), paths)
	if err != nil {
		return cli.Exit(err, 1)
	}

	version, err := semver.NewVersion(Version)
	if err != nil {
		return cli.Exit(err, 1)
	}

	storage, err := runtimeinfo.NewMmapStorage(runtimeInfoName)
	if err != nil {
		// Inability to read the runtime-info region is fatal.
		log.Err(err).Msg("cannot open runtime info region")
		return cli.Exit(err, 1)
	}
	defer storage.Close()

	err = storage.ApplyWithLock(func(r *runtimeinfo.RuntimeInfo) error {
		r.RemoveProcess(os.Getpid())
		r.AddProcess(runtimeinfo.ProcessInfo{
			PID:       os.Getpid(),
			StartedAt: time.Now().UTC().Format(time.RFC3339),
			Version:   Version,
			Role:      runtimeinfo.RoleController,
		})
		return nil
	})
	if err != nil {
		return cli.Exit(err, 1)
	}

	resources, err := supervisor.NewResourceManager(paths.WorkDir, paths.BundlesDir, paths.BackupsDir)
	if err != nil {
		return cli.Exit(err, 1)
	}

	verifier := &supervisor.SigstoreVerifier{
		Identity: cfg.String("sigstore.identity"),
		Issuer:   cfg.String("sigstore.issuer"),
	}

	// Under systemd socket activation the listener is inherited; otherwise
	// the controller binds it and passes it down to every agent child.
	listener, listenerFile, err := createControllerListener(paths)
	if err != nil {
		log.Err(err).Msg("cannot establish listener")
		return cli.Exit(err, 1)
	}
	// The controller never serves on the socket itself; it keeps the
	// listener alive across agent restarts.
	_ = listener

	exe, err := os.Executable()
	if err != nil {
		return cli.Exit(err, 1)
	}
	launcher := newLauncher(exe, listenerFile)

	ctrl := supervisor.NewController(storage, resources, verifier, launcher, version, paths.WorkDir)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	log.Info().Str("version", Version).Msg("controller running")
	return ctrl.Run(ctx)
}

func createControllerListener(paths Paths) (net.Listener, *os.File, error) {
	if l, err := supervisor.ListenerFromEnvironment(); err == nil {
		// Socket activation: re-derive a dup for the children.
		type filer interface{ File() (*os.File, error) }
		if fl, ok := l.(filer); ok {
			f, err := fl.File()
			if err != nil {
				return nil, nil, err
			}
			return l, f, nil
		}
		return l, nil, nil
	}
	return supervisor.CreateListener(paths.SocketPath)
}
