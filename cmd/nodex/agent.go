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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/nodecross/nodex/did/webvh"
	"github.com/nodecross/nodex/internal/httpapi"
	"github.com/nodecross/nodex/internal/identity"
	"github.com/nodecross/nodex/internal/studio"
	"github.com/nodecross/nodex/keyring"
	"github.com/nodecross/nodex/supervisor"
	"github.com/nodecross/nodex/utils"
	"github.com/nodecross/nodex/utils/fingerprint"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func runAgent(c *cli.Context) error {
	paths := defaultPaths()
	if err := ensureDirs(paths); err != nil {
		return cli.Exit(err, 1)
	}
	cfg, err := loadConfig(c.String("config"), paths)
	if err != nil {
		return cli.Exit(err, 1)
	}

	log.Info().Str("version", Version).Str("os", runtime.GOOS).Msg("starting agent")

	keystore, err := keyring.NewFileKeystore(paths.KeystoreDir, keystorePassphrase(cfg))
	if err != nil {
		return cli.Exit(err, 1)
	}

	store := webvh.NewHTTPStore()
	if scheme := cfg.String("did.scheme"); scheme != "" {
		store.Scheme = scheme
	}
	hostBase := cfg.String("did.host")
	if hostBase == "" {
		hostBase = "localhost"
	}
	idSvc := identity.NewService(store, keystore, hostBase)

	ctx := context.Background()
	doc, err := idSvc.CreateIdentifier(ctx)
	if err != nil {
		// Inability to load or create the keyring is fatal for the process.
		log.Err(err).Msg("cannot establish identity")
		return cli.Exit(err, 1)
	}
	accessor, err := idSvc.Accessor(ctx)
	if err != nil {
		return cli.Exit(err, 1)
	}
	log.Info().Str("did", doc.ID).Msg("agent identity ready")

	network, err := httpapi.LoadNetworkStore(paths.NetworkFile)
	if err != nil {
		return cli.Exit(err, 1)
	}

	var studioClient *studio.Client
	if endpoint := network.Get(httpapi.NetworkKeyStudioEndpoint); endpoint != "" {
		studioClient = studio.NewClient(
			endpoint,
			network.Get(httpapi.NetworkKeyProjectDID),
			[]byte(network.Get(httpapi.NetworkKeySecretKey)),
		)
	}

	listener, err := supervisor.ListenerFromEnvironment()
	if err != nil {
		if err != supervisor.ErrNoInheritedListener {
			return cli.Exit(err, 1)
		}
		// Standalone run without a controller: bind our own socket.
		listener, _, err = supervisor.CreateListener(paths.SocketPath)
		if err != nil {
			log.Err(err).Msg("cannot bind listener")
			return cli.Exit(err, 1)
		}
	}

	server := httpapi.NewServer(httpapi.Deps{
		Version:     Version,
		Identity:    idSvc,
		Accessor:    accessor,
		Studio:      studioClient,
		Network:     network,
		StageUpdate: stageUpdateFunc(paths.BundlesDir),
	})

	guard := utils.NewShutdownGuard(2 * time.Minute)
	if studioClient != nil {
		reportDeviceInfo(ctx, studioClient, doc.ID)

		poller := &studio.Poller{
			Client:      studioClient,
			Resolver:    idSvc.Resolver,
			Accessor:    accessor,
			Interval:    cfg.Duration("poll.interval"),
			UpdateAgent: stageUpdateFunc(paths.BundlesDir),
			RefreshNetwork: func(context.Context) error {
				log.Info().Msg("network refresh requested")
				return nil
			},
		}
		// The guard's context is the shutdown token; the poller returns at
		// its next suspension point once it is cancelled.
		go poller.Run(guard.Context())
	}

	guard.CloseOnShutdown(closerFunc(func() error {
		shutdownCtx, done := context.WithTimeout(context.Background(), 30*time.Second)
		defer done()
		return server.Shutdown(shutdownCtx)
	}))

	log.Info().Str("addr", listener.Addr().String()).Msg("serving local API")
	return server.Serve(listener)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// stageUpdateFunc downloads an update bundle into the controller's staging
// directory; the supervisor's next tick picks it up.
func stageUpdateFunc(bundlesDir string) func(ctx context.Context, binaryURL string) error {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMax = time.Minute
	client.Logger = nil

	return func(ctx context.Context, binaryURL string) error {
		req, err := retryablehttp.NewRequestWithContext(ctx, "GET", binaryURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("download %s: status %d", binaryURL, resp.StatusCode)
		}

		name := filepath.Base(req.URL.Path)
		if name == "" || name == "." || name == "/" {
			name = "bundle.yaml"
		}
		tmp := filepath.Join(bundlesDir, name+".tmp")
		out, err := os.Create(tmp)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, resp.Body)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(tmp)
			return err
		}
		if err := os.Rename(tmp, filepath.Join(bundlesDir, name)); err != nil {
			return err
		}
		log.Info().Str("bundle", name).Msg("staged update bundle")
		return nil
	}
}

// reportDeviceInfo tells the studio who we are, including a fingerprint of
// the running executable.
func reportDeviceInfo(ctx context.Context, client *studio.Client, did string) {
	info := &studio.DeviceInfo{
		DID:     did,
		Version: Version,
		OS:      runtime.GOOS,
	}
	if exe, err := os.Executable(); err == nil {
		if f, err := os.Open(exe); err == nil {
			if h, err := fingerprint.BinaryHex(f); err == nil {
				info.BinaryHash = h
			}
			f.Close()
		}
	}
	if err := client.SendDeviceInfo(ctx, info); err != nil {
		log.Warn().Err(err).Msg("device info report failed")
	}
}
