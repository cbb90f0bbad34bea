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

package utils

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// ShutdownGuard owns process shutdown for the agent: a termination signal
// cancels its Context (the shutdown token every long-running task selects
// on), then registered resources close in reverse registration order —
// the HTTP server drains before anything it depends on goes away. If the
// patience window elapses before closers finish, the process exits
// uncleanly.
type ShutdownGuard struct {
	mu      sync.Mutex
	closers []io.Closer

	ctx      context.Context
	cancel   context.CancelFunc
	patience time.Duration
	once     sync.Once

	// exit is swapped out by tests.
	exit func(code int)
}

// NewShutdownGuard installs the signal handler and returns the guard.
func NewShutdownGuard(patience time.Duration) *ShutdownGuard {
	ctx, cancel := context.WithCancel(context.Background())
	g := &ShutdownGuard{
		ctx:      ctx,
		cancel:   cancel,
		patience: patience,
		exit:     os.Exit,
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		sig := <-ch
		log.Info().Str("signal", sig.String()).Msg("got termination signal, shutting down")
		g.Shutdown()
	}()

	return g
}

// Context is the process-wide shutdown token, cancelled before any closer
// runs.
func (g *ShutdownGuard) Context() context.Context { return g.ctx }

// CloseOnShutdown registers c; closers run in reverse registration order.
func (g *ShutdownGuard) CloseOnShutdown(c io.Closer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closers = append(g.closers, c)
}

// Shutdown runs the shutdown sequence once: cancel the token, close
// everything within the patience window, exit.
func (g *ShutdownGuard) Shutdown() {
	g.once.Do(func() {
		g.cancel()

		done := make(chan error, 1)
		go func() { done <- g.closeAll() }()

		select {
		case err := <-done:
			if err != nil {
				log.Err(err).Msg("error during shutdown")
				g.exit(1)
				return
			}
			log.Info().Msg("shut down")
			g.exit(0)
		case <-time.After(g.patience):
			log.Error().Msg("shutdown timed out, exiting uncleanly")
			g.exit(1)
		}
	})
}

func (g *ShutdownGuard) closeAll() (err error) {
	g.mu.Lock()
	closers := append([]io.Closer{}, g.closers...)
	g.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		if cerr := closers[i].Close(); err == nil && cerr != nil {
			err = cerr
		}
	}
	return err
}
