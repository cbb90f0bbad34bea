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

// Package httpapi is the thin HTTP boundary of the agent: request shapes,
// the route table, and the mapping from inner typed errors to the numeric
// code table. All domain work happens in the packages it delegates to.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/nodecross/nodex/internal/apierror"
	"github.com/nodecross/nodex/internal/identity"
	"github.com/nodecross/nodex/internal/studio"
	"github.com/nodecross/nodex/keyring"
	"github.com/rs/zerolog/log"
)

// Deps is everything the handlers consume, constructed in main and threaded
// through explicitly.
type Deps struct {
	Version  string
	Identity *identity.Service
	Accessor keyring.Accessor
	Studio   *studio.Client
	Network  *NetworkStore

	// StageUpdate downloads an update bundle into the controller's staging
	// directory; the supervisor picks it up on its next tick.
	StageUpdate func(ctx context.Context, binaryURL string) error
}

// Server hosts the agent's local HTTP API on a listener it is handed (the
// inherited socket, never one it binds itself).
type Server struct {
	Router *gin.Engine

	deps       Deps
	httpServer *http.Server
}

// NewServer builds the router with the agent's public and internal routes.
func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	_ = r.SetTrustedProxies(nil)
	r.Use(gin.Recovery())
	r.Use(cors.Default())

	s := &Server{Router: r, deps: deps}

	// A did:webvh identifier carries "/" and "%3A" in its path part, so the
	// lookup route is a catch-all matched against the still-escaped path.
	r.UseRawPath = true
	r.UnescapePathValues = false

	r.POST("/identifiers", s.createIdentifier)
	r.GET("/identifiers/*did", func(c *gin.Context) {
		for i := range c.Params {
			if p := &c.Params[i]; p.Key == "did" && len(p.Value) > 0 && p.Value[0] == '/' {
				p.Value = p.Value[1:]
			}
		}
		s.findIdentifier(c)
	})
	r.POST("/create-verifiable-message", s.createVerifiableMessage)
	r.POST("/verify-verifiable-message", s.verifyVerifiableMessage)
	r.POST("/create-didcomm-message", s.createDidCommMessage)
	r.POST("/verify-didcomm-message", s.verifyDidCommMessage)
	r.POST("/events", s.sendEvents)
	r.POST("/custom_metrics", s.sendCustomMetric)
	r.POST("/attributes", s.sendAttribute)

	internal := r.Group("/internal")
	internal.GET("/version/get", s.versionGet)
	internal.POST("/version/update", s.versionUpdate)
	internal.POST("/network", s.updateNetwork)

	return s
}

// Serve runs the server over the given listener until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.Router.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
	}
	err := s.httpServer.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// respondError logs once with context (warn for client classes, error for
// internal/conflict) and writes the {code, message} body.
func respondError(c *gin.Context, code apierror.Code, err error) {
	ev := log.Error()
	if code.IsClientClass() {
		ev = log.Warn()
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Int("code", int(code)).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(code.HTTPStatus(), apierror.New(code))
}

// mapStudioError translates studio client failures into the
// MessageActivity* code family.
func mapStudioError(err error) apierror.Code {
	switch {
	case err == nil:
		return 0
	case isErr(err, studio.ErrBadRequest):
		return apierror.MessageActivityBadRequest
	case isErr(err, studio.ErrForbidden):
		return apierror.MessageActivityForbidden
	case isErr(err, studio.ErrUnauthorized):
		return apierror.MessageActivityUnauthorized
	case isErr(err, studio.ErrNotFound):
		return apierror.MessageActivityNotFound
	case isErr(err, studio.ErrConflict):
		return apierror.MessageActivityConflict
	default:
		return apierror.MessageActivityInternal
	}
}
