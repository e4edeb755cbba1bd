// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package server exposes the registered methods as a JSON-RPC endpoint:
// every call is a POST of an rpc.Request to the configured path, answered
// with an rpc.Response carrying the same id.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coredhcp/dutinfo/handler"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/rpc"
	"github.com/gin-gonic/gin"
)

var log = logger.GetLogger("server")

// Names of the errors reported by the endpoint itself.
const (
	ErrNameInvalidRequest = "InvalidRequest"
	ErrNameUnknownMethod  = "UnknownMethod"
	ErrNameMethodFailed   = "MethodFailed"
)

const readHeaderTimeout = 10 * time.Second

// Server is a JSON-RPC endpoint.
type Server struct {
	listen string
	path   string
	engine *gin.Engine

	mu      sync.RWMutex
	methods map[string]handler.Method

	httpServer *http.Server
	listener   net.Listener
}

// New creates a server answering on path once it listens on listen.
func New(listen, path string) *Server {
	s := &Server{
		listen:  listen,
		path:    path,
		methods: make(map[string]handler.Method),
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger)
	engine.POST(path, s.handleRPC)
	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	s.engine = engine
	return s
}

// Register makes a method callable. Registering the same name twice is an
// error.
func (s *Server) Register(name string, method handler.Method) error {
	if name == "" || method == nil {
		return errors.New("cannot register a method without a name or a function")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.methods[name]; ok {
		return fmt.Errorf("method %s already registered", name)
	}
	s.methods[name] = method
	log.Debugf("registered method %s", name)
	return nil
}

// Handler returns the HTTP handler of the endpoint.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Listen opens the listening socket.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}
	s.listener = l
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	log.Infof("Listen %s, serving JSON-RPC on %s", l.Addr(), s.path)
	return nil
}

// Addr returns the address the server listens on, or nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve answers requests until Shutdown is called. It returns nil after a
// shutdown.
func (s *Server) Serve() error {
	if s.httpServer == nil {
		return errors.New("server is not listening")
	}
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for the calls in flight.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) lookup(name string) (handler.Method, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.methods[name]
	return m, ok
}

func (s *Server) handleRPC(c *gin.Context) {
	var req rpc.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, rpc.Response{
			ID:    req.ID,
			Error: &rpc.Error{Name: ErrNameInvalidRequest, Message: err.Error()},
		})
		return
	}
	if req.Method == "" {
		c.JSON(http.StatusBadRequest, rpc.Response{
			ID:    req.ID,
			Error: &rpc.Error{Name: ErrNameInvalidRequest, Message: "missing method"},
		})
		return
	}

	method, ok := s.lookup(req.Method)
	if !ok {
		log.Warningf("call to unknown method %s", req.Method)
		c.JSON(http.StatusOK, rpc.Response{
			ID:    req.ID,
			Error: &rpc.Error{Name: ErrNameUnknownMethod, Message: fmt.Sprintf("unknown method %q", req.Method)},
		})
		return
	}

	result, err := method(c.Request.Context(), req.Params)
	if err != nil {
		log.Warningf("%s failed: %v", req.Method, err)
		c.JSON(http.StatusOK, rpc.Response{ID: req.ID, Error: toRPCError(err)})
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		log.Errorf("%s: cannot encode result: %v", req.Method, err)
		c.JSON(http.StatusOK, rpc.Response{ID: req.ID, Error: toRPCError(err)})
		return
	}
	c.JSON(http.StatusOK, rpc.Response{ID: req.ID, Result: data})
}

func toRPCError(err error) *rpc.Error {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return &rpc.Error{Name: ErrNameMethodFailed, Message: err.Error()}
}

func requestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()
	log.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
}
