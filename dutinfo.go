// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package dutinfo reports the DUTs connected to the lab network together with
// the DUTs the operators configured, over JSON-RPC.
package dutinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coredhcp/dutinfo/config"
	"github.com/coredhcp/dutinfo/inventory"
	"github.com/coredhcp/dutinfo/lease"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/plugins"
	"github.com/coredhcp/dutinfo/rpc"
	"github.com/coredhcp/dutinfo/server"
)

var log = logger.GetLogger("dutinfo")

// MethodGetConnectedDutInfo is the RPC method returning the connected DUT
// report.
const MethodGetConnectedDutInfo = "get_connected_dut_info"

const shutdownTimeout = 5 * time.Second

// Server is a dutinfo server structure that holds the lease sources, the
// inventory of configured DUTs, and the RPC endpoint serving them.
type Server struct {
	Config *config.Config
	// Loader resolves source plugins that are not compiled in. May be nil.
	Loader    plugins.Loader
	Sources   []plugins.NamedSource
	Inventory *inventory.Inventory
	RPC       *server.Server

	now       func() time.Time
	errors    chan error
	sighup    chan os.Signal
	done      chan struct{}
	closeOnce sync.Once
}

// NewServer creates a Server instance with the provided configuration.
func NewServer(conf *config.Config) *Server {
	return &Server{
		Config: conf,
		now:    time.Now,
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// LoadSources sets up the lease sources listed in the configuration, in
// order, and the inventory of configured DUTs.
func (s *Server) LoadSources() error {
	sources, err := plugins.LoadSources(s.Config, s.Loader)
	if err != nil {
		return err
	}
	inv, err := inventory.New(s.Config.ConfiguredDuts, s.Config.Inventory)
	if err != nil {
		plugins.CloseSources(sources)
		return err
	}
	if err := inv.Watch(); err != nil {
		log.Warningf("inventory changes will need a SIGHUP: %v", err)
	}
	s.Sources = sources
	s.Inventory = inv
	log.Infof("loaded %d sources and %d configured DUTs", len(sources), len(inv.Labels()))
	return nil
}

// ConnectedDutInfo builds the connected DUT report. Leases are merged in the
// order of the sources: a later source wins for the same address. If any
// source fails, so does the report.
func (s *Server) ConnectedDutInfo(ctx context.Context) (*rpc.ConnectedDutSnapshot, error) {
	var all []lease.Lease
	for _, src := range s.Sources {
		leases, err := src.Leases(ctx)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}
		all = append(all, leases...)
	}
	snapshot := rpc.NewConnectedDutSnapshot()
	snapshot.ConnectedDuts = lease.ConnectedDuts(all, s.now())
	if s.Inventory != nil {
		snapshot.ConfiguredDuts = s.Inventory.Labels()
	}
	return snapshot, nil
}

func (s *Server) getConnectedDutInfo(ctx context.Context, _ []json.RawMessage) (interface{}, error) {
	return s.ConnectedDutInfo(ctx)
}

// Refresh refreshes every source and the inventory. All of them are
// refreshed even if one fails.
func (s *Server) Refresh() error {
	var errs []error
	for _, src := range s.Sources {
		if err := src.Refresh(); err != nil {
			errs = append(errs, fmt.Errorf("source %s: %w", src.Name, err))
		}
	}
	if s.Inventory != nil {
		if err := s.Inventory.Refresh(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start will start the server asynchronously. See `Wait` to wait until
// the execution ends.
func (s *Server) Start() error {
	if s.Sources == nil {
		if err := s.LoadSources(); err != nil {
			return err
		}
	}

	s.RPC = server.New(s.Config.RPC.Listen, s.Config.RPC.Path)
	if err := s.RPC.Register(MethodGetConnectedDutInfo, s.getConnectedDutInfo); err != nil {
		return err
	}
	if err := s.RPC.Listen(); err != nil {
		return err
	}
	go func() {
		s.errors <- s.RPC.Serve()
	}()

	s.sighup = make(chan os.Signal, 1)
	signal.Notify(s.sighup, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-s.sighup:
				log.Info("SIGHUP received, refreshing")
				if err := s.Refresh(); err != nil {
					log.Warningf("refresh failed: %v", err)
				}
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

// Wait waits until the end of the execution of the server.
func (s *Server) Wait() error {
	log.Print("Waiting")
	err := <-s.errors
	if cerr := s.Close(); cerr != nil {
		log.Warningf("close: %v", cerr)
	}
	return err
}

// Close stops the RPC endpoint and releases the sources. It may be called
// more than once.
func (s *Server) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.sighup != nil {
			signal.Stop(s.sighup)
		}
		if s.RPC != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.RPC.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if err := plugins.CloseSources(s.Sources); err != nil {
			errs = append(errs, err)
		}
		if s.Inventory != nil {
			if err := s.Inventory.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
