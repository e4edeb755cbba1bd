// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package consulplugin reads the connected DUTs from the leases that the
// coredhcp consul range plugin keeps in the Consul KV store. Every lease is a
// JSON record stored under `<prefix>/<mac address>`:
//
//	$ consul kv get leases/02:00:00:00:00:01
//	{"IP":"192.168.231.100","Expires":1709294400,"Hostname":"dut-1"}
//
// The plugin takes the agent address and an optional key prefix, which
// defaults to `leases/`:
//
//	sources:
//	  - consul: "127.0.0.1:8500 leases/"
package consulplugin

import (
	"context"
	"errors"
	"fmt"

	"github.com/coredhcp/dutinfo/lease"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/plugins"
	"github.com/hashicorp/consul/api"
)

const defaultKVPrefix = "leases/"

var log = logger.GetLogger("plugins/consul")

// Plugin wraps plugin registration information
var Plugin = plugins.Plugin{
	Name:  "consul",
	Setup: setup,
}

// Source serves the leases stored in Consul.
type Source struct {
	consulClient   *api.Client
	consulKVPrefix string
}

// Leases lists the lease records.
func (s *Source) Leases(ctx context.Context) ([]lease.Lease, error) {
	return loadRecords(ctx, s.consulClient, s.consulKVPrefix)
}

// Refresh checks that the agent has a leader.
func (s *Source) Refresh() error {
	_, err := s.consulClient.Status().Leader()
	return err
}

func setup(args ...string) (lease.Source, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("invalid number of arguments, want: 1 or 2 (consul address, key prefix), got: %d", len(args))
	}
	if args[0] == "" {
		return nil, errors.New("consul address can't be empty")
	}
	prefix := defaultKVPrefix
	if len(args) == 2 {
		prefix = args[1]
	}
	config := api.DefaultConfig()
	config.Address = args[0]
	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}
	log.Printf("Using consul agent %s for keys under %s", args[0], prefix)
	return &Source{consulClient: client, consulKVPrefix: prefix}, nil
}
