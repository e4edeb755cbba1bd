// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package redisplugin reads the connected DUTs from the static leases that
// the coredhcp redis plugin serves. Every DUT is a hash stored under
// `mac:<mac address>` whose `ipv4` field holds the address in CIDR notation:
//
//	$ redis-cli hgetall mac:00:11:22:33:44:55
//	1) "ipv4"
//	2) "192.168.231.100/24"
//
// The plugin takes the server address and an optional key prefix:
//
//	sources:
//	  - redis: "localhost:6379 mac:"
package redisplugin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/coredhcp/dutinfo/lease"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/plugins"
	"github.com/go-redis/redis/v8"
)

const (
	defaultKeyPrefix = "mac:"
	ipv4Field        = "ipv4"
	scanCount        = 100
)

var log = logger.GetLogger("plugins/redis")

// Plugin wraps plugin registration information
var Plugin = plugins.Plugin{
	Name:  "redis",
	Setup: setup,
}

// Source serves the static leases stored in redis.
type Source struct {
	client    *redis.Client
	keyPrefix string
}

// Leases scans the lease hashes. Hashes without a usable `ipv4` field are
// skipped.
func (s *Source) Leases(ctx context.Context) ([]lease.Lease, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan failed: %w", err)
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(keys))
	for _, key := range keys {
		cmds = append(cmds, pipe.HGet(ctx, key, ipv4Field))
	}
	if len(cmds) > 0 {
		// redis.Nil only reports a hash without the field
		if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis lookup failed: %w", err)
		}
	}

	records := make([]lease.Lease, 0, len(keys))
	for i, cmd := range cmds {
		value, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			log.Debugf("%s has no %s field, skipping", keys[i], ipv4Field)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis lookup of %s failed: %w", keys[i], err)
		}
		rec, err := parseRecord(keys[i], s.keyPrefix, value)
		if err != nil {
			log.Warningf("skipping %s: %v", keys[i], err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Refresh checks that the server is reachable.
func (s *Source) Refresh() error {
	return s.client.Ping(context.Background()).Err()
}

// Close closes the client.
func (s *Source) Close() error {
	return s.client.Close()
}

// parseRecord builds a lease from a hash key and its `ipv4` field.
func parseRecord(key, keyPrefix, cidr string) (lease.Lease, error) {
	mac, ok := strings.CutPrefix(key, keyPrefix)
	if !ok {
		return lease.Lease{}, fmt.Errorf("key does not start with %q", keyPrefix)
	}
	hwaddr, err := net.ParseMAC(mac)
	if err != nil {
		return lease.Lease{}, fmt.Errorf("malformed hardware address: %s", mac)
	}
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return lease.Lease{}, fmt.Errorf("malformed IP %s: %w", cidr, err)
	}
	if !prefix.Addr().Is4() {
		return lease.Lease{}, fmt.Errorf("expected an IPv4 address, got: %s", cidr)
	}
	return lease.Lease{MAC: hwaddr, IP: prefix.Addr()}, nil
}

func setup(args ...string) (lease.Source, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("invalid number of arguments, want: 1 or 2 (redis server:port, key prefix), got: %d", len(args))
	}
	if args[0] == "" {
		return nil, errors.New("Redis server can't be empty")
	}
	keyPrefix := defaultKeyPrefix
	if len(args) == 2 {
		keyPrefix = args[1]
	}
	client := redis.NewClient(&redis.Options{Addr: args[0]})
	log.Printf("Using redis server %s for keys %s*", args[0], keyPrefix)
	return &Source{client: client, keyPrefix: keyPrefix}, nil
}
