// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package file reads the connected DUTs from a dnsmasq lease file. Each lease
// is described by one line of space separated fields: expiry time in seconds
// since the epoch (0 for an infinite lease), MAC address, IP address, hostname
// ('*' when unknown) and an optional client identifier. For example:
//
//	$ cat /var/lib/misc/dnsmasq.leases
//	1709294400 00:11:22:33:44:55 192.168.231.100 chromeos1-row1-host1 *
//	0 a1:b2:c3:d4:e5:f6 192.168.231.101 * 01:a1:b2:c3:d4:e5:f6
//
// Text following '#' is ignored. IPv6 leases, which dnsmasq keys by IAID
// rather than MAC address, are skipped together with the `duid` line. Each IP
// address must be unique within the file.
//
// To use the plugin, pass the lease file name as plugin argument:
//
//	sources:
//	  - file: "/var/lib/misc/dnsmasq.leases" [autorefresh]
//
// When the 'autorefresh' argument is given, the plugin reloads the leases
// whenever the file changes, including when dnsmasq replaces it.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coredhcp/dutinfo/internal/filewatch"
	"github.com/coredhcp/dutinfo/lease"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/plugins"
)

const (
	autoRefreshArg = "autorefresh"
)

var log = logger.GetLogger("plugins/file")

// Plugin wraps plugin registration information
var Plugin = plugins.Plugin{
	Name:  "file",
	Setup: setup,
}

// Source serves the leases of a dnsmasq lease file.
type Source struct {
	filename string

	recLock sync.RWMutex
	records []lease.Lease

	watcher *filewatch.Watcher
}

// LoadLeases parses a dnsmasq lease file.
func LoadLeases(filename string) ([]lease.Lease, error) {
	log.Debugf("reading leases from %s", filename)
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	addresses := make(map[netip.Addr]int)
	records := make([]lease.Lease, 0)
	for _, lineBytes := range bytes.Split(data, []byte{'\n'}) {
		line := string(lineBytes)
		if comment := strings.IndexRune(line, '#'); comment >= 0 {
			line = line[:comment]
		}
		tokens := strings.Fields(line)
		if len(tokens) == 0 || tokens[0] == "duid" {
			continue
		}
		if len(tokens) != 4 && len(tokens) != 5 {
			return nil, fmt.Errorf("malformed line, want 4 or 5 fields, got %d: %s", len(tokens), line)
		}
		expiry, err := strconv.ParseInt(tokens[0], 10, 64)
		if err != nil || expiry < 0 {
			return nil, fmt.Errorf("malformed expiry time: %s", tokens[0])
		}
		ipaddr, err := netip.ParseAddr(tokens[2])
		if err != nil {
			return nil, fmt.Errorf("malformed IP address: %s", tokens[2])
		}
		if !ipaddr.Is4() {
			continue
		}
		hwaddr, err := net.ParseMAC(tokens[1])
		if err != nil {
			return nil, fmt.Errorf("malformed hardware address: %s", tokens[1])
		}
		rec := lease.Lease{MAC: hwaddr, IP: ipaddr}
		if tokens[3] != "*" {
			rec.Hostname = tokens[3]
		}
		if expiry != 0 {
			rec.Expires = time.Unix(expiry, 0)
		}
		records = append(records, rec)
		addresses[ipaddr]++
	}

	var duplicates []error
	for ipaddr, count := range addresses {
		if count > 1 {
			duplicates = append(duplicates, fmt.Errorf("address %s is in %d records", ipaddr, count))
		}
	}
	if len(duplicates) > 0 {
		return nil, errors.Join(duplicates...)
	}
	return records, nil
}

// Leases returns the leases read by the last successful load.
func (s *Source) Leases(context.Context) ([]lease.Lease, error) {
	s.recLock.RLock()
	defer s.recLock.RUnlock()
	return slices.Clone(s.records), nil
}

// Refresh reloads the lease file.
func (s *Source) Refresh() error {
	records, err := LoadLeases(s.filename)
	if err != nil {
		return fmt.Errorf("failed to load leases from %s: %w", s.filename, err)
	}

	s.recLock.Lock()
	defer s.recLock.Unlock()
	s.records = records
	return nil
}

func (s *Source) size() int {
	s.recLock.RLock()
	defer s.recLock.RUnlock()
	return len(s.records)
}

// Close stops watching the lease file.
func (s *Source) Close() error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Close()
}

func (s *Source) watch() error {
	watcher, err := filewatch.Watch(s.filename, func() {
		if err := s.Refresh(); err != nil {
			log.Warningf("failed to refresh: %v", err)
			return
		}
		log.Infof("updated to %d leases from %s", s.size(), s.filename)
	})
	if err != nil {
		return err
	}
	s.watcher = watcher
	return nil
}

func setup(args ...string) (lease.Source, error) {
	if len(args) < 1 {
		return nil, errors.New("need a file name")
	}
	filename := args[0]
	if filename == "" {
		return nil, errors.New("got empty file name")
	}

	s := &Source{filename: filename}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	if len(args) > 1 && args[1] == autoRefreshArg {
		if err := s.watch(); err != nil {
			return nil, err
		}
	}

	log.Infof("loaded %d leases from %s", s.size(), filename)
	return s, nil
}
