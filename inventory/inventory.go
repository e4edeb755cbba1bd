// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package inventory keeps the labels of the configured DUTs. They come from
// the `configured_duts` configuration section and from an optional known
// devices file, whose entries win when both name the same address.
package inventory

import (
	"fmt"
	"maps"
	"net/netip"
	"sync"

	"github.com/coredhcp/dutinfo/config"
	"github.com/coredhcp/dutinfo/internal/filewatch"
	"github.com/coredhcp/dutinfo/logger"
)

var log = logger.GetLogger("inventory")

// Inventory maps the IP addresses of the configured DUTs to their labels.
type Inventory struct {
	filename string
	static   map[netip.Addr]string

	lock   sync.RWMutex
	labels map[string]string

	watcher *filewatch.Watcher
}

// New builds an inventory from the configured DUTs and, if filename is not
// empty, the known devices file.
func New(duts []*config.DutConfig, filename string) (*Inventory, error) {
	inv := &Inventory{
		filename: filename,
		static:   make(map[netip.Addr]string, len(duts)),
	}
	for _, dut := range duts {
		inv.static[dut.IP] = dut.Label
	}
	if err := inv.Refresh(); err != nil {
		return nil, err
	}
	return inv, nil
}

// Labels returns a copy of the IP to label mapping.
func (inv *Inventory) Labels() map[string]string {
	inv.lock.RLock()
	defer inv.lock.RUnlock()
	return maps.Clone(inv.labels)
}

// Refresh reloads the known devices file. On error the previous labels are
// kept.
func (inv *Inventory) Refresh() error {
	labels := make(map[string]string, len(inv.static))
	for ip, label := range inv.static {
		labels[ip.String()] = label
	}
	if inv.filename != "" {
		devices, err := LoadKnownDevices(inv.filename)
		if err != nil {
			return fmt.Errorf("failed to load inventory from %s: %w", inv.filename, err)
		}
		for ip, label := range devices {
			if prev, ok := labels[ip.String()]; ok && prev != label {
				log.Debugf("%s: %s overrides configured label %s", ip, label, prev)
			}
			labels[ip.String()] = label
		}
	}

	inv.lock.Lock()
	defer inv.lock.Unlock()
	inv.labels = labels
	return nil
}

func (inv *Inventory) size() int {
	inv.lock.RLock()
	defer inv.lock.RUnlock()
	return len(inv.labels)
}

// Watch reloads the known devices file whenever it changes. It is a no-op
// without a file.
func (inv *Inventory) Watch() error {
	if inv.filename == "" || inv.watcher != nil {
		return nil
	}
	watcher, err := filewatch.Watch(inv.filename, func() {
		if err := inv.Refresh(); err != nil {
			log.Warningf("failed to refresh: %v", err)
			return
		}
		log.Infof("updated to %d configured DUTs", inv.size())
	})
	if err != nil {
		return err
	}
	inv.watcher = watcher
	return nil
}

// Close stops watching the known devices file.
func (inv *Inventory) Close() error {
	if inv.watcher == nil {
		return nil
	}
	return inv.watcher.Close()
}
