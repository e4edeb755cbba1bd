// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package lease defines the address bindings that tell which DUTs are
// connected, and the contract of the sources that provide them.
package lease

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// Lease binds an IP address to a hardware address.
type Lease struct {
	MAC      net.HardwareAddr
	IP       netip.Addr
	Hostname string
	// Expires is the end of the lease. The zero time never expires.
	Expires time.Time
}

// Expired reports whether the lease has ended at now.
func (l Lease) Expired(now time.Time) bool {
	return !l.Expires.IsZero() && !l.Expires.After(now)
}

// Source provides the current leases of a backend.
type Source interface {
	// Leases returns the known leases, expired ones included.
	Leases(ctx context.Context) ([]Lease, error)
	// Refresh reloads any cached state from the backend.
	Refresh() error
}

// ConnectedDuts maps the IP address of every unexpired lease to its MAC
// address. When several leases share an IP address the last one wins.
func ConnectedDuts(leases []Lease, now time.Time) map[string]string {
	duts := make(map[string]string, len(leases))
	for _, l := range leases {
		if !l.IP.IsValid() || len(l.MAC) == 0 || l.Expired(now) {
			continue
		}
		// note that net.HardwareAddr.String() uses lowercase hexadecimal
		duts[l.IP.String()] = l.MAC.String()
	}
	return duts
}
