// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package lease

import (
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func mustMAC(s string) net.HardwareAddr {
	mac, err := net.ParseMAC(s)
	if err != nil {
		panic(err)
	}
	return mac
}

func TestExpired(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.False(t, Lease{}.Expired(now), "zero expiry never ends")
	assert.False(t, Lease{Expires: now.Add(time.Second)}.Expired(now))
	assert.True(t, Lease{Expires: now}.Expired(now))
	assert.True(t, Lease{Expires: now.Add(-time.Hour)}.Expired(now))
}

func TestConnectedDuts(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	leases := []Lease{
		{MAC: mustMAC("AA:BB:CC:DD:EE:01"), IP: netip.MustParseAddr("10.0.0.1")},
		{MAC: mustMAC("aa:bb:cc:dd:ee:02"), IP: netip.MustParseAddr("10.0.0.2"), Expires: now.Add(-time.Minute)},
		{MAC: mustMAC("aa:bb:cc:dd:ee:03"), IP: netip.MustParseAddr("10.0.0.3"), Expires: now.Add(time.Hour)},
		// same address handed to another device later on
		{MAC: mustMAC("aa:bb:cc:dd:ee:04"), IP: netip.MustParseAddr("10.0.0.3"), Expires: now.Add(2 * time.Hour)},
		{MAC: mustMAC("aa:bb:cc:dd:ee:05")},
	}

	assert.Equal(t, map[string]string{
		"10.0.0.1": "aa:bb:cc:dd:ee:01",
		"10.0.0.3": "aa:bb:cc:dd:ee:04",
	}, ConnectedDuts(leases, now))
}

func TestConnectedDutsEmpty(t *testing.T) {
	duts := ConnectedDuts(nil, time.Now())
	assert.NotNil(t, duts)
	assert.Empty(t, duts)
}
