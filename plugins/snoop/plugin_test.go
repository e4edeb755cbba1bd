// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package snoop

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/coredhcp/dutinfo/lease"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mac1, _ = net.ParseMAC("02:00:00:00:00:01")
	mac2, _ = net.ParseMAC("02:00:00:00:00:02")
	start   = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
)

func testSource(t *testing.T) (*Source, *time.Time) {
	t.Helper()
	now := start
	s := newSource(defaultLeaseTime)
	s.now = func() time.Time { return now }
	return s, &now
}

func message(t *testing.T, mac net.HardwareAddr, mt dhcpv4.MessageType, mods ...dhcpv4.Modifier) *dhcpv4.DHCPv4 {
	t.Helper()
	m, err := dhcpv4.New(append([]dhcpv4.Modifier{dhcpv4.WithHwAddr(mac), dhcpv4.WithMessageType(mt)}, mods...)...)
	require.NoError(t, err)
	return m
}

func leases(t *testing.T, s *Source) []lease.Lease {
	t.Helper()
	records, err := s.Leases(context.Background())
	require.NoError(t, err)
	return records
}

func TestRequest(t *testing.T) {
	s, _ := testSource(t)
	s.handle(message(t, mac1, dhcpv4.MessageTypeRequest,
		dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(net.IPv4(192, 168, 231, 100))),
		dhcpv4.WithOption(dhcpv4.OptHostName("dut-1")),
	))
	// renewals carry the address in ciaddr
	s.handle(message(t, mac2, dhcpv4.MessageTypeRequest,
		dhcpv4.WithClientIP(net.IPv4(192, 168, 231, 101)),
		dhcpv4.WithOption(dhcpv4.OptIPAddressLeaseTime(10*time.Minute)),
	))

	assert.Equal(t, []lease.Lease{
		{MAC: mac1, IP: netip.MustParseAddr("192.168.231.100"), Hostname: "dut-1", Expires: start.Add(defaultLeaseTime)},
		{MAC: mac2, IP: netip.MustParseAddr("192.168.231.101"), Expires: start.Add(10 * time.Minute)},
	}, leases(t, s))
}

func TestAck(t *testing.T) {
	s, _ := testSource(t)
	s.handle(message(t, mac1, dhcpv4.MessageTypeAck,
		dhcpv4.WithYourIP(net.IPv4(192, 168, 231, 100)),
		dhcpv4.WithOption(dhcpv4.OptIPAddressLeaseTime(2*time.Hour)),
	))
	// INFORM answers carry no address
	s.handle(message(t, mac2, dhcpv4.MessageTypeAck))

	assert.Equal(t, []lease.Lease{
		{MAC: mac1, IP: netip.MustParseAddr("192.168.231.100"), Expires: start.Add(2 * time.Hour)},
	}, leases(t, s))
}

func TestIgnored(t *testing.T) {
	s, _ := testSource(t)
	s.handle(message(t, mac1, dhcpv4.MessageTypeDiscover,
		dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(net.IPv4(192, 168, 231, 100))),
	))
	s.handle(message(t, mac1, dhcpv4.MessageTypeRequest))
	s.handle(message(t, nil, dhcpv4.MessageTypeRequest,
		dhcpv4.WithOption(dhcpv4.OptRequestedIPAddress(net.IPv4(192, 168, 231, 100))),
	))
	assert.Empty(t, leases(t, s))
}

func TestMove(t *testing.T) {
	s, _ := testSource(t)
	s.handle(message(t, mac1, dhcpv4.MessageTypeRequest, dhcpv4.WithClientIP(net.IPv4(192, 168, 231, 100))))
	s.handle(message(t, mac1, dhcpv4.MessageTypeRequest, dhcpv4.WithClientIP(net.IPv4(192, 168, 231, 110))))

	records := leases(t, s)
	require.Len(t, records, 1)
	assert.Equal(t, netip.MustParseAddr("192.168.231.110"), records[0].IP)
}

func TestForget(t *testing.T) {
	for _, mt := range []dhcpv4.MessageType{dhcpv4.MessageTypeRelease, dhcpv4.MessageTypeDecline, dhcpv4.MessageTypeNak} {
		t.Run(mt.String(), func(t *testing.T) {
			s, _ := testSource(t)
			s.handle(message(t, mac1, dhcpv4.MessageTypeRequest, dhcpv4.WithClientIP(net.IPv4(192, 168, 231, 100))))
			s.handle(message(t, mac2, dhcpv4.MessageTypeRequest, dhcpv4.WithClientIP(net.IPv4(192, 168, 231, 101))))
			s.handle(message(t, mac1, mt))

			records := leases(t, s)
			require.Len(t, records, 1)
			assert.Equal(t, mac2, records[0].MAC)
		})
	}
}

func TestExpiry(t *testing.T) {
	s, now := testSource(t)
	s.handle(message(t, mac1, dhcpv4.MessageTypeRequest,
		dhcpv4.WithClientIP(net.IPv4(192, 168, 231, 100)),
		dhcpv4.WithOption(dhcpv4.OptIPAddressLeaseTime(time.Minute)),
	))
	s.handle(message(t, mac2, dhcpv4.MessageTypeRequest, dhcpv4.WithClientIP(net.IPv4(192, 168, 231, 101))))

	*now = start.Add(2 * time.Minute)
	records := leases(t, s)
	require.Len(t, records, 1)
	assert.Equal(t, mac2, records[0].MAC)

	require.NoError(t, s.Refresh())
	assert.Len(t, s.records, 1)
}

func TestSetupArgs(t *testing.T) {
	_, err := setup("eth0", "1h", "extra")
	assert.Error(t, err)
	_, err = setup("eth0", "soon")
	assert.Error(t, err)
	_, err = setup("eth0", "-1h")
	assert.Error(t, err)
}
