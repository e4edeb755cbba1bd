// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package snoop learns the connected DUTs by listening to the DHCPv4 traffic
// on the lab network. It never replies: the DHCP server in charge of the
// network keeps doing that.
//
// A DUT is recorded when it sends a REQUEST for an address, or when an ACK
// is seen, and forgotten on RELEASE, DECLINE or NAK, or once its lease time
// has elapsed. Clients that do not ask for a lease time get the default one.
//
// The plugin takes an optional interface name and default lease time:
//
//	sources:
//	  - snoop: "eth1 1h"
package snoop

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/coredhcp/dutinfo/lease"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/plugins"
	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/insomniacslk/dhcp/dhcpv4/server4"
	"golang.org/x/net/ipv4"
)

const (
	defaultLeaseTime = time.Hour
	maxPacketSize    = 4096
)

var log = logger.GetLogger("plugins/snoop")

// Plugin wraps plugin registration information
var Plugin = plugins.Plugin{
	Name:  "snoop",
	Setup: setup,
}

// Source serves the leases seen on the wire.
type Source struct {
	leaseTime time.Duration
	now       func() time.Time

	recLock sync.RWMutex
	records map[netip.Addr]lease.Lease

	conn  *ipv4.PacketConn
	iface *net.Interface
}

func newSource(leaseTime time.Duration) *Source {
	return &Source{
		leaseTime: leaseTime,
		now:       time.Now,
		records:   make(map[netip.Addr]lease.Lease),
	}
}

// Leases returns the leases that have not expired yet, sorted by address.
func (s *Source) Leases(context.Context) ([]lease.Lease, error) {
	now := s.now()
	s.recLock.RLock()
	defer s.recLock.RUnlock()
	records := make([]lease.Lease, 0, len(s.records))
	for _, rec := range s.records {
		if !rec.Expired(now) {
			records = append(records, rec)
		}
	}
	slices.SortFunc(records, func(a, b lease.Lease) int { return a.IP.Compare(b.IP) })
	return records, nil
}

// Refresh drops the expired leases.
func (s *Source) Refresh() error {
	now := s.now()
	s.recLock.Lock()
	defer s.recLock.Unlock()
	for ip, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, ip)
		}
	}
	return nil
}

// Close stops listening.
func (s *Source) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// handle updates the leases from one DHCPv4 message.
func (s *Source) handle(m *dhcpv4.DHCPv4) {
	mac := m.ClientHWAddr
	if len(mac) == 0 {
		return
	}
	var ip net.IP
	switch mt := m.MessageType(); mt {
	case dhcpv4.MessageTypeRequest:
		ip = m.RequestedIPAddress()
		if ip == nil || ip.IsUnspecified() {
			ip = m.ClientIPAddr
		}
	case dhcpv4.MessageTypeAck:
		ip = m.YourIPAddr
		if ip == nil || ip.IsUnspecified() {
			// answer to an INFORM
			return
		}
	case dhcpv4.MessageTypeRelease, dhcpv4.MessageTypeDecline, dhcpv4.MessageTypeNak:
		s.forget(mac)
		log.Debugf("%s from %s, dropping its lease", mt, mac)
		return
	default:
		return
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok || !addr.Unmap().Is4() || addr.Unmap().IsUnspecified() {
		log.Debugf("%s from %s without a usable address", m.MessageType(), mac)
		return
	}
	rec := lease.Lease{
		MAC:      slices.Clone(mac),
		IP:       addr.Unmap(),
		Hostname: m.HostName(),
		Expires:  s.now().Add(m.IPAddressLeaseTime(s.leaseTime)),
	}

	s.recLock.Lock()
	defer s.recLock.Unlock()
	s.forgetLocked(mac)
	s.records[rec.IP] = rec
	log.Debugf("%s holds %s until %s", mac, rec.IP, rec.Expires.Format(time.RFC3339))
}

func (s *Source) forget(mac net.HardwareAddr) {
	s.recLock.Lock()
	defer s.recLock.Unlock()
	s.forgetLocked(mac)
}

func (s *Source) forgetLocked(mac net.HardwareAddr) {
	for ip, rec := range s.records {
		if slices.Equal(rec.MAC, mac) {
			delete(s.records, ip)
		}
	}
}

func (s *Source) listen(ifname string) error {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: dhcpv4.ServerPort}
	udpConn, err := server4.NewIPv4UDPConn(ifname, addr)
	if err != nil {
		return err
	}
	s.conn = ipv4.NewPacketConn(udpConn)
	if ifname != "" {
		if s.iface, err = net.InterfaceByName(ifname); err != nil {
			s.conn.Close()
			return fmt.Errorf("could not find interface %s: %w", ifname, err)
		}
		return nil
	}
	// When not bound to an interface, we need the information in each
	// packet to know which interface it came on
	if err := s.conn.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}

func (s *Source) serve() error {
	buf := make([]byte, maxPacketSize)
	for {
		n, cm, peer, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		m, err := dhcpv4.FromBytes(buf[:n])
		if err != nil {
			log.Debugf("ignoring malformed packet from %s: %v", peer, err)
			continue
		}
		if cm != nil && s.iface == nil {
			if ifi, err := net.InterfaceByIndex(cm.IfIndex); err == nil {
				log.Debugf("%s on %s", m.MessageType(), ifi.Name)
			}
		}
		s.handle(m)
	}
}

func setup(args ...string) (lease.Source, error) {
	if len(args) > 2 {
		return nil, fmt.Errorf("invalid number of arguments, want: at most 2 (interface, lease time), got: %d", len(args))
	}
	var ifname string
	leaseTime := defaultLeaseTime
	if len(args) > 0 {
		ifname = args[0]
	}
	if len(args) > 1 {
		d, err := time.ParseDuration(args[1])
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid lease time: %v", args[1])
		}
		leaseTime = d
	}

	s := newSource(leaseTime)
	if err := s.listen(ifname); err != nil {
		return nil, fmt.Errorf("failed to listen for DHCPv4 traffic: %w", err)
	}
	go func() {
		if err := s.serve(); err != nil {
			log.Errorf("stopped listening: %v", err)
		}
	}()
	log.Infof("listening for DHCPv4 traffic on %s, default lease time %s", ifnameOrAll(ifname), leaseTime)
	return s, nil
}

func ifnameOrAll(ifname string) string {
	if ifname == "" {
		return "all interfaces"
	}
	return ifname
}
