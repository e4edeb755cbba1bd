// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package dutinfo

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/coredhcp/dutinfo/config"
	"github.com/coredhcp/dutinfo/lease"
	"github.com/coredhcp/dutinfo/plugins"
	"github.com/coredhcp/dutinfo/rpc"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu        sync.Mutex
	leases    []lease.Lease
	err       error
	refreshed int
	closed    bool
}

func (f *fakeSource) Leases(context.Context) ([]lease.Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leases, f.err
}

func (f *fakeSource) Refresh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed++
	return f.err
}

func (f *fakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func mustLease(t *testing.T, mac, ip string, expires time.Time) lease.Lease {
	t.Helper()
	hw, err := net.ParseMAC(mac)
	require.NoError(t, err)
	return lease.Lease{MAC: hw, IP: netip.MustParseAddr(ip), Expires: expires}
}

func registerFake(t *testing.T, name string, src *fakeSource) {
	t.Helper()
	require.NoError(t, plugins.RegisterPlugin(&plugins.Plugin{
		Name:  name,
		Setup: func(...string) (lease.Source, error) { return src, nil },
	}))
	t.Cleanup(func() { delete(plugins.RegisteredPlugins, name) })
}

func testConfig(sources ...string) *config.Config {
	conf := config.New()
	conf.RPC = &config.RPCConfig{Listen: "127.0.0.1:0", Path: "/rpc"}
	for _, name := range sources {
		conf.Sources = append(conf.Sources, &config.PluginConfig{Name: name})
	}
	conf.ConfiguredDuts = []*config.DutConfig{
		{IP: netip.MustParseAddr("192.168.231.100"), Label: "dut-1"},
		{IP: netip.MustParseAddr("192.168.231.150"), Label: "dut-offline"},
	}
	return conf
}

func testServer(t *testing.T, sources map[string]*fakeSource, order ...string) *Server {
	t.Helper()
	for name, src := range sources {
		registerFake(t, name, src)
	}
	s := NewServer(testConfig(order...))
	s.now = func() time.Time { return now }
	require.NoError(t, s.LoadSources())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestConnectedDutInfo(t *testing.T) {
	first := &fakeSource{leases: []lease.Lease{
		mustLease(t, "00:11:22:33:44:55", "192.168.231.100", time.Time{}),
		mustLease(t, "00:11:22:33:44:56", "192.168.231.101", now.Add(time.Hour)),
		mustLease(t, "00:11:22:33:44:57", "192.168.231.102", now.Add(-time.Hour)),
	}}
	second := &fakeSource{leases: []lease.Lease{
		mustLease(t, "AA:BB:CC:DD:EE:FF", "192.168.231.101", time.Time{}),
	}}
	s := testServer(t, map[string]*fakeSource{"test-first": first, "test-second": second}, "test-first", "test-second")

	snapshot, err := s.ConnectedDutInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"192.168.231.100": "00:11:22:33:44:55",
		// later sources win
		"192.168.231.101": "aa:bb:cc:dd:ee:ff",
	}, snapshot.ConnectedDuts)
	assert.Equal(t, map[string]string{
		"192.168.231.100": "dut-1",
		"192.168.231.150": "dut-offline",
	}, snapshot.ConfiguredDuts)
}

func TestConnectedDutInfoEmpty(t *testing.T) {
	s := testServer(t, map[string]*fakeSource{"test-empty": {}}, "test-empty")

	snapshot, err := s.ConnectedDutInfo(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, snapshot.ConnectedDuts)
	assert.Empty(t, snapshot.ConnectedDuts)
}

func TestConnectedDutInfoSourceFailure(t *testing.T) {
	good := &fakeSource{leases: []lease.Lease{mustLease(t, "00:11:22:33:44:55", "192.168.231.100", time.Time{})}}
	bad := &fakeSource{err: errors.New("database is locked")}
	s := testServer(t, map[string]*fakeSource{"test-good": good, "test-bad": bad}, "test-good", "test-bad")

	_, err := s.ConnectedDutInfo(context.Background())
	assert.ErrorContains(t, err, "source test-bad: database is locked")
}

func TestRefresh(t *testing.T) {
	good := &fakeSource{}
	bad := &fakeSource{err: errors.New("gone")}
	s := testServer(t, map[string]*fakeSource{"test-good": good, "test-bad": bad}, "test-bad", "test-good")

	assert.Error(t, s.Refresh())
	assert.Equal(t, 1, good.refreshed)
	assert.Equal(t, 1, bad.refreshed)
}

func TestLoadSourcesInventoryError(t *testing.T) {
	src := &fakeSource{}
	registerFake(t, "test-inventory", src)
	conf := testConfig("test-inventory")
	conf.Inventory = filepath.Join(t.TempDir(), "nope.yaml")

	s := NewServer(conf)
	assert.ErrorIs(t, s.LoadSources(), os.ErrNotExist)
	assert.True(t, src.closed)
}

func TestServeConnectedDutInfo(t *testing.T) {
	src := &fakeSource{leases: []lease.Lease{mustLease(t, "00:11:22:33:44:55", "192.168.231.100", time.Time{})}}
	s := testServer(t, map[string]*fakeSource{"test-serve": src}, "test-serve")
	require.NoError(t, s.Start())

	client := rpc.NewClient("http://" + s.RPC.Addr().String() + "/rpc")
	info := rpc.NewConnectedDutInfo()
	require.NoError(t, client.Call(context.Background(), MethodGetConnectedDutInfo, info))
	assert.Equal(t, rpc.StringMap{"192.168.231.100": "00:11:22:33:44:55"}, info.ConnectedIPsToMACAddress())
	assert.Equal(t, rpc.StringMap{"192.168.231.100": "dut-1", "192.168.231.150": "dut-offline"}, info.ConfiguredIPsToLabels())

	src.fail(errors.New("unreachable"))
	err := client.Call(context.Background(), MethodGetConnectedDutInfo, rpc.NewConnectedDutInfo())
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "unreachable")

	require.NoError(t, s.Close())
	assert.NoError(t, s.Wait())
	assert.True(t, src.closed)
}
