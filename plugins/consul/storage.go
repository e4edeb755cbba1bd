// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package consulplugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/coredhcp/dutinfo/lease"
	"github.com/hashicorp/consul/api"
)

// Record is the JSON value stored for every lease.
type Record struct {
	IP       net.IP
	Expires  int64
	Hostname string
}

// loadRecords retrieves all lease records stored in Consul under the given
// key prefix with a single KV.List call.
func loadRecords(ctx context.Context, client *api.Client, consulKVPrefix string) ([]lease.Lease, error) {
	pairs, _, err := client.KV().List(consulKVPrefix, (&api.QueryOptions{}).WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys with prefix %q: %w", consulKVPrefix, err)
	}
	return decodeRecords(pairs, consulKVPrefix)
}

// decodeRecords turns KV pairs keyed by `<prefix>/<mac>` into leases.
func decodeRecords(pairs api.KVPairs, consulKVPrefix string) ([]lease.Lease, error) {
	records := make([]lease.Lease, 0, len(pairs))
	for _, pair := range pairs {
		// folders have no value
		if strings.HasSuffix(pair.Key, "/") && len(pair.Value) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(pair.Value, &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record for key %q: %w", pair.Key, err)
		}
		macStr := strings.TrimLeft(strings.TrimPrefix(pair.Key, consulKVPrefix), "/")
		hwaddr, err := net.ParseMAC(macStr)
		if err != nil {
			return nil, fmt.Errorf("malformed hardware address in key %q", pair.Key)
		}
		ipaddr, ok := netip.AddrFromSlice(rec.IP)
		if !ok || !ipaddr.Unmap().Is4() {
			return nil, fmt.Errorf("expected an IPv4 address for key %q, got: %v", pair.Key, rec.IP)
		}
		l := lease.Lease{MAC: hwaddr, IP: ipaddr.Unmap(), Hostname: rec.Hostname}
		if rec.Expires != 0 {
			l.Expires = time.Unix(rec.Expires, 0)
		}
		records = append(records, l)
	}
	return records, nil
}
