// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package leasedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/coredhcp/dutinfo/lease"
	_ "github.com/mattn/go-sqlite3"
)

// loadDB opens the lease database read only. The database belongs to the
// DHCP server: a missing file or table is an error, never created here.
func loadDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database (%T): %w", err, err)
	}
	db.SetMaxOpenConns(1)
	var one int
	err = db.QueryRow("select 1 from leases4 limit 1").Scan(&one)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		db.Close()
		return nil, fmt.Errorf("not a lease database: %w", err)
	}
	return db, nil
}

// loadRecords reads every lease stored in the leases4 table.
func loadRecords(ctx context.Context, db *sql.DB) ([]lease.Lease, error) {
	rows, err := db.QueryContext(ctx, "select mac, ip, expiry, hostname from leases4 order by ip, mac")
	if err != nil {
		return nil, fmt.Errorf("failed to query leases database: %w", err)
	}
	defer rows.Close()
	var (
		mac, ip, hostname string
		expiry            int64
		records           = make([]lease.Lease, 0)
	)
	for rows.Next() {
		if err := rows.Scan(&mac, &ip, &expiry, &hostname); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hwaddr, err := net.ParseMAC(mac)
		if err != nil {
			return nil, fmt.Errorf("malformed hardware address: %s", mac)
		}
		ipaddr, err := netip.ParseAddr(ip)
		if err != nil || !ipaddr.Is4() {
			return nil, fmt.Errorf("expected an IPv4 address, got: %v", ip)
		}
		rec := lease.Lease{MAC: hwaddr, IP: ipaddr, Hostname: hostname}
		if expiry != 0 {
			rec.Expires = time.Unix(expiry, 0)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed lease database row scanning: %w", err)
	}
	return records, nil
}
