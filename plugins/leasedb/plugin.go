// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package leasedb reads the connected DUTs from the SQLite lease database
// kept by the coredhcp range plugin. The database is queried on every
// request, so there is nothing to refresh.
//
//	sources:
//	  - leasedb: "/var/lib/coredhcp/leases.sqlite3"
package leasedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/coredhcp/dutinfo/lease"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/plugins"
)

var log = logger.GetLogger("plugins/leasedb")

// Plugin wraps plugin registration information
var Plugin = plugins.Plugin{
	Name:  "leasedb",
	Setup: setup,
}

// Source serves the leases of a lease database.
type Source struct {
	leasedb *sql.DB
}

// Leases queries the database.
func (s *Source) Leases(ctx context.Context) ([]lease.Lease, error) {
	return loadRecords(ctx, s.leasedb)
}

// Refresh checks that the database is still reachable.
func (s *Source) Refresh() error {
	return s.leasedb.Ping()
}

// Close closes the database.
func (s *Source) Close() error {
	return s.leasedb.Close()
}

func setup(args ...string) (lease.Source, error) {
	if len(args) < 1 {
		return nil, errors.New("need a database file name")
	}
	if args[0] == "" {
		return nil, errors.New("got empty database file name")
	}
	db, err := loadDB(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open lease database %s: %w", args[0], err)
	}
	log.Infof("reading leases from %s", args[0])
	return &Source{leasedb: db}, nil
}
