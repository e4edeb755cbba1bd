// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/coredhcp/dutinfo/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintReport(t *testing.T) {
	info := rpc.NewConnectedDutInfo()
	require.NoError(t, info.FromJSON([]byte(`{
		"connected_duts": {"192.168.231.100": "00:11:22:33:44:55", "192.168.231.101": "00:11:22:33:44:56"},
		"configured_duts": {"192.168.231.100": "dut-1", "192.168.231.150": "dut-offline"}
	}`)))

	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, info))

	var rows [][]string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		rows = append(rows, strings.Fields(line))
	}
	assert.Equal(t, [][]string{
		{"IP", "MAC", "LABEL", "STATUS"},
		{"192.168.231.100", "00:11:22:33:44:55", "dut-1", "ready"},
		{"192.168.231.101", "00:11:22:33:44:56", "-", "unconfigured"},
		{"192.168.231.150", "-", "dut-offline", "offline"},
		{},
		{"2", "connected,", "2", "configured"},
	}, rows)
}

func TestPrintReportEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printReport(&buf, rpc.NewConnectedDutInfo()))
	assert.Contains(t, buf.String(), "0 connected, 0 configured")
}
