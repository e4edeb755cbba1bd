// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package main

/*
 * Queries a dutinfo server and prints the connected and configured DUTs
 */

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/coredhcp/dutinfo"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/rpc"
	flag "github.com/spf13/pflag"
)

var (
	flagEndpoint = flag.StringP("endpoint", "e", "http://localhost:8080/rpc", "JSON-RPC endpoint of the dutinfo server")
	flagTimeout  = flag.DurationP("timeout", "t", rpc.DefaultTimeout, "Timeout of the call")
)

var log = logger.GetLogger("main")

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "%s [--endpoint url] [--timeout duration]\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	client := rpc.NewClient(*flagEndpoint, rpc.WithHTTPClient(&http.Client{Timeout: *flagTimeout}))
	ctx, cancel := context.WithTimeout(context.Background(), *flagTimeout)
	defer cancel()

	info := rpc.NewConnectedDutInfo()
	if err := client.Call(ctx, dutinfo.MethodGetConnectedDutInfo, info); err != nil {
		log.Fatalf("%s failed: %v", dutinfo.MethodGetConnectedDutInfo, err)
	}
	if err := printReport(os.Stdout, info); err != nil {
		log.Fatal(err)
	}
}

// printReport writes one line per DUT address, connected or configured.
func printReport(w io.Writer, info *rpc.ConnectedDutInfo) error {
	connected := info.ConnectedIPsToMACAddress()
	configured := info.ConfiguredIPsToLabels()
	addresses := connected.Clone()
	for ip := range configured.All() {
		if _, ok := addresses[ip]; !ok {
			addresses[ip] = ""
		}
	}

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "IP\tMAC\tLABEL\tSTATUS")
	for ip := range addresses.All() {
		mac, isConnected := connected[ip]
		label, isConfigured := configured[ip]
		var status string
		switch {
		case isConnected && isConfigured:
			status = "ready"
		case isConnected:
			status = "unconfigured"
		default:
			status = "offline"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ip, orDash(mac), orDash(label), status)
	}
	fmt.Fprintf(tw, "\n%d connected, %d configured\n", len(connected), len(configured))
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
