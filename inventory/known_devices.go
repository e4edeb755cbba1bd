// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package inventory

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// KnownDevice is one entry of a known devices file.
type KnownDevice struct {
	Name string   `yaml:"name"`
	Mac  string   `yaml:"mac"`
	IP   string   `yaml:"ip"`
	Tags []string `yaml:"tags"`
}

// KnownDevices is the layout of a known devices file:
//
//	known_devices:
//	  - name: chromeos1-row1-host1
//	    mac: 00:11:22:33:44:55
//	    ip: 192.168.231.100
//	    tags: [pool:cq]
type KnownDevices struct {
	KnownDevices []KnownDevice `yaml:"known_devices"`
}

// LoadKnownDevices reads a known devices file and returns the label of every
// device with an IP address. Devices without an address are skipped.
func LoadKnownDevices(filename string) (map[netip.Addr]string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var devices KnownDevices
	if err := yaml.Unmarshal(data, &devices); err != nil {
		return nil, fmt.Errorf("malformed known devices file %s: %w", filename, err)
	}

	labels := make(map[netip.Addr]string, len(devices.KnownDevices))
	var errs []error
	for idx, dev := range devices.KnownDevices {
		if dev.IP == "" {
			continue
		}
		ip, err := netip.ParseAddr(dev.IP)
		if err != nil {
			errs = append(errs, fmt.Errorf("device #%d: invalid ip: %w", idx, err))
			continue
		}
		name := strings.TrimSpace(dev.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("device #%d: missing name", idx))
			continue
		}
		if dev.Mac != "" {
			if _, err := net.ParseMAC(dev.Mac); err != nil {
				errs = append(errs, fmt.Errorf("device #%d: invalid mac: %w", idx, err))
				continue
			}
		}
		if prev, ok := labels[ip]; ok {
			errs = append(errs, fmt.Errorf("address %s is used by %s and %s", ip, prev, name))
			continue
		}
		labels[ip] = name
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return labels, nil
}
