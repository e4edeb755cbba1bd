// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package rpc

import (
	"encoding/json"
	"errors"
	"maps"
)

const connectedDutInfoEntity = "ConnectedDutInfo"

// JSON member names of a connected DUT report.
const (
	FieldConnectedDuts  = "connected_duts"
	FieldConfiguredDuts = "configured_duts"
)

// ConnectedDutInfo is the result of the connected DUT query: the DUTs that
// currently hold a lease on the lab subnet, and the DUTs an operator has
// configured.
//
// It is a read-only entity: nothing is sent back to the server.
type ConnectedDutInfo struct {
	connectedIPsToMACAddresses StringMap
	configuredIPsToLabels      StringMap
}

var _ Entity = (*ConnectedDutInfo)(nil)

// NewConnectedDutInfo returns an empty ConnectedDutInfo.
func NewConnectedDutInfo() *ConnectedDutInfo {
	return &ConnectedDutInfo{
		connectedIPsToMACAddresses: make(StringMap),
		configuredIPsToLabels:      make(StringMap),
	}
}

// ConnectedIPsToMACAddress returns a copy of the IP to MAC address mapping of
// the connected DUTs.
func (c *ConnectedDutInfo) ConnectedIPsToMACAddress() StringMap {
	return c.connectedIPsToMACAddresses.Clone()
}

// ConfiguredIPsToLabels returns a copy of the IP to label mapping of the
// configured DUTs.
func (c *ConnectedDutInfo) ConfiguredIPsToLabels() StringMap {
	return c.configuredIPsToLabels.Clone()
}

// dutTable is the decoded form of one member. A nil value stands for a JSON
// null leaf, which is not a string.
type dutTable map[string]*string

// FromJSON merges a JSON report into c. Existing entries are kept unless the
// report carries the same IP, in which case the value is overwritten.
//
// Member names match exactly; any other member is ignored. The whole report
// is validated before anything is merged: on error, c is left unchanged.
func (c *ConnectedDutInfo) FromJSON(data []byte) error {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return decodeError(err)
	}
	if root == nil {
		return &DecodeError{Entity: connectedDutInfoEntity, Kind: ErrTypeMismatch, Err: errors.New("null report")}
	}
	connected, err := decodeMember(root, FieldConnectedDuts)
	if err != nil {
		return err
	}
	configured, err := decodeMember(root, FieldConfiguredDuts)
	if err != nil {
		return err
	}
	if c.connectedIPsToMACAddresses == nil {
		c.connectedIPsToMACAddresses = make(StringMap, len(connected))
	}
	if c.configuredIPsToLabels == nil {
		c.configuredIPsToLabels = make(StringMap, len(configured))
	}
	maps.Copy(c.connectedIPsToMACAddresses, connected)
	maps.Copy(c.configuredIPsToLabels, configured)
	return nil
}

// ToJSON returns nil: the query is read only.
func (c *ConnectedDutInfo) ToJSON() json.RawMessage {
	return nil
}

// Reset drops every entry.
func (c *ConnectedDutInfo) Reset() {
	c.connectedIPsToMACAddresses = make(StringMap)
	c.configuredIPsToLabels = make(StringMap)
}

func decodeMember(root map[string]json.RawMessage, field string) (StringMap, error) {
	raw, ok := root[field]
	if !ok {
		return nil, &DecodeError{Entity: connectedDutInfoEntity, Field: field, Kind: ErrMissingField}
	}
	var t dutTable
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, &DecodeError{Entity: connectedDutInfoEntity, Field: field, Kind: ErrTypeMismatch, Err: err}
	}
	return t.strings(field)
}

func (t dutTable) strings(field string) (StringMap, error) {
	if t == nil {
		return nil, &DecodeError{Entity: connectedDutInfoEntity, Field: field, Kind: ErrMissingField}
	}
	m := make(StringMap, len(t))
	for k, v := range t {
		if v == nil {
			return nil, &DecodeError{
				Entity: connectedDutInfoEntity,
				Field:  field,
				Kind:   ErrTypeMismatch,
				Err:    errors.New("null value for key " + k),
			}
		}
		m[k] = *v
	}
	return m, nil
}

// decodeError classifies a failure to decode the report root.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return &DecodeError{Entity: connectedDutInfoEntity, Kind: ErrTypeMismatch, Err: err}
	}
	return &DecodeError{Entity: connectedDutInfoEntity, Kind: ErrMalformed, Err: err}
}

// ConnectedDutSnapshot is the form in which the appliance sends a connected
// DUT report.
type ConnectedDutSnapshot struct {
	ConnectedDuts  map[string]string `json:"connected_duts"`
	ConfiguredDuts map[string]string `json:"configured_duts"`
}

// NewConnectedDutSnapshot returns a snapshot with empty, non-nil tables so
// that it always encodes as two objects.
func NewConnectedDutSnapshot() *ConnectedDutSnapshot {
	return &ConnectedDutSnapshot{
		ConnectedDuts:  make(map[string]string),
		ConfiguredDuts: make(map[string]string),
	}
}
