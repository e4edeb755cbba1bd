// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package rpc holds the JSON-RPC entities exchanged with the lab appliance,
// and the client that moves them over HTTP.
//
// Entities opt into the directions they support: a Deserializer can be
// populated from a call result, a Serializer can contribute a call parameter.
// The transport composes over these capabilities instead of a common base
// type.
package rpc

import "encoding/json"

// Deserializer is implemented by entities that can be populated from the
// `result` member of a JSON-RPC response.
type Deserializer interface {
	FromJSON(data []byte) error
}

// Serializer is implemented by entities that can be sent as a JSON-RPC
// parameter. A nil payload means there is nothing to send.
type Serializer interface {
	ToJSON() json.RawMessage
}

// Entity is a payload that travels in both directions.
type Entity interface {
	Deserializer
	Serializer
}
