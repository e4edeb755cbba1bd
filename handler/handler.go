// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package handler

import (
	"context"
	"encoding/json"
)

// Method is a function that is called for a given JSON-RPC request.
// It receives the positional parameters of the call and returns a value
// that is encoded as the `result` member of the response.
// If the returned error is an *rpc.Error, its name is reported to the
// caller; any other error is reported with a generic name and its message.
type Method func(ctx context.Context, params []json.RawMessage) (interface{}, error)
