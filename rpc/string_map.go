// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package rpc

import (
	"iter"
	"maps"
	"slices"
)

// StringMap is a string to string mapping that iterates in ascending key
// order.
type StringMap map[string]string

// Keys returns the keys in ascending lexicographic order.
func (m StringMap) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// All iterates over the pairs in ascending key order.
func (m StringMap) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, k := range m.Keys() {
			if !yield(k, m[k]) {
				return
			}
		}
	}
}

// Clone returns an independent copy. The copy of a nil map is empty, not nil.
func (m StringMap) Clone() StringMap {
	c := make(StringMap, len(m))
	maps.Copy(c, m)
	return c
}
