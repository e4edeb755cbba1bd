// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

// Package dynplugins loads lease source plugins built with
// `go build -buildmode=plugin`. A plugin named foo lives in source_foo.so and
// registers itself from its init function.
package dynplugins

import (
	"errors"
	"fmt"
	"path/filepath"
	"plugin"

	"github.com/coredhcp/dutinfo/plugins"
)

// LoadDynamic attempts to load the plugin pluginName in the given location
func LoadDynamic(location, pluginName string) error {
	if location == "" {
		return errors.New("dynamic plugin loading is disabled")
	}
	if _, ok := plugins.RegisteredPlugins[pluginName]; ok {
		// Plugin is already loaded or builtin
		return nil
	}

	pluginFile := filepath.Join(location, fmt.Sprintf("source_%s.so", pluginName))
	if _, err := plugin.Open(pluginFile); err != nil {
		return fmt.Errorf("could not load dynamic plugin %s: %w", pluginName, err)
	}

	// Plugins register themselves in their init. Nothing to call, but we can
	// check it registered itself on load properly
	if _, ok := plugins.RegisteredPlugins[pluginName]; !ok {
		return fmt.Errorf("loaded plugin %s did not register itself", pluginName)
	}
	return nil
}

// Loader returns a plugins.Loader looking for plugins in location.
func Loader(location string) plugins.Loader {
	return func(name string) error {
		return LoadDynamic(location, name)
	}
}
