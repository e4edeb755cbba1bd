// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package plugins

import (
	"errors"
	"fmt"
	"io"

	"github.com/coredhcp/dutinfo/config"
	"github.com/coredhcp/dutinfo/lease"
	"github.com/coredhcp/dutinfo/logger"
)

var log = logger.GetLogger("plugins")

// SetupFunc builds a lease source from the arguments given in the
// configuration file.
type SetupFunc func(args ...string) (lease.Source, error)

// Plugin wraps the registration information of a lease source plugin.
type Plugin struct {
	Name  string
	Setup SetupFunc
}

// RegisteredPlugins maps a plugin name to a Plugin instance.
var RegisteredPlugins = make(map[string]*Plugin)

// Loader resolves a plugin name that is not registered yet, typically by
// loading it from disk. It must register the plugin on success.
type Loader func(name string) error

// RegisterPlugin registers a plugin.
func RegisterPlugin(plugin *Plugin) error {
	if plugin == nil {
		return errors.New("cannot register nil plugin")
	}
	if plugin.Setup == nil {
		return config.ConfigErrorFromString("plugin '%s' has no setup function", plugin.Name)
	}
	log.Printf("Registering plugin '%s'", plugin.Name)
	if _, ok := RegisteredPlugins[plugin.Name]; ok {
		// TODO this highlights that asking the plugins to register themselves
		// is not the right approach. Need to register them in the main program.
		log.Panicf("Plugin '%s' is already registered", plugin.Name)
	}
	RegisteredPlugins[plugin.Name] = plugin
	return nil
}

// NamedSource is a lease source together with the plugin that built it.
type NamedSource struct {
	Name string
	lease.Source
}

// LoadSources reads a Config object and sets up the sources listed in its
// `sources` section, in order. For a plugin to be available, it must have been
// previously registered with RegisterPlugin, or be resolvable by load.
// load may be nil.
func LoadSources(conf *config.Config, load Loader) ([]NamedSource, error) {
	log.Print("Loading sources...")
	if len(conf.Sources) == 0 {
		return nil, errors.New("no lease source configured")
	}
	sources := make([]NamedSource, 0, len(conf.Sources))
	for _, pluginConf := range conf.Sources {
		plugin, ok := RegisteredPlugins[pluginConf.Name]
		if !ok && load != nil {
			if err := load(pluginConf.Name); err != nil {
				log.Warningf("cannot load plugin `%s`: %v", pluginConf.Name, err)
			}
			plugin, ok = RegisteredPlugins[pluginConf.Name]
		}
		if !ok {
			CloseSources(sources)
			return nil, config.ConfigErrorFromString("unknown plugin `%s`", pluginConf.Name)
		}
		log.Printf("loading source `%s`", pluginConf.Name)
		src, err := plugin.Setup(pluginConf.Args...)
		if err != nil {
			CloseSources(sources)
			return nil, err
		} else if src == nil {
			CloseSources(sources)
			return nil, config.ConfigErrorFromString("no lease source for plugin %s", pluginConf.Name)
		}
		sources = append(sources, NamedSource{Name: pluginConf.Name, Source: src})
	}
	return sources, nil
}

// CloseSources releases the sources that hold files, sockets or clients.
func CloseSources(sources []NamedSource) error {
	var errs []error
	for _, src := range sources {
		if c, ok := src.Source.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing source %s: %w", src.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
