// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package config

import (
	"net"
	"net/netip"
	"strconv"
	"strings"

	"github.com/coredhcp/dutinfo/logger"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

var log = logger.GetLogger("config")

// Defaults for the RPC endpoint.
const (
	DefaultListen  = ":8080"
	DefaultRPCPath = "/rpc"
)

// Config holds the dutinfo configuration.
type Config struct {
	v *viper.Viper
	// RPC is the JSON-RPC endpoint the admin UI talks to.
	RPC *RPCConfig
	// Sources are the lease source plugins, in the order they were listed.
	Sources []*PluginConfig
	// ConfiguredDuts are the DUTs declared inline.
	ConfiguredDuts []*DutConfig
	// Inventory is an optional known-devices YAML file.
	Inventory string
	// PluginDir is where dynamically loaded source plugins live. Empty
	// disables dynamic loading.
	PluginDir string
}

// New returns a new initialized instance of a Config object
func New() *Config {
	return &Config{v: viper.New()}
}

// RPCConfig holds the listener of the JSON-RPC endpoint.
type RPCConfig struct {
	Listen string
	Path   string
}

// PluginConfig holds the configuration of a plugin
type PluginConfig struct {
	Name string
	Args []string
}

// DutConfig is a DUT declared in the configuration.
type DutConfig struct {
	IP    netip.Addr
	Label string
}

// Load reads a configuration file and returns a Config object, or an error if
// any. When pathOverride is empty the file is looked up as config.yml in the
// working directory, then $HOME/.dutinfo/, then /etc/dutinfo/.
func Load(pathOverride string) (*Config, error) {
	log.Print("Loading configuration")
	c := New()
	c.v.SetConfigType("yml")
	if pathOverride != "" {
		c.v.SetConfigFile(pathOverride)
	} else {
		c.v.SetConfigName("config")
		c.v.AddConfigPath(".")
		c.v.AddConfigPath("$HOME/.dutinfo/")
		c.v.AddConfigPath("/etc/dutinfo/")
	}
	if err := c.v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := c.parseConfig(); err != nil {
		return nil, err
	}
	return c, nil
}

func parsePlugins(pluginList []interface{}) ([]*PluginConfig, error) {
	plugins := make([]*PluginConfig, 0)
	for idx, val := range pluginList {
		conf := cast.ToStringMap(val)
		if conf == nil {
			return nil, ConfigErrorFromString("sources: plugin #%d is not a string map", idx)
		}
		// make sure that only one item is specified, since it's a
		// map name -> args
		if len(conf) != 1 {
			return nil, ConfigErrorFromString("sources: exactly one plugin per item can be specified")
		}
		var (
			name string
			args []string
		)
		// only one item, as enforced above, so read just that
		for k, v := range conf {
			name = k
			args = strings.Fields(cast.ToString(v))
			break
		}
		plugins = append(plugins, &PluginConfig{Name: name, Args: args})
	}
	return plugins, nil
}

func parseDuts(dutList []interface{}) ([]*DutConfig, error) {
	duts := make([]*DutConfig, 0, len(dutList))
	seen := make(map[netip.Addr]int)
	for idx, val := range dutList {
		conf := cast.ToStringMapString(val)
		if len(conf) == 0 {
			return nil, ConfigErrorFromString("configured_duts: entry #%d is not a map", idx)
		}
		ip, err := netip.ParseAddr(conf["ip"])
		if err != nil {
			return nil, ConfigErrorFromString("configured_duts: entry #%d: invalid `ip`: %v", idx, err)
		}
		label := strings.TrimSpace(conf["label"])
		if label == "" {
			return nil, ConfigErrorFromString("configured_duts: entry #%d: missing `label`", idx)
		}
		if prev, ok := seen[ip]; ok {
			return nil, ConfigErrorFromString("configured_duts: %s is declared by entries #%d and #%d", ip, prev, idx)
		}
		seen[ip] = idx
		duts = append(duts, &DutConfig{IP: ip, Label: label})
	}
	return duts, nil
}

func (c *Config) getRPC() (*RPCConfig, error) {
	listen := c.v.GetString("rpc.listen")
	if listen == "" {
		listen = DefaultListen
	}
	host, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return nil, ConfigErrorFromString("rpc: %v", err)
	}
	if host != "" {
		if _, err := netip.ParseAddr(host); err != nil {
			return nil, ConfigErrorFromString("rpc: invalid IP address in `listen` directive")
		}
	}
	if port, err := strconv.Atoi(portStr); err != nil || port < 0 || port > 65535 {
		return nil, ConfigErrorFromString("rpc: invalid `listen` port")
	}
	path := c.v.GetString("rpc.path")
	if path == "" {
		path = DefaultRPCPath
	}
	if !strings.HasPrefix(path, "/") {
		return nil, ConfigErrorFromString("rpc: `path` must start with '/', got %q", path)
	}
	return &RPCConfig{Listen: listen, Path: path}, nil
}

func (c *Config) getSources() ([]*PluginConfig, error) {
	pluginList := cast.ToSlice(c.v.Get("sources"))
	if len(pluginList) == 0 {
		return nil, ConfigErrorFromString("invalid sources section, not a list or no plugin specified")
	}
	return parsePlugins(pluginList)
}

func (c *Config) parseConfig() error {
	rpc, err := c.getRPC()
	if err != nil {
		return err
	}
	sources, err := c.getSources()
	if err != nil {
		return err
	}
	for _, p := range sources {
		log.Printf("found source `%s` with %d args: %v", p.Name, len(p.Args), p.Args)
	}
	var duts []*DutConfig
	if raw := c.v.Get("configured_duts"); raw != nil {
		dutList, err := cast.ToSliceE(raw)
		if err != nil {
			return ConfigErrorFromString("configured_duts: not a list: %v", err)
		}
		if duts, err = parseDuts(dutList); err != nil {
			return err
		}
	}
	c.RPC = rpc
	c.Sources = sources
	c.ConfiguredDuts = duts
	c.Inventory = c.v.GetString("inventory")
	c.PluginDir = c.v.GetString("plugin_dir")
	return nil
}
