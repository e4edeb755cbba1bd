// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package main

import (
	"time"

	"github.com/coredhcp/dutinfo"
	"github.com/coredhcp/dutinfo/config"
	"github.com/coredhcp/dutinfo/internal/dynplugins"
	"github.com/coredhcp/dutinfo/logger"
	"github.com/coredhcp/dutinfo/plugins"
	consulpl "github.com/coredhcp/dutinfo/plugins/consul"
	"github.com/coredhcp/dutinfo/plugins/file"
	"github.com/coredhcp/dutinfo/plugins/leasedb"
	redispl "github.com/coredhcp/dutinfo/plugins/redis"
	"github.com/coredhcp/dutinfo/plugins/snoop"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
)

var (
	flagConfig      = flag.StringP("conf", "c", "", "Use this configuration file instead of the default location")
	flagLogFile     = flag.StringP("logfile", "l", "", "Name of the log file to append to. Default: stdout/stderr only")
	flagLogNoStdout = flag.BoolP("nostdout", "N", false, "Disable logging to stdout/stderr")
	flagDebug       = flag.BoolP("debug", "d", false, "Enable debug output")
)

var desiredPlugins = []*plugins.Plugin{
	&consulpl.Plugin,
	&file.Plugin,
	&leasedb.Plugin,
	&redispl.Plugin,
	&snoop.Plugin,
}

func main() {
	flag.Parse()
	log := logger.GetLogger("main")
	if *flagDebug {
		log.Logger.SetLevel(logrus.DebugLevel)
		log.Infof("Enabled debug logging")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	if *flagLogFile != "" {
		log.Infof("Logging to file %s", *flagLogFile)
		logger.WithFile(log, *flagLogFile)
	}
	if *flagLogNoStdout {
		log.Infof("Disabling logging to stdout/stderr")
		logger.WithNoStdOutErr(log)
	}
	conf, err := config.Load(*flagConfig)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	// register plugins
	for _, plugin := range desiredPlugins {
		if err := plugins.RegisterPlugin(plugin); err != nil {
			log.Fatalf("Failed to register plugin '%s': %v", plugin.Name, err)
		}
	}

	// start server
	server := dutinfo.NewServer(conf)
	if conf.PluginDir != "" {
		server.Loader = dynplugins.Loader(conf.PluginDir)
	}
	if err := server.Start(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	if err := server.Wait(); err != nil {
		log.Error(err)
	}
	time.Sleep(time.Second)
}
