package main

import "github.com/urfave/cli"

var (
	// configFile defines a flag for the path to the server's toml configuration.
	configFile = cli.StringFlag{
		Name:  "config",
		Usage: "The `[path]` of the server configuration. Without it a single demo dataset test.1 is served.",
	}
	// listen overrides the listen address of the configuration.
	listen = cli.StringFlag{
		Name:  "listen",
		Usage: "Address to accept connections on, e.g. 0.0.0.0:9090",
	}
	// logLevel overrides the log level of the configuration.
	logLevel = cli.StringFlag{
		Name:  "log-level",
		Usage: "One of debug, info, warn, error",
	}
)

func getFlags() []cli.Flag {
	return []cli.Flag{configFile, listen, logLevel}
}
