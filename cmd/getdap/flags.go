package main

import "github.com/urfave/cli"

var (
	getDDS = cli.BoolFlag{
		Name:  "dds, d",
		Usage: "For each dataset, get the descriptor",
	}
	getData = cli.BoolFlag{
		Name:  "data, D",
		Usage: "For each dataset, get the data",
	}
	constraint = cli.StringFlag{
		Name:  "constraint, c",
		Usage: "Comma separated `[variables]` to request, e.g. \"i32, stations.name\"",
	}
	times = cli.IntFlag{
		Name:  "times, m",
		Usage: "Request the same dataset `[num]` times",
		Value: 1,
	}
	verbose = cli.BoolFlag{
		Name:  "verbose, v",
		Usage: "Report the server version and debug logs on stderr",
	}
	rows = cli.BoolFlag{
		Name:  "rows, s",
		Usage: "Print sequences using numbered rows",
	}
	configFile = cli.StringFlag{
		Name:  "config",
		Usage: "The `[path]` of a client configuration",
	}
	serverAddr = cli.StringFlag{
		Name:  "server",
		Usage: "Address of a server to query directly",
	}
	etcd = cli.StringSliceFlag{
		Name:  "etcd",
		Usage: "etcd endpoint used to discover servers; may be repeated",
	}
	codecName = cli.StringFlag{
		Name:  "codec",
		Usage: "Envelope codec, json or binary",
	}
	dump = cli.BoolFlag{
		Name:  "dump",
		Usage: "Dump the decoded dataset structure instead of printing it",
	}
)

func getFlags() []cli.Flag {
	return []cli.Flag{
		getDDS, getData, constraint, times, verbose, rows,
		configFile, serverAddr, etcd, codecName, dump,
	}
}

// long returns the name a flag is looked up by.
func long(f cli.Flag) string {
	name := f.GetName()
	for i, r := range name {
		if r == ',' {
			return name[:i]
		}
	}
	return name
}
