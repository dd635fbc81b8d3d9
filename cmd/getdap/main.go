// Command getdap fetches descriptors and data from dap servers and prints
// them.
//
//	getdap -d test.1                     print the descriptor of test.1
//	getdap -D -c "i32, obs" test.1       print the values of i32 and obs
//	getdap -D response.bin               decode a saved data response
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"mini-dap/client"
	"mini-dap/codec"
	"mini-dap/config"
	"mini-dap/dds"
	"mini-dap/loadbalance"
	"mini-dap/logging"
	"mini-dap/middleware"
	"mini-dap/registry"
	"mini-dap/server"
	"mini-dap/xdr"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "getdap: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	cli.VersionFlag = cli.BoolFlag{Name: "version, V", Usage: "print the version"}
	app := cli.NewApp()
	app.Name = "getdap"
	app.Version = server.Version
	app.Usage = "Fetch dataset descriptors and data"
	app.UsageText = "getdap [-dDvsV] [-c <expr>] [-m <num>] <dataset|file> [<dataset|file> ...]"
	app.Flags = getFlags()
	app.Action = run
	return app
}

type getter struct {
	client *client.Client
	out    io.Writer
	errOut io.Writer

	dds, data, verbose, rows, dump bool
	constraint                     string
	times                          int
}

func run(c *cli.Context) error {
	if !c.Args().Present() {
		_ = cli.ShowAppHelp(c)
		return errors.New("no dataset given")
	}
	cfg, err := clientConfig(c)
	if err != nil {
		return err
	}

	log := logging.ConfigureRuntime()
	defer log.Sync()
	level := "warn"
	if c.Bool(long(verbose)) {
		level = "debug"
	}
	if err := logging.SetLevel(level); err != nil {
		return err
	}

	cl, reg, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	defer reg.Close()
	defer cl.Close()

	g := &getter{
		client:     cl,
		out:        c.App.Writer,
		errOut:     c.App.ErrWriter,
		dds:        c.Bool(long(getDDS)),
		data:       c.Bool(long(getData)),
		verbose:    c.Bool(long(verbose)),
		rows:       c.Bool(long(rows)),
		dump:       c.Bool(long(dump)),
		constraint: c.String(long(constraint)),
		times:      c.Int(long(times)),
	}
	if g.errOut == nil {
		g.errOut = os.Stderr
	}

	failed := 0
	for _, arg := range c.Args() {
		failed += g.fetch(context.Background(), arg)
	}
	if failed > 0 {
		return errors.Errorf("%d request(s) failed", failed)
	}
	return nil
}

// clientConfig loads the optional configuration file and applies the flags
// on top of it.
func clientConfig(c *cli.Context) (config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig(c.String(long(configFile)))
	if err != nil {
		return cfg, err
	}
	if c.IsSet(long(serverAddr)) {
		cfg.Server = c.String(long(serverAddr))
		cfg.Etcd = nil
	}
	if c.IsSet(long(etcd)) {
		cfg.Etcd = c.StringSlice(long(etcd))
	}
	if c.IsSet(long(codecName)) {
		cfg.Codec = c.String(long(codecName))
	}
	return cfg, cfg.Validate()
}

func newClient(cfg config.ClientConfig, log *zap.Logger) (*client.Client, registry.Registry, error) {
	ct, err := codec.Parse(cfg.Codec)
	if err != nil {
		return nil, nil, err
	}
	bal, err := loadbalance.New(cfg.Balancer)
	if err != nil {
		return nil, nil, err
	}

	var reg registry.Registry
	if len(cfg.Etcd) > 0 {
		if reg, err = registry.NewEtcdRegistry(cfg.Etcd, log); err != nil {
			return nil, nil, err
		}
	} else {
		reg = registry.NewDirectRegistry(cfg.Server)
	}

	// retries wrap the per-attempt timeout
	var mws []middleware.Middleware
	if cfg.Retries > 0 {
		mws = append(mws, middleware.RetryMiddleware(cfg.Retries, cfg.RetryDelay, log))
	}
	if cfg.Timeout > 0 {
		mws = append(mws, middleware.TimeoutMiddleware(cfg.Timeout))
	}
	return client.NewClient(reg, bal, ct, cfg.PoolSize,
		client.WithLogger(log),
		client.WithHeartbeat(cfg.Heartbeat),
		client.WithMiddleware(mws...),
	), reg, nil
}

// fetch runs the requested operations for one argument and returns the
// number of failed requests. Errors are reported and do not stop the run.
func (g *getter) fetch(ctx context.Context, arg string) int {
	if g.verbose {
		fmt.Fprintf(g.errOut, "Fetching: %s\n", arg)
	}
	if isLocal(arg) {
		return g.local(arg)
	}

	failed := 0
	for i := 0; i < g.times; i++ {
		var err error
		switch {
		case g.dds:
			err = g.fetchDDS(ctx, arg)
		case g.data:
			err = g.fetchData(ctx, arg)
		default:
			err = g.fetchVersion(ctx, arg)
		}
		if err != nil {
			fmt.Fprintf(g.errOut, "Error: %v\n", err)
			failed++
		}
	}
	return failed
}

func (g *getter) serverVersion(ctx context.Context, dataset string) {
	if !g.verbose {
		return
	}
	v, err := g.client.Version(ctx, dataset)
	if err != nil {
		v = "unknown (" + err.Error() + ")"
	}
	fmt.Fprintf(g.errOut, "Server version: %s\n", v)
}

func (g *getter) fetchVersion(ctx context.Context, dataset string) error {
	v, err := g.client.Version(ctx, dataset)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(g.out, "Server version: %s\n", v)
	return err
}

func (g *getter) fetchDDS(ctx context.Context, dataset string) error {
	d, err := g.client.DDS(ctx, dataset, g.constraint)
	if err != nil {
		return err
	}
	g.serverVersion(ctx, dataset)
	if g.verbose {
		fmt.Fprintln(g.errOut, "DDS:")
	}
	if g.dump {
		spew.Fdump(g.out, d)
		return nil
	}
	return d.Print(g.out)
}

func (g *getter) fetchData(ctx context.Context, dataset string) error {
	d, err := g.client.Data(ctx, dataset, g.constraint)
	if err != nil {
		return err
	}
	g.serverVersion(ctx, dataset)
	return g.printData(d)
}

func (g *getter) printData(d *dds.DDS) error {
	if g.dump {
		spew.Fdump(g.out, d)
		return nil
	}
	if _, err := fmt.Fprintln(g.out, "The data:"); err != nil {
		return err
	}
	if err := d.PrintVals(g.out, g.rows); err != nil {
		return err
	}
	_, err := fmt.Fprintln(g.out)
	return err
}

// local decodes a data response saved in a file, or read from stdin for "-".
func (g *getter) local(path string) int {
	if g.verbose {
		fmt.Fprintf(g.errOut, "Assuming that %s contains a data response; decoding.\n", path)
	}
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(g.errOut, "Error: %v\n", err)
			return 1
		}
		defer f.Close()
		r = f
	}
	d, err := dds.ReadData(r, xdr.DefaultLimits())
	if err == nil {
		err = g.printData(d)
	}
	if err != nil {
		fmt.Fprintf(g.errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func isLocal(arg string) bool {
	if arg == "-" {
		return true
	}
	st, err := os.Stat(arg)
	return err == nil && st.Mode().IsRegular()
}
