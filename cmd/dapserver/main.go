// Command dapserver publishes synthetic datasets over the dap protocol.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/zap"

	"mini-dap/config"
	"mini-dap/logging"
	"mini-dap/metrics"
	"mini-dap/middleware"
	"mini-dap/registry"
	"mini-dap/server"
	"mini-dap/sim"
)

const maxTimeToClose = 10 * time.Second

func main() {
	app := cli.NewApp()
	app.Name = "dapserver"
	app.Version = server.Version
	app.Usage = "Serve synthetic datasets to dap clients"
	app.Flags = getFlags()
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "dapserver: %+v\n", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logging.ConfigureRuntime()
	defer log.Sync()
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	catalog, err := buildCatalog(cfg, log)
	if err != nil {
		return err
	}

	var reg registry.Registry
	if len(cfg.Etcd) > 0 {
		etcd, err := registry.NewEtcdRegistry(cfg.Etcd, log)
		if err != nil {
			return err
		}
		defer etcd.Close()
		reg = etcd
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.MetricsListen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.MetricsListen); err != nil {
				log.Error("metrics endpoint", zap.Error(err))
			}
		}()
	}

	svr := buildServer(cfg, catalog, m, log)
	errCh := make(chan error, 1)
	go func() {
		errCh <- svr.Serve("tcp", cfg.Listen, cfg.Advertise, reg)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down", zap.Duration("timeout", maxTimeToClose))
	if err := svr.Shutdown(maxTimeToClose); err != nil {
		return err
	}
	return <-errCh
}

func loadConfig(c *cli.Context) (config.ServerConfig, error) {
	var cfg config.ServerConfig
	if path := c.String(configFile.Name); path != "" {
		var err error
		if cfg, err = config.LoadServerConfig(path); err != nil {
			return cfg, err
		}
	} else {
		cfg = config.DefaultServerConfig()
		cfg.Datasets = []config.Dataset{{Name: "test.1", Kind: "all"}}
	}
	if c.IsSet(listen.Name) {
		cfg.Listen = c.String(listen.Name)
	}
	if c.IsSet(logLevel.Name) {
		cfg.LogLevel = c.String(logLevel.Name)
	}
	return cfg, cfg.Validate()
}

// buildCatalog creates one synthetic source per configured dataset.
func buildCatalog(cfg config.ServerConfig, log *zap.Logger) (*server.Catalog, error) {
	catalog := server.NewCatalog()
	for _, ds := range cfg.Datasets {
		opts, err := ds.SimOptions()
		if err != nil {
			return nil, err
		}
		d, err := sim.Build(ds.Kind, ds.Name, sim.NewSource(opts, log.Named(ds.Name)))
		if err != nil {
			return nil, errors.Wrapf(err, "dataset %q", ds.Name)
		}
		if err := catalog.Add(d); err != nil {
			return nil, err
		}
		log.Debug("dataset", zap.String("name", ds.Name), zap.String("kind", ds.Kind), zap.Any("options", opts))
	}
	return catalog, nil
}

// buildServer applies the configured limits. Middlewares run outermost first:
// logging and metrics see every request, including rejected ones.
func buildServer(cfg config.ServerConfig, catalog *server.Catalog, m *metrics.Metrics, log *zap.Logger) *server.Server {
	svr := server.NewServer(catalog,
		server.WithLogger(log),
		server.WithBudget(cfg.RequestBudget),
		server.WithMaxBody(cfg.MaxBody),
		server.WithLeaseTTL(cfg.LeaseTTL),
	)
	svr.Use(middleware.LoggingMiddleware(log))
	svr.Use(middleware.MetricsMiddleware(m))
	if cfg.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.Timeout > 0 {
		svr.Use(middleware.TimeoutMiddleware(cfg.Timeout))
	}
	return svr
}
