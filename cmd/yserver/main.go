package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ysocial/yserver/config"
	"github.com/ysocial/yserver/server"
	"github.com/ysocial/yserver/util"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "yserver",
		Usage:   "simulated microblogging platform for agent experiments",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to the experiment configuration file",
			EnvVars: []string{config.ConfigPathEnv},
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "overrides the configured database target",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the HTTP API",
			EnvVars: []string{"YSERVER_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":5011",
			EnvVars: []string{"YSERVER_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "perspective-api-key",
			Usage:   "enables the external toxicity scorer",
			EnvVars: []string{"PERSPECTIVE_API_KEY"},
		},
		&cli.IntFlag{
			Name:    "max-db-connections",
			EnvVars: []string{"MAX_DB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the experiment server",
	Action: func(cctx *cli.Context) error {
		logger, err := util.SetupSlog(util.LogOptions{})
		if err != nil {
			return err
		}

		cfg, err := config.Load(cctx.String("config"))
		if err != nil {
			return err
		}
		if key := cctx.String("perspective-api-key"); key != "" {
			cfg.PerspectiveAPIKey = key
		}

		dburl := cctx.String("database-url")
		if dburl == "" {
			dburl = cfg.DatabaseURL()
		}
		db, err := util.SetupDatabase(dburl, cctx.Int("max-db-connections"))
		if err != nil {
			return err
		}

		srv, err := server.NewServer(db, cfg)
		if err != nil {
			return err
		}

		if cfg.ResetDB {
			if err := srv.Reset(cctx.Context); err != nil {
				return err
			}
		}

		bind := cctx.String("bind")
		if bind == "" {
			bind = cfg.BindAddr()
		}

		var eg errgroup.Group
		eg.Go(func() error {
			if err := srv.RunAPI(bind); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{Addr: cctx.String("metrics-listen"), Handler: mux}
		eg.Go(func() error {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit
			logger.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsSrv.Shutdown(ctx); err != nil {
				logger.Warn("metrics shutdown", "err", err)
			}
			return srv.Shutdown(ctx)
		})

		return eg.Wait()
	},
}
