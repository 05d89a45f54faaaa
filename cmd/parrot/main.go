package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluesky-social/parrot/config"
	"github.com/bluesky-social/parrot/engine"
	"github.com/bluesky-social/parrot/ledger"
	"github.com/bluesky-social/parrot/mastodon"
	"github.com/bluesky-social/parrot/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	_ "go.uber.org/automaxprocs"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "parrot",
		Usage:   "mastodon repost, like, and follow-back bot",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to YAML bot configuration (falls back to $XDG_CONFIG_HOME/parrot/config.yaml)",
			Value:   "config.yaml",
			EnvVars: []string{"PARROT_CONFIG", "CONFIG_PATH"},
		},
		&cli.StringFlag{
			Name:    "ledger-url",
			Usage:   "where to record performed actions: directory path, file://, sqlite://, postgres://, redis://, or pebble://",
			Value:   "file://.",
			EnvVars: []string{"PARROT_LEDGER_URL"},
		},
		&cli.StringFlag{
			Name:    "instance-url",
			Usage:   "base URL of the Mastodon instance (overrides config file)",
			EnvVars: []string{"MASTODON_INSTANCE_URL"},
		},
		&cli.StringFlag{
			Name:    "access-token",
			Usage:   "Mastodon API access token",
			EnvVars: []string{"MASTODON_ACCESS_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "mastodon-rate-limit",
			Usage:   "max Mastodon API requests per second",
			Value:   1,
			EnvVars: []string{"PARROT_MASTODON_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "fetch-concurrency",
			Usage:   "max accounts fetched in parallel",
			Value:   4,
			EnvVars: []string{"PARROT_FETCH_CONCURRENCY"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "optional redis server for sharing account lookups between instances and restarts",
			EnvVars: []string{"PARROT_REDIS_URL", "REDIS_URL"},
		},
		&cli.DurationFlag{
			Name:    "call-timeout",
			Usage:   "deadline for each individual Mastodon API call",
			Value:   30 * time.Second,
			EnvVars: []string{"PARROT_CALL_TIMEOUT"},
		},
	}
	app.Flags = append(app.Flags, cliutil.LogFlags...)

	app.Commands = []*cli.Command{
		runCmd,
		onceCmd,
		planCmd,
		checkConfigCmd,
		ledgerCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the bot, checking for new posts and followers every interval",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3989",
			EnvVars: []string{"PARROT_METRICS_LISTEN"},
		},
		&cli.DurationFlag{
			Name:    "interval",
			Usage:   "time between cycles (overrides bot.check_interval)",
			EnvVars: []string{"PARROT_INTERVAL"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := cliutil.ConfigLogger(cctx, os.Stdout)
		if err != nil {
			return err
		}

		shutdownOTEL := configOTEL("parrot")
		defer shutdownOTEL()

		eng, err := setupEngine(ctx, cctx, logger)
		if err != nil {
			return err
		}
		defer eng.Ledger.Close()
		if d := cctx.Duration("interval"); d > 0 {
			eng.Config = &intervalOverride{Inner: eng.Config, Interval: d}
		}

		metrics := NewMetricsServer(cctx.String("metrics-listen"), logger)
		go func() {
			if err := metrics.Run(); err != nil {
				logger.Error("failed to start metrics endpoint", "err", err)
				stop()
			}
		}()
		defer metrics.Shutdown()

		logger.Info("starting run loop", "ledger", cctx.String("ledger-url"))
		return eng.Run(ctx)
	},
}

var onceCmd = &cli.Command{
	Name:  "once",
	Usage: "run a single cycle and exit",
	Action: func(cctx *cli.Context) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger, err := cliutil.ConfigLogger(cctx, os.Stdout)
		if err != nil {
			return err
		}
		shutdownOTEL := configOTEL("parrot")
		defer shutdownOTEL()

		eng, err := setupEngine(ctx, cctx, logger)
		if err != nil {
			return err
		}
		defer eng.Ledger.Close()

		report, err := eng.RunCycle(ctx)
		if err != nil {
			return err
		}
		report.CanonicalLogLine(logger)
		return nil
	},
}

var planCmd = &cli.Command{
	Name:  "plan",
	Usage: "fetch and print the actions the next cycle would take, without performing them",
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger, err := cliutil.ConfigLogger(cctx, os.Stderr)
		if err != nil {
			return err
		}

		eng, err := setupEngine(ctx, cctx, logger)
		if err != nil {
			return err
		}
		defer eng.Ledger.Close()

		actions, err := eng.PlanCycle(ctx)
		if err != nil {
			return err
		}
		for _, act := range actions {
			preview := ""
			if act.Post != nil {
				preview = act.Post.Preview
			}
			fmt.Printf("%s\t%s\t@%s\t%s\n", act.Type, act.Subject, act.Account, preview)
		}
		logger.Info("planned actions", "count", len(actions))
		return nil
	},
}

var checkConfigCmd = &cli.Command{
	Name:  "check-config",
	Usage: "parse and validate the bot configuration file",
	Action: func(cctx *cli.Context) error {
		cfgPath := resolveConfigPath(cctx.String("config"))
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		snap, err := cfg.Snapshot()
		if err != nil {
			return err
		}
		instance, err := mastodon.NormalizeInstanceURL(cfg.InstanceURL(cctx.String("instance-url")))
		if err != nil {
			return err
		}
		fmt.Printf("config file:     %s\n", cfgPath)
		fmt.Printf("instance:        %s\n", instance)
		fmt.Printf("monitored:       %d accounts\n", len(snap.Monitored))
		fmt.Printf("like rules:      %d (max %d likes per check)\n", len(snap.LikeRules), snap.MaxLikesPerCheck)
		fmt.Printf("follow back:     %t\n", snap.FollowBack)
		fmt.Printf("check interval:  %s\n", snap.Interval)
		return nil
	},
}

// Wires up config, ledger, and Mastodon client. The returned engine's ledger is loaded.
func setupEngine(ctx context.Context, cctx *cli.Context, logger *slog.Logger) (*engine.Engine, error) {
	cfgPath := resolveConfigPath(cctx.String("config"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	token := cctx.String("access-token")
	if token == "" {
		token = cfg.Mastodon.AccessToken
	}
	if token == "" {
		return nil, fmt.Errorf("MASTODON_ACCESS_TOKEN is not set")
	}
	client, err := mastodon.NewClient(cfg.InstanceURL(cctx.String("instance-url")), token, logger)
	if err != nil {
		return nil, err
	}
	client.Limiter.SetLimit(rateLimit(cctx.Int("mastodon-rate-limit")))
	if redisURL := cctx.String("redis-url"); redisURL != "" {
		shared, err := mastodon.NewRedisIDCache(ctx, redisURL, 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		client.SharedCache = shared
	}

	self, err := client.VerifyCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking mastodon credentials: %w", err)
	}
	logger.Info("connected to mastodon", "instance", client.Host, "account", self.Acct)

	led, err := openLedger(ctx, cctx.String("ledger-url"), logger)
	if err != nil {
		return nil, err
	}

	return &engine.Engine{
		Logger:           logger,
		Client:           client,
		Ledger:           led,
		Config:           config.NewFileSource(cfgPath, logger),
		FetchConcurrency: cctx.Int("fetch-concurrency"),
		CallTimeout:      cctx.Duration("call-timeout"),
	}, nil
}

func openLedger(ctx context.Context, ledgerURL string, logger *slog.Logger) (*ledger.Ledger, error) {
	store, err := ledger.Open(ctx, ledgerURL, logger)
	if err != nil {
		return nil, err
	}
	led := ledger.New(store)
	if err := led.Load(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	logger.Info("ledger loaded",
		"processed", led.Len(ledger.KindProcessed),
		"liked", led.Len(ledger.KindLiked),
		"followed", led.Len(ledger.KindFollowed),
	)
	return led, nil
}
