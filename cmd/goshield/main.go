// Command goshield manages users of a goShield deployment.
//
//	goshield -config goshield.toml -dsn postgres://... create -n alice -e alice@example.com
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goShield "github.com/MrEthical07/goShield"
	"github.com/MrEthical07/goShield/internal/admincli"
	"github.com/MrEthical07/goShield/pgstore"
	"github.com/redis/go-redis/v9"
)

type options struct {
	configPath string
	dsn        string
	redisAddr  string
	migrate    bool
	verbose    bool
}

func parseOptions(args []string, stderr io.Writer) (options, []string, error) {
	var o options
	fs := flag.NewFlagSet("goshield", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", os.Getenv("GOSHIELD_CONFIG"), "path to TOML configuration")
	fs.StringVar(&o.dsn, "dsn", os.Getenv("GOSHIELD_DATABASE_URL"), "PostgreSQL connection string")
	fs.StringVar(&o.redisAddr, "redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
	fs.BoolVar(&o.migrate, "migrate", false, "apply schema migrations before running the command")
	fs.BoolVar(&o.verbose, "v", false, "log engine diagnostics to stderr")
	if err := fs.Parse(args); err != nil {
		return o, nil, err
	}
	if o.dsn == "" {
		return o, nil, errors.New("a database connection string is required (-dsn or GOSHIELD_DATABASE_URL)")
	}
	return o, fs.Args(), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	o, rest, err := parseOptions(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg := goShield.DefaultConfig()
	if o.configPath != "" {
		if cfg, err = goShield.LoadConfigFile(o.configPath); err != nil {
			return err
		}
	}

	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	db, err := pgstore.Open(ctx, o.dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	if o.migrate {
		if err := pgstore.Migrate(ctx, db); err != nil {
			return err
		}
	}

	rdb := redis.NewClient(&redis.Options{Addr: o.redisAddr})
	defer rdb.Close()

	engine, err := goShield.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithRepository(pgstore.New(db)).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	app := admincli.New(engine.Admin(), os.Stdin, os.Stdout, admincli.TerminalPassword())
	return app.Run(ctx, rest)
}
