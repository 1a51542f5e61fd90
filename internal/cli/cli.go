// Package cli implements the wheel8 subcommands.
package cli

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/MJE43/wheel8/internal/api"
	"github.com/MJE43/wheel8/internal/app"
	"github.com/MJE43/wheel8/internal/config"
	"github.com/MJE43/wheel8/internal/engine"
	"github.com/MJE43/wheel8/internal/logging"
	"github.com/MJE43/wheel8/internal/telemetry"
	"github.com/MJE43/wheel8/internal/wheel"
)

const serviceName = "wheel8"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrUsage is returned for an unknown or missing subcommand.
var ErrUsage = errors.New("usage: wheel8 <serve|init|verify|decode|token> [flags]")

// Run dispatches args[0] to its subcommand. Output goes to out.
func Run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return ErrUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve":
		return runServe(ctx, rest)
	case "init":
		return runInit(ctx, rest, out)
	case "verify":
		return runVerify(ctx, rest, out)
	case "decode":
		return runDecode(rest, out)
	case "token":
		return runToken(rest, out)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, ErrUsage)
	}
}

// setup parses the shared config and opens the app. extra registers
// command-specific flags before parsing.
func setup(ctx context.Context, name string, args []string, extra func(*flag.FlagSet)) (*app.App, *flag.FlagSet, config.Config, *zap.Logger, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	if extra != nil {
		extra(fs)
	}
	cfg, err := config.ParseConfig(fs, args)
	if err != nil {
		return nil, nil, config.Config{}, nil, err
	}
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return nil, nil, config.Config{}, nil, err
	}
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, config.Config{}, nil, err
	}
	return a, fs, cfg, log, nil
}

func runServe(ctx context.Context, args []string) error {
	a, _, cfg, log, err := setup(ctx, "serve", args, nil)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	shutdown, err := telemetry.Setup(ctx, serviceName, api.EngineVersion, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	if cfg.WheelsFile != "" {
		defs, err := config.LoadWheels(cfg.WheelsFile)
		if err != nil {
			return err
		}
		created, err := a.SeedWheels(ctx, defs)
		if err != nil {
			return err
		}
		log.Info("wheels seeded", zap.String("file", cfg.WheelsFile), zap.Int("created", created), zap.Int("defined", len(defs)))
	}

	log.Info("starting wheel8",
		zap.String("engine_version", api.EngineVersion),
		zap.String("derivation", engine.Version),
		zap.String("store", cfg.Store),
		zap.String("anchor", cfg.Anchor),
	)
	return a.Serve(ctx)
}

// runInit initializes one wheel from -wheel and -multipliers, or every wheel
// in the definition file.
func runInit(ctx context.Context, args []string, out io.Writer) error {
	var wheelID, multipliers string
	a, _, cfg, log, err := setup(ctx, "init", args, func(fs *flag.FlagSet) {
		fs.StringVar(&wheelID, "wheel", "", "Wheel id to initialize")
		fs.StringVar(&multipliers, "multipliers", "", "Comma-separated list of 8 multipliers")
	})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	if wheelID == "" {
		if cfg.WheelsFile == "" {
			return errors.New("init: -wheel and -multipliers, or -wheels, are required")
		}
		defs, err := config.LoadWheels(cfg.WheelsFile)
		if err != nil {
			return err
		}
		created, err := a.SeedWheels(ctx, defs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "initialized %d of %d wheels from %s\n", created, len(defs), cfg.WheelsFile)
		return err
	}

	values, err := wheel.ParseMultiplierList(multipliers)
	if err != nil {
		return err
	}
	wcfg, err := a.Service().Initialize(ctx, wheelID, values)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "initialized %s: %v (expected multiplier %s)\n",
		wheelID, wcfg.Slice(), wcfg.ExpectedMultiplier().String())
	return err
}

// runVerify replays stored spins against their wheel's config.
func runVerify(ctx context.Context, args []string, out io.Writer) error {
	a, fs, _, log, err := setup(ctx, "verify", args, nil)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	if fs.NArg() == 0 {
		return errors.New("verify: at least one spin id is required")
	}
	var failed []error
	for _, id := range fs.Args() {
		rec, err := a.Service().Audit(ctx, id)
		if err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", id, err)
			failed = append(failed, err)
			continue
		}
		fmt.Fprintf(out, "OK   %s wheel=%s %s\n", rec.ID, rec.WheelID, rec.Result())
	}
	if len(failed) > 0 {
		return fmt.Errorf("verify: %d of %d spins failed: %w", len(failed), fs.NArg(), errors.Join(failed...))
	}
	return nil
}

// runDecode prints an emitted 67-byte spin event as JSON.
func runDecode(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("decode: exactly one hex-encoded event is required")
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(fs.Arg(0)), "0x"))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	res, err := engine.DecodeEvent(raw)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

// runToken signs a bearer token for the HTTP API.
func runToken(args []string, out io.Writer) error {
	var requester, role string
	var ttl time.Duration
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.StringVar(&requester, "requester", "", "64-hex requester id")
	fs.StringVar(&role, "role", string(api.RolePlayer), "Token role: player or operator")
	fs.DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to WHEEL8_TOKEN_TTL)")
	cfg, err := config.ParseConfig(fs, args)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.TokenTTL
	}

	id, err := engine.ParseRequesterID(requester)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	auth, err := api.NewAuthenticator([]byte(cfg.JWTSecret), cfg.JWTIssuer)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	token, err := auth.IssueToken(id, api.Role(role), ttl)
	if err != nil {
		return fmt.Errorf("token: %w", err)
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
