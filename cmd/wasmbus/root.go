package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasmbus/host"
	"github.com/wippyai/wasmbus/messaging"
	"github.com/wippyai/wasmbus/pubsub/redisps"
	"github.com/wippyai/wasmbus/secrets"
	"github.com/wippyai/wasmbus/transport/natsrpc"
	"github.com/wippyai/wasmbus/wazerort"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logger     *zap.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "wasmbus",
		Short: "Inspect and drive a component's lattice invocation context",
		Long: `wasmbus loads a host file describing a component's links, local
components, configuration, secrets and messaging backends, and lets an
operator resolve interfaces and invoke functions exactly as the component
would.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := buildLogger(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = l
			installLogger(l)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		FParseErrWhitelist: cobra.FParseErrWhitelist{},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "wasmbus.yaml", "host file (.yaml, .yml or .toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	cmd.AddCommand(
		newLinksCmd(opts),
		newResolveCmd(opts),
		newInvokeCmd(opts),
		newConsoleCmd(opts),
	)
	return cmd
}

// buildLogger returns a development logger at debug and a production
// logger otherwise.
func buildLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}

	var cfg zap.Config
	if lvl == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

func installLogger(l *zap.Logger) {
	host.SetLogger(l.Named("host"))
	messaging.SetLogger(l.Named("messaging"))
	secrets.SetLogger(l.Named("secrets"))
	natsrpc.SetLogger(l.Named("natsrpc"))
	redisps.SetLogger(l.Named("redisps"))
	wazerort.SetLogger(l.Named("wazerort"))
}

// withEnv loads the host file and runs fn against the assembled host.
func (o *rootOptions) withEnv(ctx context.Context, fn func(*env) error) error {
	hf, err := loadHostFile(o.configPath)
	if err != nil {
		return err
	}
	log := o.logger
	if log == nil {
		log = zap.NewNop()
	}
	e, err := open(ctx, hf, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(context.WithoutCancel(ctx)); cerr != nil {
			log.Warn("close host", zap.Error(cerr))
		}
	}()
	return fn(e)
}
