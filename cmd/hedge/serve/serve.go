// Package servecmder provides the serve command, which runs the chat relay
// and the transcript API in one process.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/hedge/api"
	"github.com/papercomputeco/hedge/pkg/config"
	"github.com/papercomputeco/hedge/pkg/eventstream"
	"github.com/papercomputeco/hedge/pkg/eventstream/kafka"
	"github.com/papercomputeco/hedge/pkg/eventstream/nop"
	"github.com/papercomputeco/hedge/pkg/logger"
	"github.com/papercomputeco/hedge/pkg/storage"
	"github.com/papercomputeco/hedge/pkg/storage/inmemory"
	"github.com/papercomputeco/hedge/pkg/storage/postgres"
	"github.com/papercomputeco/hedge/pkg/storage/sqlite"
	"github.com/papercomputeco/hedge/proxy"
)

type serveCommander struct {
	flags struct {
		proxyListen  string
		apiListen    string
		agent        string
		agentPath    string
		agentTimeout string
		sqlitePath   string
		postgresDSN  string
		queueSize    uint
		workers      uint
		kafkaBrokers string
		kafkaTopic   string
	}

	debug       bool
	jsonLogs    bool
	logFile     string
	watchConfig bool
	configDir   string

	cfg    *config.Config
	level  *slog.LevelVar
	logger *slog.Logger
}

// serveFlags are the registry keys bound to viper for this command.
var serveFlags = []string{
	config.FlagProxyListen,
	config.FlagAPIListen,
	config.FlagAgentTarget,
	config.FlagAgentPath,
	config.FlagAgentTimeout,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagQueueSize,
	config.FlagWorkers,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run the hedge chat relay and transcript API.

The relay accepts POST /v1/chat, forwards the message to the configured agent,
streams the agent's answer back unchanged, and persists the decoded transcript
(answer text, reasoning phases, tool statuses) once the stream completes.

The transcript API serves persisted conversations on a second listener.

Storage is PostgreSQL when --postgres is set, SQLite when --sqlite is set,
and in-memory otherwise. Message events are published to Kafka when
--kafka-brokers is set.

With --watch-config, edits to log.level in config.toml apply without a restart.`

const serveShortDesc string = "Run the hedge relay and transcript API"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			cmder.debug, _ = cmd.Flags().GetBool("debug")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.cfg = config.FromViper(v)
			return validate(v, cmder.cfg)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagProxyListen, &cmder.flags.proxyListen)
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.flags.apiListen)
	config.AddStringFlag(cmd, config.Flags, config.FlagAgentTarget, &cmder.flags.agent)
	config.AddStringFlag(cmd, config.Flags, config.FlagAgentPath, &cmder.flags.agentPath)
	config.AddStringFlag(cmd, config.Flags, config.FlagAgentTimeout, &cmder.flags.agentTimeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgresDSN)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &cmder.flags.queueSize)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.flags.workers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.flags.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.flags.kafkaTopic)
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Emit JSON logs instead of colorized output")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.watchConfig, "watch-config", false, "Reload log.level when config.toml changes")

	return cmd
}

// validate rejects values viper accepted as strings but that cannot be used.
func validate(v *viper.Viper, cfg *config.Config) error {
	if raw := v.GetString("agent.timeout"); raw != "" {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("invalid agent timeout %q", raw)
		}
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", cfg.Log.Level, err)
	}
	return nil
}

func (c *serveCommander) run(ctx context.Context) error {
	c.level = new(slog.LevelVar)
	c.level.Set(c.startLevel())
	c.logger = logger.New(
		logger.WithLevelVar(c.level),
		logger.WithPretty(!c.jsonLogs),
		logger.WithJSON(c.jsonLogs),
	)

	if c.logFile != "" {
		f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()

		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithLevelVar(c.level),
			logger.WithJSON(true),
			logger.WithWriter(f),
		))
	}

	driver, err := c.newDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	p, err := proxy.New(proxy.Config{
		ListenAddr:   c.cfg.Proxy.Listen,
		AgentURL:     c.cfg.Agent.Target,
		AgentPath:    c.cfg.Agent.Path,
		AgentTimeout: c.cfg.Agent.Timeout.Duration,
		NumWorkers:   c.cfg.Stream.Workers,
		QueueSize:    c.cfg.Stream.QueueSize,
	}, driver, publisher, c.logger)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}

	apiServer := api.NewServer(api.Config{ListenAddr: c.cfg.API.Listen}, driver, c.logger)

	proxyListener, err := net.Listen("tcp", c.cfg.Proxy.Listen)
	if err != nil {
		_ = p.Close()
		return fmt.Errorf("listening on %s: %w", c.cfg.Proxy.Listen, err)
	}
	apiListener, err := net.Listen("tcp", c.cfg.API.Listen)
	if err != nil {
		proxyListener.Close()
		_ = p.Close()
		return fmt.Errorf("listening on %s: %w", c.cfg.API.Listen, err)
	}

	return c.serve(ctx, p, apiServer, proxyListener, apiListener)
}

// serve runs both servers until ctx is done or either fails, then shuts
// them down. The relay's worker pool is drained before returning.
func (c *serveCommander) serve(ctx context.Context, p *proxy.Proxy, apiServer *api.Server, proxyListener, apiListener net.Listener) error {
	errChan := make(chan error, 2)

	go func() {
		if err := p.RunWithListener(proxyListener); err != nil {
			errChan <- fmt.Errorf("relay error: %w", err)
		}
	}()

	go func() {
		if err := apiServer.RunWithListener(apiListener); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	if c.watchConfig {
		go c.watch(ctx)
	}

	var runErr error
	select {
	case runErr = <-errChan:
	case <-ctx.Done():
		c.logger.Info("received signal, shutting down")
	}

	shutdownErr := errors.Join(apiServer.Shutdown(), p.Close())
	if shutdownErr != nil {
		c.logger.Error("shutdown failed", "error", shutdownErr)
	}
	return errors.Join(runErr, shutdownErr)
}

func (c *serveCommander) startLevel() slog.Level {
	if c.debug {
		return slog.LevelDebug
	}
	level, err := logger.ParseLevel(c.cfg.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// watch applies log.level changes from config.toml until ctx is done.
func (c *serveCommander) watch(ctx context.Context) {
	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		c.logger.Warn("config watch disabled", "error", err)
		return
	}

	err = cfger.Watch(ctx, func(cfg *config.Config) {
		level, err := logger.ParseLevel(cfg.Log.Level)
		if err != nil {
			c.logger.Warn("ignoring invalid log.level", "value", cfg.Log.Level)
			return
		}
		if level != c.level.Level() {
			c.level.Set(level)
			c.logger.Info("log level reloaded", "level", level.String())
		}
	}, func(err error) {
		c.logger.Warn("config reload failed", "error", err)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Warn("config watch stopped", "error", err)
	}
}

func (c *serveCommander) newDriver(ctx context.Context) (storage.Driver, error) {
	switch {
	case c.cfg.Storage.PostgresDSN != "":
		driver, err := postgres.NewDriver(ctx, c.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case c.cfg.Storage.SQLitePath != "":
		driver, err := sqlite.NewDriver(ctx, c.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", c.cfg.Storage.SQLitePath)
		return driver, nil

	default:
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil
	}
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	if len(c.cfg.EventStream.KafkaBrokers) == 0 {
		return nop.NewPublisher(), nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers: c.cfg.EventStream.KafkaBrokers,
		Topic:   c.cfg.EventStream.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}
	c.logger.Info("publishing message events",
		"brokers", c.cfg.EventStream.KafkaBrokers,
		"topic", publisher.Topic(),
	)
	return publisher, nil
}
