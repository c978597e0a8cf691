package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/papercomputeco/baassist/pkg/config"
	"github.com/papercomputeco/baassist/pkg/logger"
	"github.com/papercomputeco/baassist/server"
)

const serveLongDesc string = `Run the baassist API server.

Settings are read from built-in defaults, then the --config TOML file,
then .env files, then the environment, and finally these flags.

Examples:
  baassist serve
  baassist serve --port 9000 --model qwen2.5:7b
  baassist serve --config baassist.toml --sqlite ~/.baassist/transcripts.db`

const serveShortDesc string = "Run the API server"

const shutdownTimeout = 10 * time.Second

type serveCommander struct {
	configPath string
	envFiles   []string
	port       int
	endpoint   string
	model      string
	sqlitePath string
	prompts    string
	staticDir  string
	debug      bool
	jsonLogs   bool
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringSliceVar(&cmder.envFiles, "env-file", []string{".env"}, "Env files to load (missing files are skipped)")
	cmd.Flags().IntVarP(&cmder.port, "port", "p", 0, "Port to listen on")
	cmd.Flags().StringVar(&cmder.endpoint, "llm-endpoint", "", "Ollama-compatible server URL")
	cmd.Flags().StringVarP(&cmder.model, "model", "m", "", "Model name")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "Path to the SQLite transcript database (default: in-memory)")
	cmd.Flags().StringVar(&cmder.prompts, "prompts", "", "Path to the TOML prompt library (default: in-memory)")
	cmd.Flags().StringVar(&cmder.staticDir, "static", "", "Directory with the web client to serve at /")
	cmd.Flags().BoolVar(&cmder.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Log JSON lines (default when stdout is not a terminal)")

	return cmd
}

// load layers the flags the user set over the loaded configuration.
func (c *serveCommander) load(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(c.configPath, c.envFiles...)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = c.port
	}
	if flags.Changed("llm-endpoint") {
		cfg.LLM.Endpoint = c.endpoint
	}
	if flags.Changed("model") {
		cfg.LLM.Model = c.model
	}
	if flags.Changed("sqlite") {
		cfg.Server.DBPath = c.sqlitePath
	}
	if flags.Changed("prompts") {
		cfg.Prompts.File = c.prompts
	}
	if flags.Changed("static") {
		cfg.Server.StaticDir = c.staticDir
	}

	return cfg, cfg.Validate()
}

func serverConfig(cfg config.Config) server.Config {
	return server.Config{
		ListenAddr:    cfg.Server.ListenAddr(),
		DBPath:        cfg.Server.DBPath,
		StaticDir:     cfg.Server.StaticDir,
		KeepAlive:     cfg.Server.KeepAlive,
		ComicURL:      cfg.Server.ComicURL,
		ProgressEvery: cfg.Server.ProgressEvery,
		PromptsFile:   cfg.Prompts.File,
		LLM:           cfg.LLM,
		Analyzer:      cfg.Analyzer,
	}
}

func (c *serveCommander) run(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := c.load(cmd)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logger.New(logger.Options{
		Debug: c.debug,
		JSON:  c.jsonLogs || !term.IsTerminal(int(os.Stdout.Fd())),
	})
	defer log.Sync()

	srv, err := server.New(serverConfig(cfg), log)
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Run)

	if cfg.Prompts.Watch && cfg.Prompts.File != "" {
		g.Go(func() error {
			return srv.Prompts().Watch(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped with error", zap.Error(err))
		return err
	}
	return nil
}
