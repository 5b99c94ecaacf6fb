package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/teranos/attackls/am"
	"github.com/teranos/attackls/errors"
	"github.com/teranos/attackls/logger"
	"github.com/teranos/attackls/lsp"
	"github.com/teranos/attackls/server"
	"github.com/teranos/attackls/server/clientlog"
)

// ServeCmd runs the language server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Run the ATT&CK language server",
	Long: `Run the language server on the configured transport.

  stdio      one session over stdin/stdout (what editors spawn)
  tcp        sessions on server.address
  websocket  LSP at ws://<server.address>/lsp plus the HTTP lookup API

Server log entries are forwarded to editors as window/logMessage: warnings
and errors by default, every level when attack.debug is set.

Changes to the config files are applied while running: lookup settings,
allowed origins and the API rate limit. Transport and address need a restart.`,
	RunE: runServe,
}

var (
	serveTransport string
	serveAddress   string
)

func init() {
	ServeCmd.Flags().StringVar(&serveTransport, "transport", "", "stdio, tcp or websocket (overrides server.transport)")
	ServeCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address for tcp and websocket (overrides server.address)")
}

func runServe(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyServeFlags(&cfg.Server)

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	// editors see warnings, and everything once attack.debug is on
	logs := clientlog.NewHub()
	defer logger.AddCore(clientlog.NewCore(logger.Enabler(), logs))()

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	logger.SetDebug(cfg.Attack.Debug)

	srv := server.New(svc, cfg.Server)
	srv.SetDebug(verbosity >= 3) // -vvv traces every JSON-RPC message
	srv.ForwardLogs(logs)

	if watcher := watchConfig(svc, srv, cfg.Server); watcher != nil {
		defer watcher.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol on stdio
	if cfg.Server.Transport != am.TransportStdio {
		printStartupBanner(verbosity, cfg, svc)
	}

	serveErr := srv.Serve(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("Shutdown incomplete", logger.FieldError, err)
	}

	if serveErr != nil {
		return errors.Wrap(serveErr, "server stopped")
	}
	if cfg.Server.Transport != am.TransportStdio {
		pterm.Success.Println("Server stopped cleanly")
	}
	return nil
}

func applyServeFlags(cfg *am.ServerConfig) {
	if serveTransport != "" {
		cfg.Transport = serveTransport
	}
	if serveAddress != "" {
		cfg.Address = serveAddress
	}
}

// watchConfig applies config file changes to the running server.
// Transport and address stay as started.
func watchConfig(svc *lsp.Service, srv *server.Server, started am.ServerConfig) *am.ConfigWatcher {
	files := am.ConfigFiles()
	if len(files) == 0 {
		return nil
	}

	watcher, err := am.NewConfigWatcher(files...)
	if err != nil {
		logger.Warnw("Config hot-reload disabled", logger.FieldError, err)
		return nil
	}

	watcher.OnReload(func(cfg *am.Config) error {
		settings, err := lsp.SettingsFromConfig(cfg.Attack)
		if err != nil {
			return err
		}
		svc.Configure(settings)
		logger.SetDebug(settings.Debug)
		return nil
	})
	watcher.OnReload(func(cfg *am.Config) error {
		next := cfg.Server
		next.Transport = started.Transport
		next.Address = started.Address
		srv.UpdateConfig(next)
		return nil
	})

	watcher.Start()
	logger.Infow("Watching config files", "files", files)
	return watcher
}

// printStartupBanner prints where the server listens and what it loaded
func printStartupBanner(verbosity int, cfg am.Config, svc *lsp.Service) {
	info := versionInfo()
	idx := svc.Index()
	settings := svc.Settings()

	pterm.DefaultHeader.WithFullWidth().Println("attackls " + info.ServerVersion())

	pterm.Printf("%s %s\n", pterm.LightCyan("Transport:"), cfg.Server.Transport)
	switch cfg.Server.Transport {
	case am.TransportWebSocket:
		pterm.Printf("%s ws://%s/lsp\n", pterm.LightCyan("LSP:      "), cfg.Server.Address)
		pterm.Printf("%s http://%s/api/techniques\n", pterm.LightCyan("API:      "), cfg.Server.Address)
	case am.TransportTCP:
		pterm.Printf("%s %s\n", pterm.LightCyan("Address:  "), cfg.Server.Address)
	}
	pterm.Printf("%s %s (%s techniques, %s revoked)\n",
		pterm.LightCyan("Dataset:  "),
		cfg.Dataset.Path,
		pterm.Green(len(idx.Active())),
		pterm.Yellow(len(idx.Revoked())),
	)
	pterm.Printf("%s %s descriptions, %s completions\n",
		pterm.LightCyan("Lookups:  "), settings.Description, settings.Format)
	pterm.Printf("%s %s\n", pterm.LightCyan("Verbosity:"), logger.LevelName(verbosity))
	pterm.Println()
	pterm.Info.Println("Press Ctrl+C to stop")
}
