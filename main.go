package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunoscheufler/notekeeper/cli"
	"github.com/brunoscheufler/notekeeper/config"
	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/brunoscheufler/notekeeper/render"
	"github.com/brunoscheufler/notekeeper/restapi"
	"github.com/brunoscheufler/notekeeper/state"
	"github.com/brunoscheufler/notekeeper/store"
	"github.com/brunoscheufler/notekeeper/telemetry"
)

const (
	// Health check configuration
	MaxHealthCheckRetries    = 10
	HealthCheckRetryInterval = 200 * time.Millisecond
	HealthCheckTimeout       = 5 * time.Second
)

func main() {
	cfg, args, err := config.Load(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		cli.PrintUsage(os.Stderr)
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := Run(cfg, args); err != nil {
		os.Exit(1)
	}
}

// Run executes the command in args. Errors are reported before returning.
func Run(cfg config.Config, args []string) error {
	command := "tui"
	if len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "help", "-h", "--help":
		cli.PrintUsage(os.Stdout)
		return nil
	case "serve":
		err := runServe(cfg, args[1:])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	case "tui":
		err := runTUI(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	default:
		return runCommand(cfg, args)
	}
}

// ApplicationComponents holds the initialized components needed to run the client
type ApplicationComponents struct {
	KV        store.KeyValueStore
	Client    *restapi.Client
	Sessions  *state.SessionStore
	Notes     *state.NotesStore
	Telemetry *telemetry.Telemetry
}

func (c *ApplicationComponents) Close() {
	if err := c.KV.Close(); err != nil {
		c.Telemetry.Logger.Warn("Failed to close local storage", "error", err.Error())
	}
}

// openStorage opens the SQLite file, or an in-memory store when path is empty
func openStorage(ctx context.Context, path string) (store.KeyValueStore, error) {
	if path == "" {
		return store.NewMemoryKV(), nil
	}
	kv, err := store.NewSQLiteKV(ctx, store.DefaultStoreOptions(path))
	if err != nil {
		return nil, fmt.Errorf("could not open local storage: %w", err)
	}
	return kv, nil
}

// initializeApplication wires storage, the API client and both stores
func initializeApplication(ctx context.Context, cfg config.Config, tel *telemetry.Telemetry) (*ApplicationComponents, error) {
	kv, err := openStorage(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	logger := tel.GetLogger()
	client := restapi.NewClient(cfg.Server.URL,
		restapi.WithTimeout(cfg.HTTP.Timeout),
		restapi.WithStatsCollector(tel.GetStatsCollector()),
		restapi.WithLogger(logger),
	)

	options := []state.Option{
		state.WithLogger(logger),
		state.WithStatusTTL(cfg.Status.TTL),
	}
	sessions := state.NewSessionStore(ctx, client, kv, options...)
	notes := state.NewNotesStore(ctx, client, kv, sessions, options...)
	sessions.OnLogout(notes.Reset)
	sessions.OnLogout(tel.GetStatsCollector().Reset)

	logger.Debug("Client initialized",
		"server", client.BaseURL(),
		"storage", cfg.Storage.Path,
		"config", cfg.ConfigFile,
	)

	return &ApplicationComponents{
		KV:        kv,
		Client:    client,
		Sessions:  sessions,
		Notes:     notes,
		Telemetry: tel,
	}, nil
}

func runTUI(cfg config.Config) error {
	tel := telemetry.New(telemetry.WithCLIMode(true), telemetry.WithLogLevel(cfg.Log.Level))

	components, err := initializeApplication(context.Background(), cfg, tel)
	if err != nil {
		return err
	}
	defer components.Close()

	return cli.RunCLI(&cli.AppConfig{
		Sessions:  components.Sessions,
		Notes:     components.Notes,
		Telemetry: tel,
	}, cli.CLIOptions{Theme: cfg.UI.Theme})
}

func runCommand(cfg config.Config, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel := telemetry.New(telemetry.WithLogLevel(cfg.Log.Level))
	printer := render.NewPrinter(os.Stdout, cfg.UI.Theme)

	components, err := initializeApplication(ctx, cfg, tel)
	if err != nil {
		printer.Error(err.Error())
		return err
	}
	defer components.Close()

	env := &cli.Env{
		Sessions: components.Sessions,
		Notes:    components.Notes,
		Printer:  printer,
		Markdown: render.NewMarkdown(),
		In:       os.Stdin,
		Out:      os.Stdout,
	}

	err = cli.Dispatch(ctx, env, args)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, flag.ErrHelp):
		return nil
	case errors.Is(err, cli.ErrUnknownCommand), errors.Is(err, cli.ErrUsage):
		printer.Error(err.Error())
		cli.PrintUsage(os.Stderr)
	case state.Message(err) != "":
		printer.Error(state.Message(err))
		tel.Logger.Debug("Command failed", "error", err.Error())
	default:
		printer.Error(err.Error())
	}
	return err
}

func runServe(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Serve.Addr, "Address to listen on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tel := telemetry.New(telemetry.WithLogLevel(cfg.Log.Level))
	logger := tel.GetLogger()

	if err := checkPortAvailable(*addr); err != nil {
		return err
	}

	options := []restapi.ServerOption{
		restapi.WithTokenTTL(cfg.Serve.TokenTTL),
		restapi.WithServerLogger(logger),
	}
	if cfg.Serve.Secret != "" {
		options = append(options, restapi.WithSigningKey([]byte(cfg.Serve.Secret)))
	} else {
		logger.Warn("No serve.secret configured, tokens are signed with a development key")
	}

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           restapi.NewServer(options...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return runHTTPServer(httpServer, logger)
}

// checkPortAvailable checks if the given address is available for binding
func checkPortAvailable(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is not available: %w", addr, err)
	}
	listener.Close()
	return nil
}

// checkServerHealth validates that the server is ready by calling /healthz
func checkServerHealth(addr string) error {
	client := &http.Client{Timeout: HealthCheckTimeout}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s%s", net.JoinHostPort(host, port), constants.HealthPath)

	for i := 0; i < MaxHealthCheckRetries; i++ {
		resp, err := client.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(HealthCheckRetryInterval)
	}

	return fmt.Errorf("server health check failed after retries")
}

func runHTTPServer(httpServer *http.Server, logger *slog.Logger) error {
	// Set up signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverError := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverError <- err
		}
	}()

	go func() {
		if err := checkServerHealth(httpServer.Addr); err != nil {
			logger.Warn("Server did not become healthy", "error", err.Error())
			return
		}
		logger.Info("Server ready", "addr", httpServer.Addr)
	}()

	select {
	case err := <-serverError:
		return fmt.Errorf("server failed to start: %w", err)
	case <-stop:
		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	}
}
