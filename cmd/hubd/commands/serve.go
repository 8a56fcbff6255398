package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/externos/hubd/internal/api"
	"github.com/externos/hubd/internal/config"
	"github.com/externos/hubd/internal/display"
	"github.com/externos/hubd/internal/executor"
	"github.com/externos/hubd/internal/icon"
	"github.com/externos/hubd/internal/logger"
	"github.com/externos/hubd/internal/network"
	"github.com/externos/hubd/internal/notify"
	"github.com/externos/hubd/internal/window"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the hubd daemon",
	Long: `Start window tracking, the Wi-Fi controller and the HTTP API.

The shell UI reads state from the REST API and receives live changes over
the /api/events websocket.`,
	Example: `  # Start server on default port (8080)
  hubd serve

  # Start server on custom port
  hubd serve --port 9090

  # Start with specific config file
  hubd serve --config /path/to/config.yaml

  # Start with debug logging
  hubd serve --log-level debug`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// iconExtractor builds the configured extractor, falling back to the
// command backend when the X connection cannot be opened.
func iconExtractor(cfg config.IconConfig, exec *executor.Executor) (icon.Extractor, func(), error) {
	log := logger.WithComponent("serve")

	if cfg.Backend == config.IconBackendX11 {
		x, err := icon.NewX11Extractor(cfg.Size)
		if err == nil {
			return x, func() { x.Close() }, nil
		}
		log.Warn().Err(err).Msg("X11 icon backend unavailable, using xprop and ffmpeg")
	}

	for _, program := range []string{"xprop", "ffmpeg"} {
		if !executor.Available(program) {
			log.Warn().Str("program", program).Msg("Icon extraction tool not found in PATH")
		}
	}
	c, err := icon.NewCommandExtractor(exec, cfg.Dir, cfg.Size)
	if err != nil {
		return nil, nil, err
	}
	return c, func() {}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	configMgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, viper.GetBool("pretty"))
	log := logger.WithComponent("serve")

	log.Info().
		Str("config", configMgr.GetConfigPath()).
		Str("log_level", cfg.LogLevel).
		Msg("Configuration loaded")

	for _, program := range []string{"wmctrl", "nmcli", "xrandr"} {
		if !executor.Available(program) {
			log.Warn().Str("program", program).Msg("Required program not found in PATH")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec := executor.New(nil)
	store := icon.NewStore()

	trackerOpts := []window.Option{
		window.WithIconStore(store),
		window.WithNameResolver(window.ProcNames{}),
	}

	var queue *icon.Queue
	var tracker *window.Tracker
	if cfg.Icons.Enabled {
		extractor, closeExtractor, err := iconExtractor(cfg.Icons, exec)
		if err != nil {
			return fmt.Errorf("failed to initialize icon extraction: %w", err)
		}
		defer closeExtractor()

		queue = icon.NewQueue(extractor, cfg.Icons.Workers, cfg.Icons.QueueSize, func(req icon.Request, ic icon.Icon, err error) {
			tracker.HandleIcon(req, ic, err)
		})
		trackerOpts = append(trackerOpts, window.WithIconQueue(queue))
		log.Info().Str("backend", extractor.Name()).Int("workers", cfg.Icons.Workers).Msg("Icon extraction enabled")
	}

	tracker = window.NewTracker(window.NewWmctrlBackend(exec), cfg.Tracker, trackerOpts...)
	if queue != nil {
		queue.Start()
		defer queue.Stop()
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Network.Notify {
		notifier = notify.New("hubd")
	}
	if closer, ok := notifier.(*notify.DBusNotifier); ok {
		defer closer.Close()
	}

	wifi := network.NewController(exec, cfg.Network, notifier)
	displays := display.NewController(exec, cfg.Display)
	server := api.NewServer(configMgr, tracker, wifi, displays, store)

	var wg conc.WaitGroup
	wg.Go(func() { tracker.Run(ctx) })
	wg.Go(func() { wifi.Run(ctx) })
	wg.Go(func() { server.Run(ctx) })

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ServerPort)
	}()

	log.Info().
		Int("port", cfg.ServerPort).
		Dur("poll_interval", cfg.Tracker.PollInterval).
		Msg("hubd is running")

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down gracefully...")
	case err := <-errCh:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Server shutdown failed")
	}
	stop()
	wg.Wait()
	return nil
}
