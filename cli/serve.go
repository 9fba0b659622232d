package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"anniversary_server/logger"
	"anniversary_server/routes"
	"anniversary_server/socket"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoScheduler bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the realtime feed and the tick runner",
		Long: `Run the HTTP API, the socket.io feed and the recurring tick runner.

The runner ticks every active relationship once at start-up and then every
TICK_INTERVAL. Use --no-scheduler when ticks are triggered externally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoScheduler, "no-scheduler", false, "do not run the tick runner in this process")
	return cmd
}

// NewRouter builds the HTTP routes for app.
func NewRouter(app *App) *mux.Router {
	r := mux.NewRouter()
	routes.RegisterRoutes(r)
	routes.RegisterRelationshipRoutes(r, app.Pairing)
	routes.RegisterParticipantRoutes(r, app.Pairing)
	routes.RegisterMessageRoutes(r, app.Messages, app.Feed)
	routes.RegisterDeliveryStatusRoutes(r, app.Tracker)
	routes.RegisterSchedulerRoutes(r, app.Scheduler, app.Clock)
	if app.Media != nil {
		routes.RegisterMediaRoutes(r, app.Media)
	} else {
		logger.Get().Warn().Msg("⚠️ S3_BUCKET_NAME not set, media routes disabled")
	}
	return r
}

func runServe(parent context.Context, opts *ServeOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if feed := app.RedisFeed(); feed != nil {
		go func() {
			if err := feed.Run(ctx); err != nil {
				log.Error().Err(err).Msg("❌ redis change relay stopped")
			}
		}()
	}
	if !opts.NoScheduler {
		go app.Runner.Run(ctx)
	}

	hub := socket.NewHub(app.Pairing, app.Feed)
	defer hub.Close()
	socketServer := socket.NewSocketServer(hub)
	go func() {
		if err := socketServer.Serve(); err != nil {
			log.Error().Err(err).Msg("❌ socket server stopped")
		}
	}()
	defer socketServer.Close()

	router := NewRouter(app)
	router.Handle("/socket.io/", socketServer)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	}).Handler(router)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.StoreBackend).Msg("🚀 starting server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
