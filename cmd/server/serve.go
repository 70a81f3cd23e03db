package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"mentor-chat/internal/auth"
	"mentor-chat/internal/chat"
	"mentor-chat/internal/config"
	myMiddleware "mentor-chat/internal/middleware"
	"mentor-chat/internal/profile"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP and websocket server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Sources: cli.EnvVars("CHAT_ADDR"),
				Usage:   "http service address",
			},
			&cli.BoolFlag{
				Name:  "migrate",
				Usage: "create the schema before serving",
				Value: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.IsSet("addr") {
				cfg.Addr = cmd.String("addr")
			}
			return serve(ctx, cfg, cmd.Bool("migrate"))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, migrate bool) error {
	// 1. Logger
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           cfg.Level(),
	})
	log.SetDefault(logger)

	// 2. Storage (Platform Layer)
	b, err := openBackend(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer b.Close(context.Background())
	store := chat.Instrument(b.store)

	// 3. Profiles for conversation listings
	var (
		resolver       chat.ProfileResolver
		profileHandler *profile.Handler
	)
	if b.profiles != nil {
		cache, closeCache, err := profileCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeCache()
		svc := profile.NewService(b.profiles, cache, cfg.ProfileCacheTTL, logger.WithPrefix("profile"))
		resolver = svc
		profileHandler = profile.NewHandler(svc)
	}

	// 4. Chat Feature
	chatLog := logger.WithPrefix("chat")
	directory := chat.NewDirectory(store, resolver, chatLog)
	presence := chat.NewRegistry()
	reads := chat.NewReadTracker(store)
	router := chat.NewRouter(directory, presence, reads, chatLog, chat.RouterConfig{
		MaxBodyLength:  cfg.MaxBodyLength,
		PersistTimeout: cfg.PersistTimeout,
	})
	query := chat.NewQuery(store, directory)
	chatHandler := chat.NewHandler(router, query, directory, chatLog, cfg.SendBufferSize)

	authMiddleware := myMiddleware.NewAuthMiddleware(auth.NewValidator(cfg.JWTSecret))

	// 5. Routes
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Get("/healthz", chatHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Post("/api/conversations", chatHandler.StartConversation)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Get("/api/conversations/{id}/messages", chatHandler.GetConversationMessages)
		r.Get("/api/messages", chatHandler.GetChatHistory)
		if profileHandler != nil {
			r.Get("/api/profiles/search", profileHandler.Search)
		}
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", "addr", cfg.Addr, "store", cfg.StoreDriver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are not tracked by Shutdown; they end
	// when the process exits.
	return srv.Shutdown(shutdownCtx)
}
