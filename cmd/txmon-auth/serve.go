package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexjbarnes/txmon-auth/internal/auth"
	"github.com/alexjbarnes/txmon-auth/internal/config"
	apperrors "github.com/alexjbarnes/txmon-auth/internal/errors"
	"github.com/alexjbarnes/txmon-auth/internal/hashing"
	"github.com/alexjbarnes/txmon-auth/internal/logging"
	"github.com/alexjbarnes/txmon-auth/internal/metrics"
	"github.com/alexjbarnes/txmon-auth/internal/server"
	"github.com/alexjbarnes/txmon-auth/internal/state"
	"github.com/alexjbarnes/txmon-auth/internal/tokens"
)

const shutdownTimeout = 10 * time.Second

func run(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("txmon-auth starting",
		slog.String("version", Version),
		slog.String("environment", cfg.Environment),
		slog.String("refresh_store", cfg.RefreshStore),
	)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	hasher, err := hashing.New(cfg.HashIterations)
	if err != nil {
		return err
	}

	issuer, err := tokens.NewIssuer(tokens.IssuerConfig{
		SigningKey: []byte(cfg.SigningKey),
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		AccessTTL:  cfg.AccessTTL(),
		ClockSkew:  cfg.ClockSkew(),
	})
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	refresh, closeRefresh, err := openRefreshStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeRefresh()

	var (
		persist auth.ClientPersister
		st      *state.State
	)

	if cfg.StatePath != "" {
		st, err = state.LoadAt(cfg.StatePath)
		if err != nil {
			return fmt.Errorf("opening state: %w", err)
		}
		defer st.Close()

		persist = st
	}

	registry := auth.NewClientRegistry(hasher, persist, logger)

	restored, err := registry.Restore(ctx)
	if err != nil {
		return err
	}

	if st != nil {
		logRestore(logger, cfg.StatePath, st.OAuthClientCount(), restored)
	}

	users := auth.NewMemoryUsers(hasher)

	if err := seed(ctx, cfg, registry, users, logger); err != nil {
		return err
	}

	proxies, err := cfg.ParseTrustedProxies()
	if err != nil {
		return err
	}

	handler := server.NewMux(server.MuxConfig{
		Grants:    auth.NewGrantService(registry, hasher, issuer, logger),
		Sessions:  auth.NewSessionService(users, hasher, issuer, refresh, logger),
		Registry:  registry,
		Tokens:    issuer,
		Logger:    logger,
		Issuer:    cfg.Issuer,
		ServerURL: cfg.PublicURL,

		TrustedProxies: proxies,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server",
			slog.String("listen", cfg.ListenAddr),
			slog.String("public_url", cfg.PublicURL),
			slog.Int("clients", registry.Count()),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// logRestore reports how many persisted clients were loaded. A
// shortfall means duplicate records were skipped.
func logRestore(logger *slog.Logger, path string, stored, restored int) {
	attrs := []any{
		slog.String("path", path),
		slog.Int("stored", stored),
		slog.Int("restored", restored),
	}

	if restored < stored {
		logger.Warn("some persisted oauth clients were not restored", attrs...)
		return
	}

	logger.Info("restored oauth clients", attrs...)
}

func openRefreshStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tokens.RefreshStore, func(), error) {
	if cfg.RefreshStore != config.RefreshStoreRedis {
		store, err := tokens.NewMemoryRefreshStore(cfg.RefreshTTL())
		if err != nil {
			return nil, nil, err
		}

		logger.Warn("refresh tokens are held in memory and will not survive a restart")

		return store, func() {}, nil
	}

	client, err := tokens.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}

	store, err := tokens.NewRedisRefreshStore(client, cfg.RefreshTTL())
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("closing redis client", slog.String("error", err.Error()))
		}
	}, nil
}

// seed creates the users and clients named by OAUTH_CLIENTS and
// SEED_FILE. Clients already restored from state are left untouched.
func seed(ctx context.Context, cfg *config.Config, registry *auth.ClientRegistry, users *auth.MemoryUsers, logger *slog.Logger) error {
	clients, err := cfg.ParseOAuthClients()
	if err != nil {
		return err
	}

	if cfg.SeedFile != "" {
		doc, err := config.LoadSeed(cfg.SeedFile)
		if err != nil {
			return err
		}

		clients = append(clients, doc.Clients...)

		for _, u := range doc.Users {
			if _, err := users.Add(ctx, auth.UserSpec{
				Username:  u.Username,
				Password:  u.Password,
				Email:     u.Email,
				Role:      u.Role,
				FirstName: u.FirstName,
				LastName:  u.LastName,
				Disabled:  u.Disabled,
			}); err != nil {
				return fmt.Errorf("seeding user %q: %w", u.Username, err)
			}
		}

		logger.Info("seeded users", slog.Int("count", len(doc.Users)))
	}

	for _, c := range clients {
		_, _, err := registry.Create(ctx, auth.ClientSpec{
			ClientID:    c.ClientID,
			Secret:      c.Secret,
			Name:        c.Name,
			Description: c.Description,
			Scopes:      c.Scopes,
		})

		switch {
		case errors.Is(err, apperrors.ErrClientExists):
			logger.Debug("seed client already registered", slog.String("client_id", c.ClientID))
		case err != nil:
			return fmt.Errorf("seeding client %q: %w", c.ClientID, err)
		}
	}

	return nil
}
