package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sharexp/config"
	"sharexp/engagement"
	"sharexp/feeds"
	"sharexp/graph"
	"sharexp/notifications"
	"sharexp/presence"
	"sharexp/server"
	"sharexp/storage"
	"sharexp/storage/db"
	"sharexp/storage/memory"
	"sharexp/storage/models"
	"sharexp/tasks"
	"sharexp/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var cfg config.Config

	cmd := &cobra.Command{
		Use:           "sharexp",
		Short:         "Engagement and notification service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.LoadEnv()
			config.ConfigureLogging()
			cfg = config.FromEnv()
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP and websocket server",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := cfg.Validate(); err != nil {
					return err
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, cfg)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply the Postgres schema",
			RunE: func(cmd *cobra.Command, args []string) error {
				backend, err := openPostgres(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer backend.Close()
				return backend.Migrate(cmd.Context())
			},
		},
		newCreateUserCommand(&cfg),
		newTokenCommand(&cfg),
	)
	return cmd
}

func newCreateUserCommand(cfg *config.Config) *cobra.Command {
	var user models.User
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := openBackend(cmd.Context(), *cfg)
			if err != nil {
				return err
			}
			manager := storage.NewManager(backend, nil, storageOptions(*cfg))
			defer manager.Close()

			if user.ID == "" {
				user.ID = utils.NewID()
			}

			created, err := manager.CreateUser(cmd.Context(), user)
			if err != nil {
				return err
			}
			fmt.Println(string(utils.ToJson(created)))
			return nil
		},
	}
	cmd.Flags().StringVar(&user.ID, "id", "", "user id, generated when empty")
	cmd.Flags().StringVar(&user.Username, "username", "", "unique username")
	cmd.Flags().StringVar(&user.Name, "name", "", "display name")
	cmd.Flags().StringVar(&user.ProfileImage, "profile-image", "", "profile image url")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

// newTokenCommand signs a bearer token for local development.
func newTokenCommand(cfg *config.Config) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is required")
			}
			token, err := server.GenerateToken(userID, []byte(cfg.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func storageOptions(cfg config.Config) storage.Options {
	return storage.Options{
		UsersCacheExpiration: cfg.UsersCacheExpiration,
		PostsCacheExpiration: cfg.PostsCacheExpiration,
		MaxRetries:           cfg.StorageMaxRetries,
		RetryDelay:           cfg.StorageRetryDelay,
	}
}

func openPostgres(ctx context.Context, cfg config.Config) (*db.Backend, error) {
	pool, err := db.NewPool(ctx, cfg.PostgresDSN())
	if err != nil {
		return nil, err
	}
	return db.New(pool), nil
}

func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	if cfg.StorageBackend == config.BackendMemory {
		log.Warn("Using in-memory storage; data is lost on exit")
		return memory.New(), nil
	}
	backend, err := openPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := backend.Migrate(ctx); err != nil {
		backend.Close()
		return nil, err
	}
	return backend, nil
}

func serve(ctx context.Context, cfg config.Config) error {
	gin.SetMode(cfg.GinMode)

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}

	var redisConnection *redis.Client
	if cfg.RedisEnabled() {
		redisConnection = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := redisConnection.Ping(ctx).Err(); err != nil {
			log.Warnf("Redis unreachable at %s, caches will miss: %v", cfg.RedisAddr(), err)
		}
		defer redisConnection.Close()
	}

	manager := storage.NewManager(backend, redisConnection, storageOptions(cfg))
	defer manager.Close()

	registry := presence.NewRegistry()
	hub := presence.NewHub(registry, cfg.SessionBufferSize)
	dispatcher := notifications.NewDispatcher(manager, registry, cfg.LivePublishTimeout)

	s := server.NewServer(
		graph.NewGraph(manager, dispatcher),
		engagement.NewLedger(manager, dispatcher),
		dispatcher,
		feeds.NewAssembler(manager),
		registry,
		hub,
		cfg.JWTSecret,
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return s.Run(ctx, cfg.Port)
	})
	group.Go(func() error {
		utils.Recoverer(3, "reconciler", func() {
			tasks.ReconcileUnreadCounters(ctx, manager, cfg.ReconcileInterval)
		})
		return nil
	})
	return group.Wait()
}
