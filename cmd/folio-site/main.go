package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/folio/internal/auth"
	"github.com/MarcoPoloResearchLab/folio/internal/cache"
	"github.com/MarcoPoloResearchLab/folio/internal/config"
	"github.com/MarcoPoloResearchLab/folio/internal/content"
	"github.com/MarcoPoloResearchLab/folio/internal/database"
	"github.com/MarcoPoloResearchLab/folio/internal/listing"
	"github.com/MarcoPoloResearchLab/folio/internal/logging"
	"github.com/MarcoPoloResearchLab/folio/internal/server"
	"github.com/MarcoPoloResearchLab/folio/internal/users"
	"github.com/MarcoPoloResearchLab/folio/internal/views"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "folio-site",
		Short: "Folio content site",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional dotenv file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("base-url", defaults.GetString("site.base_url"), "Public base URL used in links and responses")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("templates", defaults.GetString("templates.glob"), "Glob matching page templates")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for the hot list cache (empty uses memory)")
	cmd.PersistentFlags().Int("hotlist-cache-ttl-seconds", defaults.GetInt("hotlist.cache_ttl_seconds"), "Hot list cache TTL in seconds (0 disables)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "site.base_url", "base-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "templates.glob", "templates")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "hotlist.cache_ttl_seconds", "hotlist-cache-ttl-seconds")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}
	resolver, err := auth.NewResolver(auth.ResolverConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	contentService, err := content.NewService(content.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	viewCounter, err := views.NewCounter(views.CounterConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	hotListCache, closeCache := newHotListCache(ctx, appConfig, logger)
	defer closeCache()

	aggregator, err := listing.NewAggregator(listing.Config{
		Database:   db,
		Users:      userService,
		Content:    contentService,
		Views:      viewCounter,
		Cache:      hotListCache,
		HotListTTL: appConfig.HotListCacheTTL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	renderer, err := server.NewTemplateRenderer(appConfig.TemplatesGlob)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Resolver:       resolver,
		Tokens:         tokenIssuer,
		Accounts:       userService,
		Content:        contentService,
		Views:          viewCounter,
		Listings:       aggregator,
		Renderer:       renderer,
		BaseURL:        appConfig.BaseURL,
		AllowedOrigins: appConfig.AllowedOrigins,
		SecureCookies:  appConfig.SecureCookies,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// newHotListCache picks Redis when configured and reachable, memory otherwise. A zero
// TTL disables caching entirely.
func newHotListCache(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (cache.Cache, func()) {
	if appConfig.HotListCacheTTL <= 0 {
		return nil, func() {}
	}
	if appConfig.RedisAddress == "" {
		return cache.NewMemoryCache(nil), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	selected := cache.New(pingCtx, client)
	if _, ok := selected.(*cache.RedisCache); !ok {
		logger.Warn("redis unreachable, using in-memory hot list cache", zap.String("address", appConfig.RedisAddress))
		_ = client.Close()
		return selected, func() {}
	}
	return selected, func() { _ = client.Close() }
}
