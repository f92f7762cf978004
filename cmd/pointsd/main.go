package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/quartermasterhq/pointstore/internal/httpapi"
	"github.com/quartermasterhq/pointstore/internal/orders"
	"github.com/quartermasterhq/pointstore/internal/store/gormstore"
	"github.com/quartermasterhq/pointstore/internal/vouchers"
	"github.com/quartermasterhq/pointstore/pkg/inventory"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

const (
	flagDatabaseURL  = "database-url"
	flagListenAddr   = "listen-addr"
	flagSigningKey   = "jwt-signing-key"
	flagOrigins      = "allowed-origins"
	configKeyDBURL   = "database_url"
	configKeyListen  = "listen_addr"
	configKeySignKey = "jwt_signing_key"
	configKeyOrigins = "allowed_origins"

	defaultDatabaseURL = "sqlite:///tmp/pointstore.db"
	defaultListenAddr  = ":8080"

	shutdownTimeout = 10 * time.Second
)

type runtimeConfig struct {
	DatabaseURL    string
	ListenAddr     string
	SigningKey     string
	AllowedOrigins []string
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pointsd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "pointsd",
		Short:         "Clothing entitlement point store HTTP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg)
		},
	}

	cmd.Flags().String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	cmd.Flags().String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	cmd.Flags().String(flagSigningKey, "", "HMAC key for bearer token verification")
	cmd.Flags().StringSlice(flagOrigins, nil, "CORS allowed origins")

	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	envBindings := map[string]string{
		configKeyDBURL:   "DATABASE_URL",
		configKeyListen:  "LISTEN_ADDR",
		configKeySignKey: "JWT_SIGNING_KEY",
		configKeyOrigins: "ALLOWED_ORIGINS",
	}
	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}

	flagBindings := map[string]string{
		configKeyDBURL:   flagDatabaseURL,
		configKeyListen:  flagListenAddr,
		configKeySignKey: flagSigningKey,
		configKeyOrigins: flagOrigins,
	}
	for key, flag := range flagBindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = viper.GetString(configKeyDBURL)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.ListenAddr = viper.GetString(configKeyListen)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	cfg.SigningKey = viper.GetString(configKeySignKey)
	if cfg.SigningKey == "" {
		return fmt.Errorf("jwt signing key is required")
	}
	cfg.AllowedOrigins = viper.GetStringSlice(configKeyOrigins)
	return nil
}

func runServer(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	gormDB, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer cleanup()

	if err := prepareSchema(gormDB, driver); err != nil {
		return err
	}

	store := gormstore.New(gormDB)
	txRunner := gormstore.NewTxRunner(gormDB)
	clock := func() int64 { return time.Now().UTC().Unix() }

	pointService, err := points.NewService(store, txRunner, clock,
		points.WithOperationLogger(pointOperationLogger{logger: logger}))
	if err != nil {
		return fmt.Errorf("point service init: %w", err)
	}
	stockService, err := inventory.NewService(store, txRunner, clock,
		inventory.WithOperationLogger(stockOperationLogger{logger: logger}))
	if err != nil {
		return fmt.Errorf("stock service init: %w", err)
	}
	orderService, err := orders.NewService(store, pointService, stockService, store, txRunner, time.Now,
		orders.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("order service init: %w", err)
	}
	voucherService, err := vouchers.NewService(store, pointService, store, txRunner, time.Now,
		vouchers.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("voucher service init: %w", err)
	}

	apiServer := httpapi.NewServer(logger, httpapi.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		SigningKey:     cfg.SigningKey,
	}, pointService, stockService, orderService, voucherService)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: apiServer.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server starting", zap.String("listen_addr", cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	case serveErr := <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return serveErr
	}
}

// pointOperationLogger forwards ledger operation callbacks to zap.
type pointOperationLogger struct {
	logger *zap.Logger
}

func (adapter pointOperationLogger) LogOperation(ctx context.Context, entry points.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.Uint("user_id", entry.UserID),
		zap.Int64("amount", entry.Amount.Int64()),
		zap.String("status", entry.Status),
	}
	if entry.OrderID != nil {
		fields = append(fields, zap.Uint("order_id", *entry.OrderID))
	}
	if entry.VoucherID != nil {
		fields = append(fields, zap.Uint("voucher_id", *entry.VoucherID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("point operation failed", fields...)
		return
	}
	adapter.logger.Info("point operation", fields...)
}

// stockOperationLogger forwards stock operation callbacks to zap.
type stockOperationLogger struct {
	logger *zap.Logger
}

func (adapter stockOperationLogger) LogOperation(ctx context.Context, entry inventory.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.Uint("warehouse_id", entry.Key.WarehouseID),
		zap.Uint("item_id", entry.Key.ItemID),
		zap.Int("quantity", entry.Quantity),
		zap.Uint("actor_id", entry.ActorID),
		zap.String("status", entry.Status),
	}
	if entry.Key.VariantID != nil {
		fields = append(fields, zap.Uint("variant_id", *entry.Key.VariantID))
	}
	if entry.OrderID != nil {
		fields = append(fields, zap.Uint("order_id", *entry.OrderID))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("stock operation failed", fields...)
		return
	}
	adapter.logger.Info("stock operation", fields...)
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, string, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, "", err
	}

	gormConfig := &gorm.Config{TranslateError: true}
	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	default:
		return nil, nil, "", fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, "", err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, "", err
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, driver, nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = u.Host
		}
		if path == "" || path == "/" {
			path = "pointstore.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	abs := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", err
	}
	return abs, nil
}

func prepareSchema(db *gorm.DB, driver string) error {
	if driver != "sqlite" {
		return nil
	}
	if err := gormstore.AutoMigrate(db); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
