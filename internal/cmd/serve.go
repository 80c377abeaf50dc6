package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nijenhuis/api-guard/internal/config"
	"github.com/nijenhuis/api-guard/internal/logger"
	"github.com/nijenhuis/api-guard/internal/models"
	"github.com/nijenhuis/api-guard/internal/monitor"
	"github.com/nijenhuis/api-guard/internal/security"
	"github.com/nijenhuis/api-guard/internal/server"
	"github.com/nijenhuis/api-guard/internal/storage"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API guard server",
	Long:  `Start the security middleware server with the background connection monitor`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 8046, "server port")
	serveCmd.Flags().String("mode", "release", "server mode (debug/release/test)")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("server.mode", serveCmd.Flags().Lookup("mode"))
}

// echoResponder stands in for the external chatbot backend. It keeps the
// server runnable on its own; deployments inject the real responder.
type echoResponder struct{}

func (echoResponder) Respond(ctx context.Context, message, language string) (string, error) {
	return message, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, logBuffer, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	if err := initDirectories(cfg); err != nil {
		log.Error("Failed to initialize directories", zap.Error(err))
		return err
	}

	log.Info("Starting API guard",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	secret, err := storage.LoadOrCreateSecret(cfg.Storage.SecretFile)
	if err != nil {
		return fmt.Errorf("failed to load signing secret: %w", err)
	}

	keys := storage.NewKeyStore(cfg.Storage.KeysDir, log)
	bootstrapDefaultKey(keys, log)

	sec := security.NewManager(cfg.Security, keys, secret, log)

	mon := monitor.New(cfg.Monitor, log)
	if cfg.Monitor.Enabled == nil || *cfg.Monitor.Enabled {
		mon.Start()
		defer mon.Stop()
	}

	srv := server.New(cfg, log, logBuffer, sec, mon, echoResponder{})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("Server started", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-stop
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return err
	}

	log.Info("Server stopped gracefully")
	return nil
}

// bootstrapDefaultKey creates a development key on a fresh install so the
// API is usable before an operator generates real keys. The plaintext is
// printed exactly once.
func bootstrapDefaultKey(keys *storage.KeyStore, log *zap.Logger) {
	if keys.Count() > 0 {
		return
	}

	key, err := keys.Create("default_development_key",
		[]models.Permission{models.PermissionChat, models.PermissionHealth, models.PermissionConfig}, nil)
	if err != nil {
		log.Warn("Failed to create default development key", zap.Error(err))
		return
	}

	fmt.Printf("\n🔑 Generated default development API key: %s\n", key.Key)
	fmt.Println("   ⚠️  Store it now; it cannot be displayed again.")
	log.Info("Default development key created")
}

func initDirectories(cfg *config.Config) error {
	dirs := []string{
		cfg.Storage.DataDir,
		cfg.Storage.KeysDir,
		cfg.Storage.LogsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
