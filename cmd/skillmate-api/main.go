package main

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/config"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/database"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/server"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/sessions"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/store"
	"github.com/MarcoPoloResearchLab/skillmate/backend/internal/users"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "skillmate-api",
		Short: "SkillMate learning notes backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
		SilenceUsage: true,
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.StringVar(&envFile, "env-file", ".env", "Optional dotenv file loaded before reading the environment")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("store-driver", defaults.GetString("store.driver"), "Data store driver (memory, sqlite)")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite DSN for the sqlite store driver")
	flags.String("google-client-id", defaults.GetString("google.client_id"), "Google OAuth client ID enabling ID-token sign-in")
	flags.Bool("session-secure", defaults.GetBool("session.secure"), "Mark the session cookie Secure")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "store.driver", "store-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "google.client_id", "google-client-id")
	bindFlag(cmd, "session.secure", "session-secure")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		// A missing dotenv file is fine; the environment is used as-is.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
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

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	dataStore, closeStore, err := openStore(appConfig, logger)
	if err != nil {
		return err
	}
	defer closeStore.Close()

	sessionManager, err := sessions.NewManager(sessions.ManagerConfig{
		Store:      sessions.NewMemory(sessions.MemoryConfig{TTL: appConfig.SessionTTL}),
		CookieName: appConfig.SessionCookieName,
		TTL:        appConfig.SessionTTL,
		Secure:     appConfig.SessionSecure,
	})
	if err != nil {
		return err
	}

	var googleVerifier users.GoogleVerifier
	if appConfig.GoogleTokenSignInEnabled() {
		verifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
			ClientID: appConfig.GoogleClientID,
			JWKSURL:  appConfig.GoogleJWKSURL,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		googleVerifier = verifier
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Store:          dataStore,
		Hasher:         auth.NewPasswordHasher(appConfig.BcryptCost),
		GoogleVerifier: googleVerifier,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	hub := realtime.NewHub(realtime.HubConfig{
		BufferSize: appConfig.RealtimeBufferSize,
		Logger:     logger,
	})
	defer hub.Close()

	notesService, err := notes.NewService(notes.ServiceConfig{
		Store:     dataStore,
		Publisher: hub,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:    usersService,
		Notes:    notesService,
		Sessions: sessionManager,
		Realtime: realtime.NewHandler(hub, realtime.HandlerConfig{
			CheckOrigin: server.NewOriginChecker(appConfig.AllowedOrigins),
		}),
		AllowedOrigins: appConfig.AllowedOrigins,
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
	// Hijacked websocket connections are not tracked by Shutdown.
	httpServer.RegisterOnShutdown(hub.Close)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("store_driver", appConfig.StoreDriver),
			zap.Bool("google_token_sign_in", usersService.GoogleTokenSignInEnabled()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore selects the data store driver. The returned closer releases the
// SQL handle when one was opened.
func openStore(appConfig config.AppConfig, logger *zap.Logger) (store.Store, io.Closer, error) {
	if appConfig.StoreDriver != config.StoreDriverSQLite {
		return store.NewMemory(nil), nopCloser{}, nil
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	sqlStore, err := store.NewSQL(store.SQLConfig{Database: db})
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return sqlStore, sqlDB, nil
}
