package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"portfolio-backend/internal/admins"
	"portfolio-backend/internal/auth"
	"portfolio-backend/internal/comments"
	"portfolio-backend/internal/config"
	"portfolio-backend/internal/contact"
	"portfolio-backend/internal/content"
	"portfolio-backend/internal/database"
	"portfolio-backend/internal/events"
	"portfolio-backend/internal/guestbook"
	"portfolio-backend/internal/ids"
	"portfolio-backend/internal/likes"
	"portfolio-backend/internal/localstate"
	"portfolio-backend/internal/logging"
	"portfolio-backend/internal/server"
	"portfolio-backend/internal/users"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "portfolio-api",
		Short: "Portfolio and blog backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newAdminCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("google-client-id", defaults.GetString("google.client_id"), "Google OAuth client ID")
	cmd.PersistentFlags().String("google-jwks-url", defaults.GetString("google.jwks_url"), "Google JWKS URL")
	cmd.PersistentFlags().String("github-api-url", defaults.GetString("github.api_url"), "GitHub API base URL")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("amqp-url", defaults.GetString("amqp.url"), "RabbitMQ URL for the change-event mirror (optional)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "google.client_id", "google-client-id")
	bindFlag(cmd, "google.jwks_url", "google-jwks-url")
	bindFlag(cmd, "github.api_url", "github-api-url")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "amqp.url", "amqp-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	_ = godotenv.Load()

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

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	stateStore, err := localstate.Open(appConfig.LocalStatePath)
	if err != nil {
		return err
	}
	instanceID, err := localstate.Fingerprint(stateStore)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("instance", instanceID))

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	sessionIssuer := auth.NewSessionIssuer(auth.SessionIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningKey),
		Issuer:        "portfolio-auth",
		Audience:      "portfolio-api",
		TokenTTL:      appConfig.SessionTTL,
	})

	googleVerifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
		Audience: appConfig.GoogleClientID,
		JWKSURL:  appConfig.GoogleJWKSURL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	githubVerifier, err := auth.NewGitHubVerifier(auth.GitHubVerifierConfig{
		APIBaseURL: appConfig.GitHubAPIURL,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	dispatcher := events.NewDispatcher()
	var publisher events.Publisher = dispatcher
	if appConfig.AMQPURL != "" {
		mirror, err := events.NewAMQPPublisher(events.AMQPConfig{
			URL:        appConfig.AMQPURL,
			Exchange:   appConfig.AMQPExchange,
			RoutingKey: appConfig.AMQPRoutingKey,
		}, logger)
		if err != nil {
			return err
		}
		defer mirror.Close() //nolint:errcheck
		publisher = events.NewFanout(dispatcher, mirror)
	}

	idProvider := ids.NewProvider()

	contentService, err := content.NewService(content.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	commentsService, err := comments.NewService(comments.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	likesService, err := likes.NewService(likes.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	guestbookService, err := guestbook.NewService(guestbook.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Publisher:  publisher,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	adminsService, err := admins.NewService(admins.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	var relay *contact.Relay
	if appConfig.Web3FormsAccessKey != "" {
		relay, err = contact.NewRelay(contact.RelayConfig{
			EndpointURL: appConfig.Web3FormsURL,
			AccessKey:   appConfig.Web3FormsAccessKey,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		GoogleVerifier:   googleVerifier,
		GitHubVerifier:   githubVerifier,
		Sessions:         sessionIssuer,
		ContentService:   contentService,
		CommentsService:  commentsService,
		LikesService:     likesService,
		GuestbookService: guestbookService,
		AdminsService:    adminsService,
		UsersService:     usersService,
		ContactRelay:     relay,
		Dispatcher:       dispatcher,
		AllowedOrigin:    appConfig.AllowedOrigin,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
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

// newAdminCommand manages the allow-list from the command line, which is how
// the first admin gets seeded.
func newAdminCommand() *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the admin allow-list",
	}

	adminCmd.AddCommand(&cobra.Command{
		Use:   "grant <email>",
		Short: "Add an email to the allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := openAdminsService()
			if err != nil {
				return err
			}
			defer cleanup()
			return service.Grant(cmd.Context(), args[0])
		},
	})

	adminCmd.AddCommand(&cobra.Command{
		Use:   "revoke <email>",
		Short: "Remove an email from the allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, cleanup, err := openAdminsService()
			if err != nil {
				return err
			}
			defer cleanup()
			return service.Revoke(cmd.Context(), args[0])
		},
	})

	return adminCmd
}

func openAdminsService() (*admins.Service, func(), error) {
	logger, err := logging.NewLogger(viper.GetString("log.level"))
	if err != nil {
		return nil, nil, err
	}

	db, err := database.OpenSQLite(viper.GetString("database.path"), logger)
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	service, err := admins.NewService(admins.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		sqlDB.Close()
		return nil, nil, err
	}

	cleanup := func() {
		sqlDB.Close()
		logger.Sync() //nolint:errcheck
	}
	return service, cleanup, nil
}
