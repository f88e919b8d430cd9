// Package app wires configuration, storage and AWS clients into the handlers
// used by every Lambda and the local server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	"github.com/mindmend/backend/internal/account"
	"github.com/mindmend/backend/internal/auth"
	"github.com/mindmend/backend/internal/config"
	"github.com/mindmend/backend/internal/contact"
	"github.com/mindmend/backend/internal/db"
	"github.com/mindmend/backend/internal/encryption"
	"github.com/mindmend/backend/internal/handlers"
	"github.com/mindmend/backend/internal/idempotency"
	"github.com/mindmend/backend/internal/logging"
	"github.com/mindmend/backend/internal/mail"
	"github.com/mindmend/backend/internal/media"
	"github.com/mindmend/backend/internal/scores"
	"github.com/mindmend/backend/internal/subscription"
	"github.com/mindmend/backend/internal/tokenstore"
)

type App struct {
	Config  config.Config
	Log     *logging.Logger
	DB      *sql.DB
	Handler *handlers.Handler
}

// Build loads the environment, connects to Postgres and AWS and returns a
// ready App. service names the process in log lines.
func Build(ctx context.Context, service string) (*App, error) {
	config.LoadDotenv()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(service, cfg.LogLevel, cfg.LogFormat)

	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.Migrate(conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	h := Wire(cfg, log, conn, awsCfg)
	log.WithContext(ctx).Info("application initialised")
	return &App{Config: cfg, Log: log, DB: conn, Handler: h}, nil
}

// Wire builds the services over conn and clients made from awsCfg. It does
// no I/O.
func Wire(cfg config.Config, log *logging.Logger, conn *sql.DB, awsCfg aws.Config) *handlers.Handler {
	dynamo := dynamodb.NewFromConfig(awsCfg)

	subs := subscription.NewService(subscription.NewPostgresStore(conn))

	accounts := account.NewService(account.Deps{
		Users:         account.NewPostgresStore(conn),
		Tokens:        auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		Revoked:       tokenstore.NewBlacklist(dynamo, cfg.TokenBlacklistTable),
		Subscriptions: subs,
		Mailer:        mail.NewSESMailer(sesv2.NewFromConfig(awsCfg), cfg.MailFrom),
		Images:        media.NewProfileImages(s3.NewFromConfig(awsCfg), cfg.MediaBucket, cfg.MediaBaseURL),
		ResetBaseURL:  cfg.ResetBaseURL,
	})

	var sealer contact.Sealer
	if cfg.KMSKeyID != "" {
		sealer = encryption.NewKMSSealer(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)
	} else {
		log.Warn("KMS_KEY_ID not set; contact messages are stored unencrypted")
	}

	var idem handlers.Idempotency
	if cfg.IdempotencyTable != "" {
		idem = idempotency.NewService(dynamo, cfg.IdempotencyTable).WithLogger(log)
	}

	return handlers.New(handlers.Deps{
		Accounts:      accounts,
		Scores:        scores.NewService(scores.NewPostgresStore(conn)),
		Subscriptions: subs,
		Contacts:      contact.NewService(contact.NewPostgresStore(conn), sealer),
		Idempotency:   idem,
		Log:           log,
	})
}

// MustBuild is Build for Lambda init functions. It exits on failure.
func MustBuild(service string) *App {
	a, err := Build(context.Background(), service)
	if err != nil {
		fmt.Printf("Error initializing %s: %v\n", service, err)
		os.Exit(1)
	}
	return a
}
