package main

import (
	"context"
	"expvar"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ardanlabs/conf"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/openwalletlab/wallet-core/config"
	"github.com/openwalletlab/wallet-core/pkg/server"
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
	"github.com/openwalletlab/wallet-core/pkg/service/keystore"
	"github.com/openwalletlab/wallet-core/pkg/storage"
	"github.com/openwalletlab/wallet-core/pkg/transport"
	"github.com/openwalletlab/wallet-core/pkg/wallet"
)

// ConfigPathEnvVar points at an alternative TOML config file.
const ConfigPathEnvVar = "WALLETCORE_CONFIG_PATH"

func main() {
	logrus.Info("Starting up...")

	if err := run(); err != nil {
		logrus.Fatalf("main: error: %s", err.Error())
	}
}

// startup and shutdown logic
func run() error {
	// a .env file is optional; process env wins either way
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, continuing with process env")
	}

	configPath := config.DefaultConfigPath
	if envConfigPath, present := os.LookupEnv(ConfigPathEnvVar); present {
		logrus.Infof("loading config from env var path: %s", envConfigPath)
		configPath = envConfigPath
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logrus.Fatalf("could not instantiate config: %s", err.Error())
	}
	if cfg == nil {
		// help or version was requested and printed
		return nil
	}

	if logFile := configureLogger(cfg.Agent.LogLevel, cfg.Agent.LogLocation); logFile != nil {
		defer func(logFile *os.File) {
			if err = logFile.Close(); err != nil {
				logrus.WithError(err).Error("failed to close log file")
			}
		}(logFile)
	}

	expvar.NewString("build").Set(cfg.Version.SVN)

	out, err := conf.String(cfg)
	if err != nil {
		return errors.Wrap(err, "serializing config")
	}
	logrus.Infof("main: Config: \n%v\n", out)

	db, err := storage.NewStorage(storage.Type(cfg.Services.StorageProvider), storage.Option{
		FilePath: cfg.Services.StorageOption.FilePath,
		Address:  cfg.Services.StorageOption.Address,
		Password: cfg.Services.StorageOption.Password,
	})
	if err != nil {
		return errors.Wrap(err, "instantiating storage")
	}
	defer func() {
		if err = db.Close(); err != nil {
			logrus.WithError(err).Error("failed to close storage")
		}
	}()

	keyStore, err := keystore.NewKeyStoreService(cfg.Services.KeyStoreConfig, db)
	if err != nil {
		return errors.Wrap(err, "instantiating keystore service")
	}
	credentialService, err := credential.NewCredentialService(db)
	if err != nil {
		return errors.Wrap(err, "instantiating credential service")
	}

	network := transport.NewHTTPClient(transport.WithMaxAttempts(cfg.Services.WalletConfig.NetworkRetries))
	views := wallet.NewViewCache()
	engine, err := wallet.NewEngine(cfg.Services.WalletConfig, network, keyStore, credentialService, views)
	if err != nil {
		return errors.Wrap(err, "instantiating wallet engine")
	}
	defer engine.Shutdown()

	// a channel of buffer size 1 to handle shutdown; the buffer ignores any
	// additional ctrl+c spamming
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	walletServer, err := server.NewWalletServer(cfg.Agent, engine, keyStore, credentialService, views, shutdown)
	if err != nil {
		return errors.Wrap(err, "instantiating http server")
	}

	serverErrors := make(chan error, 1)
	go func() {
		logrus.Infof("main: server started and listening on -> %s", walletServer.Addr)
		serverErrors <- walletServer.ListenAndServe()
	}()

	select {
	case err = <-serverErrors:
		return errors.Wrap(err, "server error")
	case sig := <-shutdown:
		logrus.Infof("main: shutdown signal received -> %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Agent.ShutdownTimeout)
		defer cancel()

		if err = walletServer.Shutdown(ctx); err != nil {
			logrus.WithError(err).Error("main: failed to stop server gracefully, forcing shutdown")
			if err = walletServer.Close(); err != nil {
				logrus.WithError(err).Error("main: failed to close server")
			}
		}
	}

	return nil
}

// configureLogger configures the logger to log to the given location and
// returns a file pointer to a logs file that should be closed upon shutdown
func configureLogger(level, location string) *os.File {
	if level != "" {
		logLevel, err := logrus.ParseLevel(level)
		if err != nil {
			logrus.WithError(err).Errorf("could not parse log level<%s>, setting to info", level)
			logrus.SetLevel(logrus.InfoLevel)
		} else {
			logrus.SetLevel(logLevel)
		}
	}

	logrus.SetFormatter(&logrus.JSONFormatter{
		DisableTimestamp: false,
		PrettyPrint:      true,
	})
	logrus.SetReportCaller(true)

	logrus.SetOutput(os.Stdout)
	if location != "" {
		now := time.Now()
		logFile := location + "/" + config.ServiceName + "-" + now.Format(time.DateOnly) + "-" + strconv.FormatInt(now.Unix(), 10) + ".log"
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			logrus.WithError(err).Warn("failed to create logs file, using default stdout")
		} else {
			mw := io.MultiWriter(os.Stdout, file)
			logrus.SetOutput(mw)
		}
		return file
	}
	return nil
}
