// Package server wires the wallet's HTTP API: a local surface meant for a UI
// shell on the same machine, never for the open internet.
package server

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/openwalletlab/wallet-core/config"
	"github.com/openwalletlab/wallet-core/internal/util"
	"github.com/openwalletlab/wallet-core/pkg/server/router"
	"github.com/openwalletlab/wallet-core/pkg/service/credential"
	"github.com/openwalletlab/wallet-core/pkg/service/framework"
	"github.com/openwalletlab/wallet-core/pkg/service/keystore"
	"github.com/openwalletlab/wallet-core/pkg/wallet"
)

const (
	HealthPrefix      = "/health"
	ReadinessPrefix   = "/readiness"
	V1Prefix          = "/v1"
	ViewPrefix        = "/view"
	EventsPrefix      = "/events"
	CredentialsPrefix = "/credentials"
)

// WalletServer exposes the engine and credential store over HTTP.
type WalletServer struct {
	*http.Server
	shutdown chan os.Signal
}

// NewWalletServer registers all HTTP bindings against a fresh gin engine.
func NewWalletServer(cfg config.AgentConfig, engine *wallet.Engine, keys *keystore.Service, credentials *credential.Service, views *wallet.ViewCache, shutdown chan os.Signal) (*WalletServer, error) {
	handler := setUpEngine()

	handler.GET(HealthPrefix, router.Health)
	handler.GET(ReadinessPrefix, router.Readiness([]framework.Service{keys, credentials}))

	v1 := handler.Group(V1Prefix)
	if err := WalletAPI(v1, engine, views); err != nil {
		return nil, util.LoggingErrorMsg(err, "unable to instantiate wallet API")
	}
	if err := CredentialAPI(v1, credentials); err != nil {
		return nil, util.LoggingErrorMsg(err, "unable to instantiate credential API")
	}

	return &WalletServer{
		Server: &http.Server{
			Addr:              cfg.APIHost,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
		shutdown: shutdown,
	}, nil
}

func setUpEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		requestLogger(logrus.StandardLogger()),
		cors.New(cors.Config{
			AllowOrigins: []string{"*"},
			AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       12 * time.Hour,
		}),
	)
	return engine
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("handled request")
	}
}

// WalletAPI registers the view and event endpoints.
func WalletAPI(rg *gin.RouterGroup, engine *wallet.Engine, views *wallet.ViewCache) error {
	walletRouter, err := router.NewWalletRouter(engine, views)
	if err != nil {
		return util.LoggingErrorMsg(err, "creating wallet router")
	}

	rg.GET(ViewPrefix, walletRouter.GetView)

	eventsAPI := rg.Group(EventsPrefix)
	eventsAPI.POST("/offer", walletRouter.SubmitOffer)
	eventsAPI.POST("/request", walletRouter.SubmitRequest)
	eventsAPI.POST("/tx-code", walletRouter.SubmitTxCode)
	eventsAPI.POST("/selection", walletRouter.SubmitSelection)
	eventsAPI.POST("/cancel", walletRouter.Cancel)
	eventsAPI.POST("/ready", walletRouter.Ready)
	return nil
}

// CredentialAPI registers the stored-credential browse endpoints.
func CredentialAPI(rg *gin.RouterGroup, service *credential.Service) error {
	credRouter, err := router.NewCredentialRouter(service)
	if err != nil {
		return util.LoggingErrorMsg(err, "creating credential router")
	}

	credentialAPI := rg.Group(CredentialsPrefix)
	credentialAPI.GET("", credRouter.ListCredentials)
	credentialAPI.GET("/:id", credRouter.GetCredential)
	credentialAPI.DELETE("/:id", credRouter.DeleteCredential)
	return nil
}
