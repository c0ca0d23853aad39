package server

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Staking-Facilities-GmbH/tidal/internal/catalog"
	"github.com/Staking-Facilities-GmbH/tidal/internal/client/keyserver"
	"github.com/Staking-Facilities-GmbH/tidal/internal/client/walrus"
	"github.com/Staking-Facilities-GmbH/tidal/internal/handlers"
	"github.com/Staking-Facilities-GmbH/tidal/internal/ledger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/logger"
	"github.com/Staking-Facilities-GmbH/tidal/internal/seal"
	"github.com/Staking-Facilities-GmbH/tidal/internal/services"
	"github.com/Staking-Facilities-GmbH/tidal/internal/session"
)

// Handler Definitions
var (
	assetHandler    *handlers.AssetHandler
	purchaseHandler *handlers.PurchaseHandler
	downloadHandler *handlers.DownloadHandler

	store *catalog.PostgresStore
)

func InitializeHandlers() {
	logger.InitLogger()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		logger.Fatal("Unable to parse database connection string", zap.Error(err))
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	connPool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		logger.Fatal("Unable to create connection pool", zap.Error(err))
	}

	store = catalog.NewPostgresStore(connPool)
	if err := store.EnsureSchema(context.Background()); err != nil {
		logger.Fatal("Unable to ensure catalog schema", zap.Error(err))
	}

	gatewayURL := os.Getenv("LEDGER_GATEWAY_URL")
	if gatewayURL == "" {
		logger.Fatal("LEDGER_GATEWAY_URL environment variable is required")
	}
	ledgerClient := ledger.NewGatewayClient(gatewayURL)

	pkgHex := os.Getenv("TIDAL_PACKAGE_ID")
	if pkgHex == "" {
		logger.Fatal("TIDAL_PACKAGE_ID environment variable is required")
	}
	pkg, err := ledger.ParseObjectID(pkgHex)
	if err != nil {
		logger.Fatal("TIDAL_PACKAGE_ID is not a valid object id", zap.Error(err))
	}

	servers, err := parseKeyServers(os.Getenv("KEY_SERVERS"))
	if err != nil {
		logger.Fatal("Unable to configure key servers", zap.Error(err))
	}
	sealClient, err := seal.New(servers, logger.With(zap.String("component", "seal")))
	if err != nil {
		logger.Fatal("Unable to create seal client", zap.Error(err))
	}

	publisherURL := os.Getenv("WALRUS_PUBLISHER_URL")
	aggregatorURL := os.Getenv("WALRUS_AGGREGATOR_URL")
	if publisherURL == "" || aggregatorURL == "" {
		logger.Fatal("WALRUS_PUBLISHER_URL and WALRUS_AGGREGATOR_URL environment variables are required")
	}
	blobClient := walrus.NewClient(publisherURL, aggregatorURL)

	operatorKeyHex := os.Getenv("OPERATOR_KEY")
	if operatorKeyHex == "" {
		logger.Fatal("OPERATOR_KEY environment variable is required")
	}
	operatorKey, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
	if err != nil {
		logger.Fatal("OPERATOR_KEY is not a valid private key", zap.Error(err))
	}
	sessions := session.NewManager(
		session.NewLocalSigner(operatorKey),
		pkg,
		session.DefaultTTLMinutes,
		logger.With(zap.String("component", "session")),
	)

	reader := ledger.NewReader(ledgerClient, logger.With(zap.String("component", "ledger")))

	publishService := services.NewPublishService(
		ledgerClient, reader, sealClient, blobClient, store, pkg,
		logger.With(zap.String("service", "publish")))
	purchaseService := services.NewPurchaseService(
		ledgerClient, store, pkg,
		logger.With(zap.String("service", "purchase")))
	downloadService := services.NewDownloadService(
		store, blobClient, sealClient, sessions, pkg,
		logger.With(zap.String("service", "download")))

	commonServices := handlers.NewCommonServices(store, publishService, purchaseService, downloadService)

	assetHandler = handlers.NewAssetHandler(commonServices)
	purchaseHandler = handlers.NewPurchaseHandler(commonServices)
	downloadHandler = handlers.NewDownloadHandler(commonServices)
}

// parseKeyServers parses the KEY_SERVERS environment variable: a comma
// separated list of "id|base_url|public_key_hex" entries.
func parseKeyServers(raw string) ([]seal.KeyServer, error) {
	if raw == "" {
		return nil, errors.New("KEY_SERVERS environment variable is required")
	}
	var servers []seal.KeyServer
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), "|")
		if len(parts) != 3 {
			return nil, errors.Errorf("malformed KEY_SERVERS entry %q, expected \"id|url|public_key_hex\"", entry)
		}
		srv, err := keyserver.New(parts[0], parts[1], parts[2])
		if err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, nil
}

func InitializeRoutes(router *gin.Engine) {
	router.Use(configureCORS())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		assets := v1.Group("/assets")
		{
			assets.GET("", assetHandler.ListAssets)
			assets.POST("", assetHandler.PublishAsset)
			assets.GET("/:asset_id", assetHandler.GetAsset)
			assets.PUT("/:asset_id/preview", assetHandler.AttachPreview)

			assets.POST("/:asset_id/purchases", purchaseHandler.CreatePurchase)
			assets.GET("/:asset_id/purchases/:address", purchaseHandler.GetPurchaseStatus)

			assets.GET("/:asset_id/download", downloadHandler.DownloadAsset)
		}

		v1.GET("/purchases", purchaseHandler.ListPurchases)
	}
}

func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		origins := strings.Split(originsEnv, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}

	return cors.New(corsConfig)
}
