// cmd/statement/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"statement-service/internal/api/handlers"
	"statement-service/internal/api/responses"
	"statement-service/internal/config"
	"statement-service/internal/core/ingest"
	"statement-service/internal/core/statement"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration: ", err)
	}
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	logger, err := responses.InitLogger(gin.Mode())
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer func() { _ = logger.Sync() }()

	tables := statement.DefaultTables()
	if cfg.AliasFile != "" {
		tables, err = statement.LoadTablesFile(cfg.AliasFile)
		if err != nil {
			logger.Fatal("failed to load alias tables", zap.String("file", cfg.AliasFile), zap.Error(err))
		}
		logger.Info("alias tables loaded", zap.String("file", cfg.AliasFile))
	}

	statementService := statement.NewService(statement.Options{
		Currency: cfg.Currency,
		Tables:   tables,
		Logger:   logger.Named("statement"),
	})

	var db ingest.Querier
	if cfg.IngestEnabled() {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to create database pool", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable at startup", zap.Error(err))
		}
		db = pool
	} else {
		logger.Warn("DATABASE_URL not set, commit endpoint disabled")
	}

	ingestService, err := ingest.NewService(db, cfg.IngestProc, logger.Named("ingest"))
	if err != nil {
		logger.Fatal("invalid ingestion settings", zap.Error(err))
	}

	statementHandler := handlers.NewStatementHandler(statementService, ingestService, cfg.MaxUploadBytes, logger)

	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxUploadBytes

	statementHandler.Register(router.Group("/api/v1"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "UP",
			"service": "statement-service",
			"ingest":  cfg.IngestEnabled(),
		})
	})

	logger.Info("statement service listening", zap.String("port", cfg.Port), zap.String("currency", cfg.Currency))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("failed to start statement server", zap.Error(err))
	}
}
