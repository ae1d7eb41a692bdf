// Command agentbroker runs the multi-project agent broker core and meeting
// coordinator: a single HTTP/WebSocket process wiring config, storage, the
// broker, auth, meetings, discussions, and the event bus together, grounded
// on cmd/tarsy/main.go's flag+godotenv+gin composition-root shape.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/codeready-toolchain/agentbroker/internal/auth"
	"github.com/codeready-toolchain/agentbroker/internal/broker"
	"github.com/codeready-toolchain/agentbroker/internal/chatlog"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/config"
	"github.com/codeready-toolchain/agentbroker/internal/dbsql"
	"github.com/codeready-toolchain/agentbroker/internal/events"
	"github.com/codeready-toolchain/agentbroker/internal/httpapi"
	"github.com/codeready-toolchain/agentbroker/internal/meeting"
	"github.com/codeready-toolchain/agentbroker/internal/project"
	"github.com/codeready-toolchain/agentbroker/internal/protocol"
	"github.com/codeready-toolchain/agentbroker/internal/store"
	"github.com/codeready-toolchain/agentbroker/internal/workerpool"
)

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "path to configuration directory")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(ctx, filepath.Join(*configDir, "broker.yaml"), filepath.Join(*configDir, ".env"))
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	dbCfg, err := parseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to parse database URL: %v", err)
	}

	db, err := dbsql.NewClient(ctx, dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to PostgreSQL", "database", dbCfg.Database)

	realClock := clock.Real{}

	projectRepo := project.NewPostgresRepo(db.DB())
	projectRegistry := project.NewRegistry(projectRepo, realClock)
	adminPolicy := project.NewAdminPolicy(projectRegistry, realClock, cfg.Defaults.PermissionCacheTTL)

	dataStore := store.NewPostgres(db.DB())
	protocolRegistry := protocol.NewRegistry(dataStore)

	thresholds := broker.Thresholds{
		QueueCapacity:       cfg.Defaults.QueueCapacity,
		StaleThreshold:      cfg.Defaults.StaleThreshold,
		DisconnectThreshold: cfg.Defaults.DisconnectThreshold,
	}
	sessionManager := broker.NewSessionManager(dataStore, thresholds, realClock)
	negotiator := broker.NewNegotiator()
	router := broker.NewRouter(sessionManager, negotiator, realClock)
	crossProjectRouter := broker.NewCrossProjectRouter(router, adminPolicy, realClock)

	hashPool := workerpool.New(4, 64)
	hashPool.Start(ctx)
	defer hashPool.Stop()

	tokenIssuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.Defaults.AccessTokenTTL, cfg.Defaults.RefreshTokenTTL, realClock)
	userRepo := auth.NewMemoryUserRepo()
	agentRepo := auth.NewMemoryAgentRepo()
	authService := auth.NewService(userRepo, agentRepo, tokenIssuer, auth.DefaultArgon2Params(), realClock)
	authService.SetHashPool(hashPool)

	meetingRepo := meeting.NewPostgresRepo(db.DB())
	meetingService := meeting.NewService(meetingRepo, realClock)

	chatRepo := chatlog.NewPostgresRepo(db.DB())
	chatService := chatlog.NewService(chatRepo, realClock)
	router.SetChatLog(chatService)

	hub := events.NewHub()
	publisher := events.NewPublisher(db.DB())
	hub.SetPublisher(publisher)

	listener := events.NewNotifyListener(dbsql.DSN(dbCfg), hub)
	if err := listener.Start(ctx); err != nil {
		log.Fatalf("failed to start NOTIFY listener: %v", err)
	}
	defer listener.Stop(ctx)

	server := httpapi.NewServer(cfg, db, projectRegistry, protocolRegistry, sessionManager, router,
		crossProjectRouter, authService, meetingService, chatService, hub, listener, publisher)

	addr := ":" + getEnv("HTTP_PORT", "8080")
	slog.Info("agentbroker listening", "addr", addr)
	if err := server.Start(addr); err != nil {
		log.Fatalf("HTTP server failed: %v", err)
	}
}

// parseDatabaseURL converts a postgres:// connection URL (the env-sourced
// shape config.Config.DatabaseURL takes) into dbsql.Config's discrete
// fields, which NewClient and the dedicated NOTIFY connection both need.
func parseDatabaseURL(raw string) (dbsql.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return dbsql.Config{}, err
	}

	port := 5432
	if p := u.Port(); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil {
			port = parsed
		}
	}

	password, _ := u.User.Password()
	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return dbsql.Config{
		Host:            u.Hostname(),
		Port:            port,
		User:            u.User.Username(),
		Password:        password,
		Database:        strings.TrimPrefix(u.Path, "/"),
		SSLMode:         sslMode,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 0,
		ConnMaxIdleTime: 0,
	}, nil
}
