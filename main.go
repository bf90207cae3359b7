package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strings"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"wisher-api/api"
	"wisher-api/config"
	"wisher-api/identity"
	"wisher-api/reminder"
	"wisher-api/repository"
	"wisher-api/storage"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	store, err := storage.New(cfg.Storage.ConnectionString, cfg.Storage.EventsTable, cfg.Storage.UsersTable, cfg.Storage.ReminderQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	rc := redis.NewClient(redisOptions(cfg.Redis.ConnectionString))
	cache := storage.NewCache(store, rc, cfg.Redis.CacheTTL)

	provider := identity.NewTableProvider(store, logger)
	repo := repository.New(cache, provider, logger)

	var auth *api.Auth
	var issuer *api.TokenIssuer
	if cfg.Auth.Secret != "" {
		secret := []byte(cfg.Auth.Secret)
		auth = api.NewAuth(nil, cfg.Auth.Audience, "wisher-api", secret)
		issuer = api.NewTokenIssuer(secret, "wisher-api", cfg.Auth.Audience, cfg.Auth.TokenTTL)
	} else {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth.Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		auth = api.NewAuth(jwks, cfg.Auth.Audience, "https://"+cfg.Auth.Domain+"/", nil)
	}

	e := echo.New()
	e.Use(api.DecompressRequests())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, repo, auth, issuer, logger)

	deduper := reminder.NewRedisDeduper(rc, 2*cfg.Reminder.LeadWindow)
	scanner := reminder.New(store, deduper, logger, cfg.Reminder.LeadWindow)
	if err := scanner.Start(cfg.Reminder.Schedule); err != nil {
		log.Fatalf("reminder: %v", err)
	}
	defer scanner.Stop()

	listenAddr := cfg.Listen
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	e.Logger.Fatal(e.Start(listenAddr))
}

// redisOptions accepts either a redis:// URL or the Azure-style
// "host:port,password=...,ssl=true" connection string.
func redisOptions(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
