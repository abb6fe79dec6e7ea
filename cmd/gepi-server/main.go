package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"

	"gepi-backend/lib/configutil"
	"gepi-backend/lib/serviceutil"
	"gepi-backend/services/gepi"
	"gepi-backend/services/gepi/store"
)

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type StoreConfig struct {
	// one of "sqlite", "file", "s3"
	Backend string          `json:"backend"`
	Path    string          `json:"path"`
	S3      store.S3Options `json:"s3"`
}

type Config struct {
	Port       int         `json:"port"`
	BaseUrl    string      `json:"base_url"`
	Store      StoreConfig `json:"store"`
	Smtp       SmtpConfig  `json:"smtp"`
	AlertEmail string      `json:"alert_email"`
}

func initStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "sessions.db"
		}
		return store.OpenSqlite(path)
	case "file":
		path := cfg.Path
		if path == "" {
			path = "sessions.json"
		}
		return store.NewFile(path), nil
	case "s3":
		return store.NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown store backend: %q", cfg.Backend)
	}
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	InitTelemetry(ctx, *verbose)

	cfg, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	if cfg.BaseUrl == "" {
		serviceutil.Fatal("read config", fmt.Errorf("base_url is required"))
	}
	port := cfg.Port
	if port == 0 {
		port = 8000
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		serviceutil.Fatal("init session store", err)
	}

	svc, err := gepi.NewService(ctx, st, gepi.Options{
		BaseUrl: cfg.BaseUrl,
		Smtp: gepi.SmtpConfig{
			Server:       cfg.Smtp.Server,
			Port:         cfg.Smtp.Port,
			EmailAddress: cfg.Smtp.EmailAddress,
			Password:     cfg.Smtp.Password,
		},
		AlertEmail: cfg.AlertEmail,
	})
	if err != nil {
		serviceutil.Fatal("init gepi registry", err)
	}

	mux := http.NewServeMux()
	RegisterApi(mux, svc)

	go serviceutil.StartHttpServer(port, mux)
	<-ctx.Done()
}
