package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/config"
	"ekklesia.app/internal/httpapi"
	"ekklesia.app/internal/members"
	"ekklesia.app/internal/obs"
	"ekklesia.app/internal/policy"
	"ekklesia.app/internal/settings"
	"ekklesia.app/internal/store/pg"
	"ekklesia.app/internal/tenant"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	log := obs.Logger()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	store, err := pg.Open(cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}

	api, err := build(cfg, store)
	if err != nil {
		log.WithError(err).Fatal("wire services")
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	log.WithFields(logrus.Fields{
		"version": version,
		"addr":    srv.Addr,
		"cache":   cfg.Cache.Policy.String(),
	}).Info("starting ekklesia-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("shutdown")
	}
	_ = store.Close()
	log.Info("stopped")
}

func build(cfg *config.Config, store *pg.Store) (*httpapi.API, error) {
	secrets, err := cfg.Secrets()
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokens(secrets,
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithAccessTTL(cfg.Auth.TokenTTL),
		auth.WithReauthTTL(cfg.Auth.ReauthTTL),
	)
	if err != nil {
		return nil, err
	}
	credentials := auth.NewCredentialCache(cfg.CredentialCacheOptions()...)

	tenants, err := tenant.NewService(store)
	if err != nil {
		return nil, err
	}
	accounts, err := auth.NewService(store, tokens, credentials, auth.WithTenantStatus(tenants))
	if err != nil {
		return nil, err
	}
	settingSvc, err := settings.NewService(store, settings.NewCache(cfg.SettingCacheOptions()...))
	if err != nil {
		return nil, err
	}
	memberSvc, err := members.NewService(store)
	if err != nil {
		return nil, err
	}

	return httpapi.New(httpapi.Deps{
		Authenticator:  auth.NewAuthenticator(tokens, store, credentials),
		Accounts:       accounts,
		Tokens:         tokens,
		Tenants:        tenants,
		Settings:       settingSvc,
		Policy:         policy.NewEvaluator(settingSvc),
		Members:        memberSvc,
		Ready:          httpapi.ReadyProbe{DB: store.DB()},
		Version:        version,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TrustedProxies: cfg.Server.TrustedProxies,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		LoginRPS:       cfg.Server.LoginRPS,
		LoginBurst:     cfg.Server.LoginBurst,
	})
}
