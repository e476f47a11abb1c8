package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"ekklesia.app/internal/auth"
	"ekklesia.app/internal/config"
	"ekklesia.app/internal/migrate"
	"ekklesia.app/internal/obs"
	"ekklesia.app/internal/store/pg"
)

func main() {
	log := obs.Logger()
	var (
		dsn      = flag.String("dsn", os.Getenv("EKKLESIA_PG_DSN"), "PostgreSQL DSN")
		email    = flag.String("email", "", "bootstrap-admin: provider admin email")
		name     = flag.String("name", "Provider Admin", "bootstrap-admin: display name")
		password = flag.String("password", os.Getenv("EKKLESIA_BOOTSTRAP_PASSWORD"), "bootstrap-admin: password")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or EKKLESIA_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|seed|status|bootstrap-admin]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.WithError(err).Fatal("open db")
	}
	defer store.Close()

	mgr := migrate.NewEmbedded(store.DB())

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var records []migrate.Record
		records, err = mgr.Status(ctx)
		if err == nil {
			for _, rec := range records {
				fmt.Println(rec)
			}
		}
	case "bootstrap-admin":
		err = bootstrapAdmin(ctx, store, *name, *email, *password)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.WithError(err).Fatalf("migrate %s", flag.Arg(0))
	}
}

// bootstrapAdmin creates the first PROVIDER_ADMIN. Seeds cannot carry bcrypt
// hashes, so this goes through the account service.
func bootstrapAdmin(ctx context.Context, store *pg.Store, name, email, password string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	secrets, err := cfg.Secrets()
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokens(secrets)
	if err != nil {
		return err
	}
	accounts, err := auth.NewService(store, tokens, nil)
	if err != nil {
		return err
	}
	user, err := accounts.Register(ctx, auth.NewUser{
		Name:     name,
		Email:    email,
		Password: password,
		Role:     auth.RoleProviderAdmin,
	})
	if err != nil {
		return err
	}
	obs.Logger().WithField("user_id", user.ID).Info("provider admin created")
	return nil
}
