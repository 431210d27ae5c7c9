// seed inserts a development account for local testing. Idempotent: an existing dev user is left
// as is, and the optional AUTH0 link is created only if missing.
//
// With -verify it only marks an existing LOCAL account's email verified, which is how operators
// unlock registered accounts when REQUIRE_VERIFIED_EMAIL is on. That mode also runs in production.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"authcore/internal/config"
	"authcore/internal/identity/domain"
	"authcore/internal/identity/service"
	"authcore/internal/logger"
	"authcore/internal/security"
	"authcore/internal/store"
	userdomain "authcore/internal/user/domain"
)

const (
	devUserEmail = "dev@example.com"
	devPassword  = "password123"
	devUserID    = "dev-user-001"
)

func main() {
	auth0Sub := flag.String("auth0-sub", "", "Link this AUTH0 subject (e.g. auth0|123) to the dev user")
	verify := flag.String("verify", "", "Only mark the LOCAL account with this email verified")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	if cfg.IsProduction() && *verify == "" {
		zap.NewExample().Fatal("refusing to seed a production environment")
	}
	log := logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, ServiceName: "authcore-seed"})
	defer func() { _ = log.Sync() }()

	st, err := store.Open(cfg)
	if err != nil {
		log.Fatal("store", zap.Error(err))
	}
	defer st.Close()
	ctx := context.Background()

	if *verify != "" {
		userID, err := service.VerifyEmail(ctx, st.Identities, *verify)
		if err != nil {
			log.Fatal("verify email", zap.String("email", *verify), zap.Error(err))
		}
		log.Info("email verified", zap.String("user_id", userID))
		return
	}

	existing, err := st.Users.GetByEmail(ctx, devUserEmail)
	if err != nil {
		log.Fatal("seed check", zap.Error(err))
	}
	userID := devUserID
	if existing != nil {
		userID = existing.ID
		log.Info("dev user exists, skipping", zap.String("email", devUserEmail))
	} else {
		hash, err := security.NewHasher(cfg.BcryptCost, 1).HashPassword(ctx, devPassword)
		if err != nil {
			log.Fatal("hash password", zap.Error(err))
		}
		now := time.Now().UTC()
		u := &userdomain.User{
			ID:        devUserID,
			Email:     devUserEmail,
			Name:      "Dev User",
			Status:    userdomain.UserStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := st.Identities.CreateLocalAccount(ctx, u, hash, true); err != nil {
			log.Fatal("create dev user", zap.Error(err))
		}
		log.Info("created dev user", zap.String("email", devUserEmail))
	}

	if *auth0Sub == "" {
		return
	}
	owner, err := st.Identities.LinkOrGet(ctx, &domain.Link{
		ID:        uuid.NewString(),
		UserID:    userID,
		Provider:  domain.ProviderAuth0,
		Subject:   *auth0Sub,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Fatal("link auth0 identity", zap.Error(err))
	}
	if owner != userID {
		log.Warn("AUTH0 subject already linked to another user", zap.String("subject", *auth0Sub), zap.String("owner", owner))
		return
	}
	log.Info("AUTH0 identity linked", zap.String("subject", *auth0Sub), zap.String("user_id", userID))
}
