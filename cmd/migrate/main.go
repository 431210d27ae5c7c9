// migrate applies the embedded schema. Postgres uses golang-migrate; SQLite is migrated on open.
package main

import (
	"flag"

	"go.uber.org/zap"

	"authcore/internal/config"
	"authcore/internal/db"
	"authcore/internal/db/migrate"
	"authcore/internal/logger"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	showVersion := flag.Bool("version", false, "Print the current Postgres schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config", zap.Error(err))
	}
	log := logger.New(logger.Config{Env: cfg.Env, Level: cfg.LogLevel, ServiceName: "authcore-migrate"})
	defer func() { _ = log.Sync() }()

	if cfg.StoreDriver == config.StoreDriverSQLite {
		if *direction != string(migrate.Up) {
			log.Fatal("sqlite supports only direction=up")
		}
		conn, err := db.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatal("migrate sqlite", zap.Error(err))
		}
		_ = conn.Close()
		log.Info("sqlite schema up to date", zap.String("path", cfg.SQLitePath))
		return
	}

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if *showVersion {
		v, dirty, err := migrate.Version(cfg.DatabaseURL)
		if err != nil {
			log.Fatal("migrate version", zap.Error(err))
		}
		log.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
		return
	}
	dir, err := migrate.ParseDirection(*direction)
	if err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	if err := migrate.Run(cfg.DatabaseURL, dir); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("migrations applied", zap.String("direction", string(dir)))
}
