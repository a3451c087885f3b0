package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/momentsapp/moments/internal/config"
	"github.com/momentsapp/moments/internal/logger"
	"github.com/momentsapp/moments/internal/migrations"
	"github.com/momentsapp/moments/internal/repository"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "moments-migrate",
	})
	logger.SetDefaultLogger(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-config path] up|down|status|version\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	command := migrations.CommandUp
	if flag.NArg() > 0 {
		command = migrations.Command(flag.Arg(0))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	// Migrations are applied below, not on connect.
	dbCfg := cfg.Database
	dbCfg.AutoMigrate = false
	db, err := repository.InitDB(&dbCfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	sqlDB, err := db.DB()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to get database handle")
	}
	defer sqlDB.Close()

	log := appLogger.WithFields(logger.Fields{
		"command": string(command),
		"driver":  dbCfg.Driver,
	})
	if err := migrations.Run(sqlDB, dbCfg.Driver, command, log); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}
	log.Info("Migration finished")
}
