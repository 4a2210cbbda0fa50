package main

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/dannoetc/baseliner/config"
	"github.com/dannoetc/baseliner/db"
	"github.com/dannoetc/baseliner/rest"
	"github.com/dannoetc/baseliner/worker"
)

func main() {
	cfg := config.FromEnv()

	if err := db.Connect(db.Config{Driver: cfg.DBDriver, DatabaseURL: cfg.DatabaseURL}); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("connected to database successfully")

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	version, err := db.GetCurrentVersion()
	if err != nil {
		log.Printf("warning: failed to get current schema version: %v", err)
	} else {
		log.Printf("database schema version: %d", version)
	}

	if err := rest.ValidateOpenAPISpec(); err != nil {
		log.Fatalf("openapi.yml is malformed: %v", err)
	}

	pruneSrv, pruneMux := worker.NewServer(cfg)
	go func() {
		if err := pruneSrv.Run(pruneMux); err != nil {
			log.Printf("warning: prune worker stopped: %v", err)
		}
	}()

	scheduler, err := worker.NewScheduler(cfg, config.DefaultTenantID)
	if err != nil {
		log.Printf("warning: failed to build prune scheduler: %v", err)
	} else {
		go func() {
			if err := scheduler.Run(); err != nil {
				log.Printf("warning: prune scheduler stopped: %v", err)
			}
		}()
	}

	app := fiber.New(fiber.Config{
		BodyLimit: int(max64(cfg.MaxRequestBodyBytesDefault, cfg.MaxRequestBodyBytesDeviceReports)),
	})

	rest.Init(app, cfg)

	log.Printf("starting server on %s", cfg.ListenAddr)
	if err := app.Listen(cfg.ListenAddr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
