// Command floorplan-server runs the floor plan project service.
//
// Environment:
//
//	PORT              listen port (default 3000)
//	DB_PATH           SQLite database (default data/db/projects.db)
//	DATA_DIR          uploads and generated models (default data)
//	FLOORPLAN_CONFIG  optional YAML pipeline configuration
//	DEFAULT_LOGIN     account created on first start (default admin)
//	DEFAULT_PASSWORD  its password (default admin123)
//
// FLOORPLAN_* variables override the pipeline configuration as they do
// for the floorplan command.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chazu/floorplan3d/pkg/config"
	"github.com/chazu/floorplan3d/pkg/pipeline"
	"github.com/chazu/floorplan3d/pkg/server"
	"github.com/chazu/floorplan3d/pkg/store"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime)

	port := getenv("PORT", "3000")
	dbPath := getenv("DB_PATH", "data/db/projects.db")
	dataDir := getenv("DATA_DIR", "data")

	cfg := config.Default()
	if path := os.Getenv("FLOORPLAN_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	ctx := context.Background()
	pipe, err := pipeline.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init pipeline: %v", err)
	}

	st, err := store.Open(ctx, dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	if err := ensureDefaultUser(ctx, st, getenv("DEFAULT_LOGIN", "admin"), getenv("DEFAULT_PASSWORD", "admin123")); err != nil {
		log.Fatalf("default user: %v", err)
	}

	srv := server.New(pipe, st, server.Options{
		DataDir:      dataDir,
		ReadTimeout:  time.Duration(getenvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getenvAsInt("WRITE_TIMEOUT", 30)) * time.Second,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Printf("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	if err := srv.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	<-done
}

// ensureDefaultUser seeds one account so a fresh database can log in.
func ensureDefaultUser(ctx context.Context, st *store.Store, login, password string) error {
	u, created, err := st.EnsureUser(ctx, login, password)
	if err != nil {
		return err
	}
	if created {
		log.Printf("Default user created: %s", u.Login)
	} else {
		log.Printf("Default user already exists: %s", u.Login)
	}
	return nil
}

func getenv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getenvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}
