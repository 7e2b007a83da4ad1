package api

import (
	"log"
	"os"
	"strings"

	"rescuenav/internal/config"
	"rescuenav/internal/route"
	"rescuenav/internal/store"
)

type Server struct {
	Store   store.GraphStore
	Planner *route.Planner
	Cfg     config.Config
	Broker  EventBroker
}

// NewServer wires the store, planner and event broker. With DATABASE_URL
// unset everything runs in memory; with REDIS_URL set events fan out
// through Redis instead of the in-process broker.
func NewServer() (*Server, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, err
	}

	dsn := os.Getenv("DATABASE_URL")
	var st store.GraphStore
	if strings.TrimSpace(dsn) == "" {
		st = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(dsn)
		if err != nil {
			return nil, err
		}
		// Run migrations (dev helper)
		if os.Getenv("DB_MIGRATE") != "false" {
			if err := sp.MigrateDir("db/migrations"); err != nil {
				log.Printf("migrate: %v", err)
			}
		}
		st = sp
	}

	var broker EventBroker
	if os.Getenv("REDIS_URL") != "" {
		if rb, err := NewRedisBroker(); err == nil {
			broker = rb
		} else {
			log.Printf("redis broker unavailable, falling back to memory: %v", err)
			broker = NewBroker()
		}
	} else {
		broker = NewBroker()
	}

	return &Server{
		Store:   st,
		Planner: route.New(st, cfg.Planner),
		Cfg:     cfg,
		Broker:  broker,
	}, nil
}
