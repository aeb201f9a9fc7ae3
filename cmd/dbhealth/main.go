// Command dbhealth opens the configured store, pings it and reports whether a
// sample case id is present. Exit 0 means healthy.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"casetrace/internal/common"
	"casetrace/internal/repository"
)

func main() {
	cfg := common.LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		store repository.Store
		err   error
	)
	if cfg.Database.Driver == "postgres" {
		store, err = repository.OpenPostgres(ctx, repository.PostgresConfig{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, nil)
	} else {
		store, err = repository.OpenSQLite(cfg.Database.DSN, nil)
	}
	if err != nil {
		log.Fatalf("opening store (%s): %v", cfg.Database.Driver, err)
	}
	defer store.Close()

	if err := store.HealthCheck(ctx, 1*time.Second); err != nil {
		log.Fatalf("store health: FAIL (%v)", err)
	}
	log.Println("store health: OK")

	if len(os.Args) > 1 {
		caseID := os.Args[1]
		rec, err := store.GetByCaseID(ctx, caseID)
		if err != nil {
			log.Fatalf("lookup %s: %v", caseID, err)
		}
		if rec == nil {
			log.Printf("case %s: not persisted", caseID)
			return
		}
		log.Printf("case %s: persisted at %s (%d timeline events, %d evidence items)",
			rec.CaseID, rec.PersistedAt.Format(time.RFC3339), len(rec.Timeline), len(rec.Evidence))
	}
}
