// Command bootstrap creates the first administrator account.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/dmitrijs2005/auditrack/internal/server/bootstrap"
	"github.com/dmitrijs2005/auditrack/internal/server/config"
	"github.com/dmitrijs2005/auditrack/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/auditrack/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	ctx := context.Background()
	cfg := config.LoadConfig()

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	defer db.Close()

	rm, err := repomanager.NewPostgresRepositoryManager(db)
	if err != nil {
		log.Fatalf("db init error: %v", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		log.Fatalf("migrations error: %v", err)
	}

	us := services.NewUserService(db, rm, cfg)
	if _, err := bootstrap.Run(ctx, bufio.NewReader(os.Stdin), os.Stdout, us); err != nil {
		log.Printf("bootstrap failed: %v", err)
		os.Exit(1)
	}
}
