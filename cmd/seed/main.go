package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"workflow-dashboard/internal/config"
	"workflow-dashboard/internal/infra/auth"
	pg "workflow-dashboard/internal/infra/db/postgres"
	"workflow-dashboard/internal/infra/logging"
	"workflow-dashboard/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	email := flag.String("email", "dev@example.com", "user to create or reuse")
	name := flag.String("name", "Dev User", "display name for a new user")
	title := flag.String("workflow", "Sample workflow", "title of the seeded workflow")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	tm := pg.NewTxManager(pool)
	userUC := usecase.NewUserUseCase(pg.NewUserRepo(pool), tm, logger)
	workflowUC := usecase.NewWorkflowUseCase(pg.NewWorkflowRepo(pool), tm, logger)

	user, err := userUC.RegisterOrFetch(ctx, *email, *name)
	if err != nil {
		log.Fatalf("user: %v", err)
	}
	wf, err := workflowUC.Create(ctx, user.ID, *title, "seeded for local development", "")
	if err != nil {
		log.Fatalf("workflow: %v", err)
	}
	token, err := auth.NewManager(cfg.Auth).Mint(user.ID, user.Email)
	if err != nil {
		log.Fatalf("token: %v", err)
	}

	fmt.Printf("user:     %s (%s)\n", user.ID, user.Email)
	fmt.Printf("workflow: %s (%s)\n", wf.ID, wf.Title)
	fmt.Printf("token:    %s\n", token)
	fmt.Println("use it as: Authorization: Bearer <token>")
}
