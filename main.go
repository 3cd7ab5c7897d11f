package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hazyhaar/linkquest/internal/api"
	"github.com/hazyhaar/linkquest/internal/audit"
	"github.com/hazyhaar/linkquest/internal/auth"
	"github.com/hazyhaar/linkquest/internal/config"
	"github.com/hazyhaar/linkquest/internal/db"
	"github.com/hazyhaar/linkquest/internal/llm"
	"github.com/hazyhaar/linkquest/internal/mcp"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Logs go to stderr so that stdout stays free for the MCP transport.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "seed":
		cmdSeed(os.Args[2:])
	case "version":
		fmt.Printf("linkquest %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`linkquest: find the best learning resources, judged by an LLM

Usage:
  linkquest serve [--config config.toml] [--addr :8080]
  linkquest mcp   [--config config.toml]
  linkquest seed  [--config config.toml] --file seed.toml
  linkquest version
  linkquest help

Commands:
  serve     Start the HTTP server
  mcp       Serve the game tools over MCP stdio
  seed      Load prompts and judge models from a TOML file
  version   Print version
  help      Show this help`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	addr := fs.String("addr", "", "listen address (overrides config)")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	auditLog, err := audit.NewSQLiteLogger(database.DB, slog.Default())
	if err != nil {
		log.Fatalf("opening audit log: %v", err)
	}
	defer auditLog.Close()

	if cfg.Auth.JWTSecret == "" {
		log.Printf("warning: no auth.jwt_secret set, every player is anonymous")
	}
	a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.CookieName)
	evaluator := newEvaluator(cfg, database)

	trusted, err := api.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		log.Fatalf("ratelimit.trusted_proxies: %v", err)
	}
	apiHandler := api.New(database, a, evaluator, api.Options{
		EvaluatePerMin: cfg.RateLimit.EvaluatePerMin,
		MatchesPerMin:  cfg.RateLimit.MatchesPerMin,
		TrustedProxies: trusted,
		Logger:         slog.Default(),
	})

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.SecurityHeaders(audit.HTTP(auditLog, apiHandler.CallerID, mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	log.Printf("linkquest %s listening on %s", version, cfg.Server.Addr)
	log.Printf("database: %s", cfg.Database.Path)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("server stopped")
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	auditLog, err := audit.NewSQLiteLogger(database.DB, slog.Default())
	if err != nil {
		log.Fatalf("opening audit log: %v", err)
	}
	defer auditLog.Close()

	srv := mcp.NewServer(database, newEvaluator(cfg, database), auditLog, version)
	if err := server.ServeStdio(srv); err != nil {
		log.Fatalf("mcp server error: %v", err)
	}
}

func cmdSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml")
	file := fs.String("file", "seed.toml", "path to the seed file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	seed, err := db.LoadSeed(*file)
	if err != nil {
		log.Fatalf("loading seed: %v", err)
	}
	for _, m := range seed.Models {
		if !llm.IsKnownProvider(m.Provider) {
			log.Fatalf("model %d: unsupported provider %q", m.ID, m.Provider)
		}
	}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer database.Close()

	if err := database.ApplySeed(seed); err != nil {
		log.Fatalf("applying seed: %v", err)
	}
	log.Printf("seeded %d prompts and %d models into %s", len(seed.Prompts), len(seed.Models), cfg.Database.Path)
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	return cfg
}

func newEvaluator(cfg *config.Config, database *db.DB) *llm.Evaluator {
	client := llm.NewFromConfig(cfg.LLM)
	if len(client.Providers()) == 0 {
		log.Printf("warning: no LLM provider configured, evaluations will fail")
	} else {
		log.Printf("llm providers: %v", client.Providers())
	}
	return llm.NewEvaluator(database, client, cfg.Evaluation.ClaimTTL(), slog.Default())
}
