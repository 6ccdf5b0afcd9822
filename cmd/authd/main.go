// Command authd serves the credential and session lifecycle API over
// HTTP. Configuration comes from the environment (optionally a .env
// file):
//
//	LISTEN_ADDR      address to serve on (default :8080)
//	DATABASE_URL     PostgreSQL DSN; empty selects the in-memory store
//	REDIS_ADDR       Redis address (default localhost:6379)
//	AUTH_TOKEN_SECRET  HS256 signing secret, at least 32 bytes
//	RESEND_API_KEY   enables real code delivery through Resend
//	RESEND_FROM      sender address for code emails
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerly/auth"
	"github.com/ledgerly/auth/mailer"
	"github.com/ledgerly/auth/store/memory"
	"github.com/ledgerly/auth/store/postgres"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("godotenv: %v", err)
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	secret := os.Getenv("AUTH_TOKEN_SECRET")
	if secret == "" {
		return errors.New("AUTH_TOKEN_SECRET not set")
	}

	redisAddr := envOr("REDIS_ADDR", "localhost:6379")
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()

	store, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	sender, err := buildSender()
	if err != nil {
		return err
	}

	cfg := auth.DefaultConfig()
	cfg.Token.Secret = []byte(secret)

	engine, err := auth.New().
		WithConfig(cfg).
		WithRedis(redisClient).
		WithStore(store).
		WithSender(sender).
		WithAuditSink(auth.NewJSONWriterSink(os.Stdout)).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:              envOr("LISTEN_ADDR", ":8080"),
		Handler:           newServer(engine, store).routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("authd listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-stop:
		log.Print("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			return err
		}
	}

	return nil
}

func openStore() (auth.CredentialStore, func(), error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Print("DATABASE_URL not set, using in-memory store")
		return memory.NewStore(), func() {}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := postgres.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}

func buildSender() (auth.CodeSender, error) {
	if os.Getenv("RESEND_API_KEY") == "" {
		log.Print("RESEND_API_KEY not set, codes will be logged")
		return mailer.LogSender{Logf: log.Printf}, nil
	}
	return mailer.NewResendSender(envOr("RESEND_FROM", "Ledgerly <onboarding@resend.dev>"))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
