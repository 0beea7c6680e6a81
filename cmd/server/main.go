package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"

	"github.com/coastledger/backend/internal/config"
	"github.com/coastledger/backend/internal/database"
	"github.com/coastledger/backend/internal/handlers"
	mW "github.com/coastledger/backend/internal/middleware"
	"github.com/coastledger/backend/internal/models"
	"github.com/coastledger/backend/internal/services"
	"github.com/coastledger/backend/internal/store"
)

func main() {
	config.Load()

	var st store.Store
	switch backend := viper.GetString("storage.backend"); backend {
	case "postgres":
		db := database.InitDatabase()
		defer db.Close()
		st = store.NewPostgres(db)
		log.Println("Using postgres storage backend")
	default:
		st = store.NewMemory()
		log.Printf("Using in-memory storage backend (%q)", backend)
	}

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}
	mW.InitAuthMiddleware(redisClient)

	ledger := services.NewLedgerService(st, services.NewArgon2Hasher())
	seedAdmin(ledger)

	authHandler := handlers.NewAuthHandler(ledger, redisClient)
	accountHandler := handlers.NewAccountHandler(ledger, services.NewReceiveCodeService(redisClient))
	adminHandler := handlers.NewAdminHandler(ledger)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/me", authHandler.Me)

			r.Post("/accounts", accountHandler.OpenAccount)
			r.Get("/accounts", accountHandler.ListAccounts)
			r.Get("/accounts/{accountID}/balance", accountHandler.Balance)
			r.Post("/accounts/{accountID}/deposit", accountHandler.Deposit)
			r.Post("/accounts/{accountID}/withdraw", accountHandler.Withdraw)
			r.Get("/accounts/{accountID}/transactions", accountHandler.Transactions)
			r.Get("/accounts/{accountID}/receive-code", accountHandler.ReceiveCode)

			r.Post("/transfers", accountHandler.Transfer)
			r.Post("/transfers/by-code", accountHandler.TransferByCode)

			r.Group(func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Put("/admin/accounts/{accountID}/freeze", adminHandler.FreezeAccount)
				r.Put("/admin/accounts/{accountID}/unfreeze", adminHandler.UnfreezeAccount)
				r.Get("/admin/users", adminHandler.ListUsers)
				r.Get("/admin/accounts", adminHandler.ListAccounts)
			})
		})
	})

	port := viper.GetString("server.port")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}

// seedAdmin registers the configured admin user on startup. Restarts are
// fine: an already-registered admin is not an error.
func seedAdmin(ledger *services.LedgerService) {
	email := viper.GetString("admin.email")
	password := viper.GetString("admin.password")
	if email == "" || password == "" {
		log.Println("No admin credentials configured, skipping admin seed")
		return
	}

	_, err := ledger.RegisterUser(context.Background(), viper.GetString("admin.name"), email, password, models.RoleAdmin)
	if err != nil && !errors.Is(err, models.ErrDuplicateEmail) {
		log.Fatalf("Failed to seed admin user: %v", err)
	}
	log.Printf("Admin user ready: %s", email)
}
