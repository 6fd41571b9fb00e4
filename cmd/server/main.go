// main is the entry point for the gymdesk attendance API server.
//
// It loads configuration, opens the SQLite database, starts the rotating
// venue-wide QR code, registers all HTTP routes, and starts listening.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — how this file fits into the project
// ────────────────────────────────────────────────────────────────────
// This file is the "composition root": the single place where all the
// independent packages (config, db, qr, handlers, middleware) are wired
// together. Keeping this wiring in main.go means every other package
// stays easy to test in isolation (they never import each other in a
// circle).
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Elizabethomito/gymdesk/backend/internal/authz"
	"github.com/Elizabethomito/gymdesk/backend/internal/config"
	"github.com/Elizabethomito/gymdesk/backend/internal/db"
	"github.com/Elizabethomito/gymdesk/backend/internal/handlers"
	"github.com/Elizabethomito/gymdesk/backend/internal/logging"
	"github.com/Elizabethomito/gymdesk/backend/internal/middleware"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
	"github.com/Elizabethomito/gymdesk/backend/internal/qr"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// ── Configuration ────────────────────────────────────────────────
	// Defaults, then an optional YAML file, then .env, then the process
	// environment. See internal/config.
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ── Database ─────────────────────────────────────────────────────
	// db.Open creates the file if it doesn't exist and runs all CREATE
	// TABLE IF NOT EXISTS migrations automatically.
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	srv := &handlers.Server{
		DB:     database,
		Secret: cfg.JWTSecret,
		Logger: logger,
	}

	// ── Venue-wide QR code ───────────────────────────────────────────
	// The issuer rotates the code on the front-desk screen every TTL and
	// records each issuance in the qr_codes audit table through srv.
	var branchID *int64
	if cfg.QRBranchID > 0 {
		id := cfg.QRBranchID
		branchID = &id
		if err := srv.EnsureBranch(ctx, id, cfg.QRBranchName); err != nil {
			return err
		}
	}
	issuer := qr.NewIssuer(qr.IssuerConfig{
		Purpose:    qr.Purpose(cfg.QRPurpose),
		BranchID:   branchID,
		BranchName: cfg.QRBranchName,
		TTL:        cfg.QRTTL(),
	}, qr.WithReporter(srv), qr.WithLogger(logger))
	srv.Issuer = issuer

	go func() {
		if err := issuer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("qr issuer stopped", "err", err)
		}
	}()

	// ── Router ───────────────────────────────────────────────────────
	// Go 1.22+ ServeMux supports method prefixes ("GET /path") and path
	// wildcards ("{id}") natively, so no third-party router is needed.
	mux := http.NewServeMux()

	// Public routes: no token required.
	mux.HandleFunc("POST /api/auth/register", srv.Register)
	mux.HandleFunc("POST /api/auth/login", srv.Login)
	mux.HandleFunc("GET /{$}", srv.Home)
	mux.HandleFunc("GET /login", srv.LoginPage)
	if cfg.EnableSeed {
		// Demo seed. Safe to call multiple times (idempotent).
		mux.HandleFunc("POST /api/admin/seed", srv.SeedDemo)
		logger.Warn("demo seed endpoint enabled")
	}

	// ── Middleware helpers ────────────────────────────────────────────
	// Chaining them: auth(onlyAdmin(handler)) means:
	//   1. Authenticate runs first  → sets user_id/role/branch in context
	//   2. RequireRole runs second  → allows or rejects based on role
	//   3. handler runs last        → does the actual work
	auth := middleware.Authenticate(cfg.JWTSecret)
	onlyAdmin := middleware.RequireRole(string(models.RoleAdmin), string(models.RoleSuperAdmin))
	onlyStaff := middleware.RequireRole(staffRoles()...)
	frontDesk := middleware.RequireRole(
		string(models.RoleAdmin), string(models.RoleSuperAdmin),
		string(models.RoleManager), string(models.RoleReceptionist))

	// Authenticated: any logged-in user. Members may only act for
	// themselves; the handlers enforce that.
	mux.Handle("GET /api/auth/me", auth(http.HandlerFunc(srv.Me)))
	mux.Handle("POST /memberattendence/checkin", auth(http.HandlerFunc(srv.CheckIn)))
	mux.Handle("PUT /memberattendence/checkout/{attendanceId}", auth(http.HandlerFunc(srv.CheckOut)))
	mux.Handle("POST /memberattendence/checkout/{attendanceId}", auth(http.HandlerFunc(srv.CheckOut)))
	mux.Handle("GET /memberattendence/{subjectId}", auth(http.HandlerFunc(srv.History)))
	mux.Handle("GET /api/branches", auth(http.HandlerFunc(srv.ListBranches)))
	mux.Handle("GET /api/branches/{id}", auth(http.HandlerFunc(srv.GetBranch)))

	// Staff routes.
	mux.Handle("POST /qrcode/generate", auth(onlyStaff(http.HandlerFunc(srv.GenerateQR))))
	mux.Handle("GET /qrcode", auth(onlyStaff(http.HandlerFunc(srv.ListQRCodes))))
	mux.Handle("GET /qrcode/global", auth(frontDesk(http.HandlerFunc(srv.GlobalQR))))
	mux.Handle("GET /qrcode/global.png", auth(frontDesk(http.HandlerFunc(srv.GlobalQRPNG))))

	// Admin routes.
	mux.Handle("POST /qrcode/global/regenerate", auth(onlyAdmin(http.HandlerFunc(srv.RegenerateGlobalQR))))
	mux.Handle("DELETE /memberattendence/{attendanceId}", auth(onlyAdmin(http.HandlerFunc(srv.DeleteAttendance))))
	mux.Handle("POST /api/branches", auth(onlyAdmin(http.HandlerFunc(srv.CreateBranch))))

	// Role dashboards. Guard redirects instead of answering 401/403:
	// anonymous visitors go to /login, other roles to their own page.
	for _, role := range models.AllRoles {
		path := authz.LandingPath(string(role))
		if path == authz.DefaultLandingPath {
			continue
		}
		mux.Handle("GET "+path, middleware.Guard(cfg.JWTSecret, true, string(role))(srv.Dashboard(role)))
	}

	// Wrap the entire mux so browser dashboards are allowed and every
	// request is logged with its ID.
	handler := middleware.CORS(middleware.RequestLogger(logger)(mux))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("gymdesk API listening", "addr", cfg.Addr, "qr_purpose", cfg.QRPurpose, "qr_branch_id", cfg.QRBranchID)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Let in-flight audit writes finish before the database closes.
	issuer.Wait()
	return nil
}

func staffRoles() []string {
	var roles []string
	for _, r := range models.AllRoles {
		if r.IsStaff() {
			roles = append(roles, string(r))
		}
	}
	return roles
}
