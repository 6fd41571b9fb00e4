package handlers

// SeedDemo handles POST /api/admin/seed
//
// Demo-only endpoint, mounted when ENABLE_SEED is set. It inserts a fixed
// set of branches, staff, members and attendance history so a demo starts
// from a known state without external scripts.
//
// The endpoint is idempotent: every INSERT is INSERT OR IGNORE and every
// ID is hard-coded, so the same rows are produced every time.
//
// DEMO SCENARIO
// ─────────────────────────────────────────────────────────────────────────
// Branches : 1 "Downtown", 2 "Riverside"
// Staff    : admin, manager, front desk, personal trainer, housekeeping
//            (all password demo1234, emails below)
// Regular  : "Wanjiru Kamau"   (wanjiru@member.test / demo1234)
//              → five completed visits at Downtown over the past week
//              → checked in at Downtown right now (open session), so her
//                next scan there is answered with the checkout prompt
// Newcomer : "Otieno Were"     (otieno@member.test / demo1234)
//              → no history; his first scan opens a fresh session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Elizabethomito/gymdesk/backend/internal/models"
)

// Pre-determined IDs keep the seed idempotent across restarts.
const (
	SeedBranchDowntownID  int64 = 1
	SeedBranchRiversideID int64 = 2

	SeedAdminID        = "seed-admin-0000000-0000-0000-0000-000000000001"
	SeedManagerID      = "seed-manager-00000-0000-0000-0000-000000000002"
	SeedReceptionistID = "seed-desk-00000000-0000-0000-0000-000000000003"
	SeedTrainerID      = "seed-trainer-00000-0000-0000-0000-000000000004"
	SeedHousekeepingID = "seed-clean-0000000-0000-0000-0000-000000000005"
	SeedWanjiruID      = "seed-wanjiru-00000-0000-0000-0000-000000000010"
	SeedOtienoID       = "seed-otieno-000000-0000-0000-0000-000000000011"

	// SeedOpenSessionID is Wanjiru's currently open session at Downtown.
	SeedOpenSessionID int64 = 9000
	// seedHistoryBaseID numbers the completed sessions 9001, 9002, ...
	seedHistoryBaseID int64 = 9000

	seedPassword = "demo1234"
)

// seeder runs a list of inserts and keeps the first error.
type seeder struct {
	ctx context.Context
	s   *Server
	err error
}

func (sd *seeder) exec(query string, args ...any) {
	if sd.err != nil {
		return
	}
	if _, err := sd.s.DB.ExecContext(sd.ctx, query, args...); err != nil {
		sd.err = fmt.Errorf("seed: %w", err)
	}
}

// SeedDemo handles POST /api/admin/seed
func (s *Server) SeedDemo(w http.ResponseWriter, r *http.Request) {
	hash, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "bcrypt: "+err.Error())
		return
	}
	pw := string(hash)
	now := s.clock()
	sd := &seeder{ctx: r.Context(), s: s}

	// ── Branches ─────────────────────────────────────────────────────────
	branches := []struct {
		id            int64
		name, address string
	}{
		{SeedBranchDowntownID, "Downtown", "14 Kenyatta Avenue"},
		{SeedBranchRiversideID, "Riverside", "3 Riverside Drive"},
	}
	for _, b := range branches {
		sd.exec(`INSERT OR IGNORE INTO branches (id, name, address, created_at) VALUES (?, ?, ?, ?)`,
			b.id, b.name, b.address, now)
	}

	// ── Users ────────────────────────────────────────────────────────────
	downtown, riverside := SeedBranchDowntownID, SeedBranchRiversideID
	users := []struct {
		id, email, name string
		role            models.UserRole
		branch          *int64
	}{
		{SeedAdminID, "admin@gymdesk.test", "Grace Admin", models.RoleAdmin, nil},
		{SeedManagerID, "manager@gymdesk.test", "Peter Manager", models.RoleManager, &downtown},
		{SeedReceptionistID, "desk@gymdesk.test", "Faith Front Desk", models.RoleReceptionist, &downtown},
		{SeedTrainerID, "coach@gymdesk.test", "Kevin Coach", models.RolePersonalTrainer, &riverside},
		{SeedHousekeepingID, "clean@gymdesk.test", "Mary Housekeeping", models.RoleHousekeeping, &downtown},
		{SeedWanjiruID, "wanjiru@member.test", "Wanjiru Kamau", models.RoleMember, &downtown},
		{SeedOtienoID, "otieno@member.test", "Otieno Were", models.RoleMember, nil},
	}
	for _, u := range users {
		sd.exec(`INSERT OR IGNORE INTO users (id, email, password_hash, name, role, branch_id, created_at, updated_at)
		         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			u.id, u.email, pw, u.name, u.role, u.branch, now, now)
	}

	// ── Wanjiru's completed visits (one a day, 90 minutes each) ──────────
	for day := 1; day <= 5; day++ {
		in := now.AddDate(0, 0, -day).Add(-2 * time.Hour)
		out := in.Add(90 * time.Minute)
		mode := models.ModeQRCode
		if day == 3 {
			mode = models.ModeManual
		}
		sd.exec(`INSERT OR IGNORE INTO member_attendance (id, member_id, branch_id, check_in, check_out, mode, notes)
		         VALUES (?, ?, ?, ?, ?, ?, ?)`,
			seedHistoryBaseID+int64(day), SeedWanjiruID, SeedBranchDowntownID, in, out, mode, "seeded visit")
	}

	// ── Wanjiru is checked in right now ──────────────────────────────────
	sd.exec(`INSERT OR IGNORE INTO member_attendance (id, member_id, branch_id, check_in, mode, notes)
	         VALUES (?, ?, ?, ?, ?, ?)`,
		SeedOpenSessionID, SeedWanjiruID, SeedBranchDowntownID, now.Add(-40*time.Minute),
		models.ModeQRCode, "QR check-in (gym_checkin_global, nonce SEEDSEEDSEEDSEED)")

	// ── Staff attendance: the trainer worked a shift yesterday ───────────
	shift := now.AddDate(0, 0, -1).Add(-9 * time.Hour)
	sd.exec(`INSERT OR IGNORE INTO member_attendance (id, member_id, branch_id, check_in, check_out, mode, notes)
	         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		seedHistoryBaseID+100, SeedTrainerID, SeedBranchRiversideID, shift, shift.Add(8*time.Hour),
		models.ModeApp, "staff shift")

	if sd.err != nil {
		s.log().Error("seed failed", "err", sd.err)
		respondError(w, http.StatusInternalServerError, "seed failed")
		return
	}

	accounts := make([]map[string]string, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, map[string]string{
			"role": string(u.role), "email": u.email, "password": seedPassword, "name": u.name,
		})
	}
	respond(w, http.StatusOK, map[string]any{
		"seeded":   true,
		"accounts": accounts,
		"branches": []map[string]any{
			{"id": SeedBranchDowntownID, "name": "Downtown"},
			{"id": SeedBranchRiversideID, "name": "Riverside"},
		},
		"open_session": map[string]any{
			"attendance_id": SeedOpenSessionID,
			"member_id":     SeedWanjiruID,
			"branch_id":     SeedBranchDowntownID,
		},
	})
}
