package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Elizabethomito/gymdesk/backend/internal/middleware"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
	"github.com/Elizabethomito/gymdesk/backend/internal/qr"
)

// systemIssuer is recorded as issued_by for codes the server rotates itself.
const systemIssuer = "system"

// GlobalQRResponse is the body of the /qrcode/global routes.
type GlobalQRResponse struct {
	Success bool       `json:"success"`
	Payload qr.Payload `json:"payload"`
	// QRText is the exact text encoded in the image.
	QRText string `json:"qrText"`
	// ExpiresIn is the number of seconds until the next rotation.
	ExpiresIn int    `json:"expiresIn"`
	State     string `json:"state"`
}

// GenerateQR handles POST /qrcode/generate  (staff only)
//
// This is the QR audit registry: every issued code is recorded once, keyed
// by its nonce. Issuers report here on a best-effort basis, so a failure
// answer never affects the code already on display. A repeated nonce is a
// 409, which lets an issuer notice that its random source is misbehaving.
func (s *Server) GenerateQR(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateQRRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Purpose == "" {
		req.Purpose = string(qr.PurposeGlobalCheckIn)
	}
	if !qr.Purpose(req.Purpose).Valid() {
		respondError(w, http.StatusBadRequest, "unknown purpose "+req.Purpose)
		return
	}
	if !req.ExpiresAt.After(req.IssuedAt) {
		respondError(w, http.StatusBadRequest, "expiresAt must be after issuedAt")
		return
	}
	if req.BranchID != nil && !s.branchExists(r, *req.BranchID) {
		respondError(w, http.StatusNotFound, "branch not found")
		return
	}

	entry, err := s.recordIssuance(r.Context(), req, middleware.GetUserID(r.Context()))
	if err != nil {
		if isUniqueViolation(err) {
			respondError(w, http.StatusConflict, "nonce already registered")
			return
		}
		respondError(w, http.StatusInternalServerError, "could not record QR code")
		return
	}
	respond(w, http.StatusCreated, entry)
}

// ListQRCodes handles GET /qrcode  (staff only)
// Newest first; ?limit= caps the list (default 50, max 500).
func (s *Server) ListQRCodes(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, 500)
	}

	rows, err := s.DB.QueryContext(r.Context(),
		`SELECT id, branch_id, nonce, purpose, issued_at, expires_at, issued_by, created_at
		 FROM qr_codes ORDER BY issued_at DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	defer rows.Close()

	codes := []models.QRCodeIssuance{}
	for rows.Next() {
		var (
			c      models.QRCodeIssuance
			branch *int64
		)
		if err := rows.Scan(&c.ID, &branch, &c.Nonce, &c.Purpose, &c.IssuedAt, &c.ExpiresAt, &c.IssuedBy, &c.CreatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "scan error")
			return
		}
		c.BranchID = branch
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		respondError(w, http.StatusInternalServerError, "rows error")
		return
	}
	respond(w, http.StatusOK, codes)
}

// GlobalQR handles GET /qrcode/global
// Returns the venue-wide code currently on display.
func (s *Server) GlobalQR(w http.ResponseWriter, r *http.Request) {
	p, ok := s.currentGlobal(w)
	if !ok {
		return
	}
	s.respondGlobal(w, http.StatusOK, p)
}

// GlobalQRPNG handles GET /qrcode/global.png
// ?size= sets the edge length in pixels (128..1024, default 256).
func (s *Server) GlobalQRPNG(w http.ResponseWriter, r *http.Request) {
	size := 256
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "size must be a number")
			return
		}
		size = max(128, min(n, 1024))
	}

	p, ok := s.currentGlobal(w)
	if !ok {
		return
	}
	png, err := qr.RenderPNG(p, size)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-QR-Expires-At", p.ExpiresAt.Format(time.RFC3339))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// RegenerateGlobalQR handles POST /qrcode/global/regenerate  (ADMIN / SUPERADMIN)
// The old code stops being shown immediately; it still validates until its
// own expiresAt, which is the accepted rotation tolerance.
func (s *Server) RegenerateGlobalQR(w http.ResponseWriter, r *http.Request) {
	if s.Issuer == nil {
		respondError(w, http.StatusServiceUnavailable, "global QR code is disabled")
		return
	}
	p, err := s.Issuer.ForceRegenerate()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not regenerate QR code")
		return
	}
	s.reqLog(r).Info("global QR regenerated", "nonce", p.Nonce, "by", middleware.GetUserID(r.Context()))
	s.respondGlobal(w, http.StatusOK, p)
}

// ReportIssuance records a payload issued by the server's own Issuer.
// It makes *Server a qr.AuditReporter.
func (s *Server) ReportIssuance(ctx context.Context, p qr.Payload) error {
	req := models.GenerateQRRequest{
		BranchID: p.BranchID,
		Nonce:    p.Nonce,
		Purpose:  string(p.Purpose),
		IssuedAt: p.IssuedAt,
	}
	if p.ExpiresAt != nil {
		req.ExpiresAt = *p.ExpiresAt
	}
	if _, err := s.recordIssuance(ctx, req, systemIssuer); err != nil {
		return fmt.Errorf("record issuance %s: %w", p.Nonce, err)
	}
	return nil
}

func (s *Server) recordIssuance(ctx context.Context, req models.GenerateQRRequest, issuedBy string) (models.QRCodeIssuance, error) {
	entry := models.QRCodeIssuance{
		ID:        uuid.NewString(),
		BranchID:  req.BranchID,
		Nonce:     strings.TrimSpace(req.Nonce),
		Purpose:   req.Purpose,
		IssuedAt:  req.IssuedAt.UTC(),
		ExpiresAt: req.ExpiresAt.UTC(),
		IssuedBy:  issuedBy,
		CreatedAt: s.clock(),
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO qr_codes (id, nonce, purpose, branch_id, issued_at, expires_at, issued_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Nonce, entry.Purpose, entry.BranchID, entry.IssuedAt, entry.ExpiresAt, entry.IssuedBy, entry.CreatedAt,
	)
	return entry, err
}

// currentGlobal returns the payload on display, issuing the first one if
// the rotation loop has not ticked yet.
func (s *Server) currentGlobal(w http.ResponseWriter) (qr.Payload, bool) {
	if s.Issuer == nil {
		respondError(w, http.StatusServiceUnavailable, "global QR code is disabled")
		return qr.Payload{}, false
	}
	if p, ok := s.Issuer.Current(); ok {
		return p, true
	}
	p, err := s.Issuer.ForceRegenerate()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not issue QR code")
		return qr.Payload{}, false
	}
	return p, true
}

func (s *Server) respondGlobal(w http.ResponseWriter, status int, p qr.Payload) {
	text, err := qr.Marshal(p)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "could not encode QR code")
		return
	}
	respond(w, status, GlobalQRResponse{
		Success:   true,
		Payload:   p,
		QRText:    text,
		ExpiresIn: int(s.Issuer.Remaining() / time.Second),
		State:     s.Issuer.State().String(),
	})
}
