package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/Elizabethomito/gymdesk/backend/internal/models"
	"github.com/Elizabethomito/gymdesk/backend/internal/qr"
)

// ErrAlreadyCheckedIn matches a *ConflictError: the subject already has an
// open session at the branch.
var ErrAlreadyCheckedIn = errors.New("already checked in")

// ConflictError is returned by CheckIn when an open session exists. It is
// a recoverable branch, not a failure: the caller should offer to check
// the open session out.
type ConflictError struct {
	Message string
	// Open is the session that blocks the check-in, when the server sent it.
	Open *models.AttendanceRecord
}

func (e *ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrAlreadyCheckedIn.Error()
}

func (e *ConflictError) Is(target error) bool { return target == ErrAlreadyCheckedIn }

// Client talks to the attendance service.
type Client struct {
	Transport *Transport
	now       func() time.Time
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL, token string) *Client {
	return &Client{Transport: NewTransport(baseURL, token), now: time.Now}
}

// SetToken replaces the bearer token used on every request.
func (c *Client) SetToken(token string) { c.Transport.AuthToken = token }

// Login exchanges credentials for a session token and stores it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (models.LoginResponse, error) {
	var resp models.LoginResponse
	err := c.Transport.Do(ctx, http.MethodPost, "/api/auth/login",
		models.LoginRequest{Email: email, Password: password}, &resp)
	if err != nil {
		return models.LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// CheckIn opens a session. A 409 answer becomes a *ConflictError.
func (c *Client) CheckIn(ctx context.Context, req models.CheckInRequest) (models.AttendanceRecord, error) {
	var resp models.AttendanceResponse
	err := c.Transport.Do(ctx, http.MethodPost, "/memberattendence/checkin", req, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return models.AttendanceRecord{}, c.conflict(ctx, req, apiErr)
		}
		return models.AttendanceRecord{}, fmt.Errorf("check in: %w", err)
	}
	if !resp.Success || resp.Attendance == nil {
		return models.AttendanceRecord{}, fmt.Errorf("check in: %s", fallback(resp.Message, "service did not confirm the check-in"))
	}
	return *resp.Attendance, nil
}

// conflict builds the ConflictError. The open session comes from the 409
// body when the service includes it, otherwise from the subject's history.
func (c *Client) conflict(ctx context.Context, req models.CheckInRequest, apiErr *APIError) error {
	ce := &ConflictError{Message: apiErr.Message}
	var env models.AttendanceResponse
	if json.Unmarshal(apiErr.Body, &env) == nil && env.Attendance != nil {
		ce.Open = env.Attendance
		return ce
	}
	records, err := c.History(ctx, req.MemberID)
	if err != nil {
		return ce
	}
	for i := range records {
		r := records[i]
		if r.BranchID == req.BranchID && r.Status() == models.AttendanceActive {
			ce.Open = &r
			break
		}
	}
	return ce
}

// CheckOut closes session id. The service is asked with PUT; if the
// transport rejects the verb (405) the same request is retried once with
// POST. No other retry happens.
func (c *Client) CheckOut(ctx context.Context, id int64, req models.CheckOutRequest) (models.AttendanceRecord, error) {
	path := fmt.Sprintf("/memberattendence/checkout/%d", id)

	var resp models.AttendanceResponse
	err := c.Transport.Do(ctx, http.MethodPut, path, req, &resp)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusMethodNotAllowed {
		resp = models.AttendanceResponse{}
		err = c.Transport.Do(ctx, http.MethodPost, path, req, &resp)
	}
	if err != nil {
		return models.AttendanceRecord{}, fmt.Errorf("check out: %w", err)
	}
	if !resp.Success {
		return models.AttendanceRecord{}, fmt.Errorf("check out: %s", fallback(resp.Message, "service did not confirm the checkout"))
	}
	if resp.Attendance != nil {
		return *resp.Attendance, nil
	}

	// Older deployments answer {success, message} only.
	now := c.now().UTC()
	return models.AttendanceRecord{ID: id, MemberID: req.MemberID, BranchID: req.BranchID, CheckOut: &now}, nil
}

// History lists a subject's sessions, newest first.
func (c *Client) History(ctx context.Context, subjectID string) ([]models.AttendanceRecord, error) {
	var resp models.AttendanceListResponse
	err := c.Transport.Do(ctx, http.MethodGet, "/memberattendence/"+url.PathEscape(subjectID), nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("attendance history: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("attendance history: %s", fallback(resp.Message, "request was not successful"))
	}
	return resp.Attendance, nil
}

// ReportIssuance records a QR issuance in the audit registry. It satisfies
// qr.AuditReporter; callers treat failures as non-fatal.
func (c *Client) ReportIssuance(ctx context.Context, p qr.Payload) error {
	req := models.GenerateQRRequest{
		BranchID: p.BranchID,
		Nonce:    p.Nonce,
		Purpose:  string(p.Purpose),
		IssuedAt: p.IssuedAt,
	}
	if p.ExpiresAt != nil {
		req.ExpiresAt = *p.ExpiresAt
	}
	if err := c.Transport.Do(ctx, http.MethodPost, "/qrcode/generate", req, nil); err != nil {
		return fmt.Errorf("report qr issuance: %w", err)
	}
	return nil
}

// UserMessage returns the text to show for a failed call: the server's
// message when there is one, otherwise a generic line.
func UserMessage(err error) string {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return "You are already checked in at this branch."
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "Could not reach the attendance service. Check your connection and try again."
	}
	return "Something went wrong. Please try again."
}

func fallback(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
