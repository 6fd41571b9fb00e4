package models

import (
	"encoding/json"
	"strings"
	"time"
)

// UserRole defines the type of user account.
type UserRole string

const (
	RoleAdmin           UserRole = "ADMIN"
	RoleSuperAdmin      UserRole = "SUPERADMIN"
	RoleManager         UserRole = "MANAGER"
	RoleReceptionist    UserRole = "RECEPTIONIST"
	RolePersonalTrainer UserRole = "PERSONALTRAINER"
	RoleGeneralTrainer  UserRole = "GENERALTRAINER"
	RoleHousekeeping    UserRole = "HOUSEKEEPING"
	RoleMember          UserRole = "MEMBER"
)

// AllRoles lists every role a user can hold.
var AllRoles = []UserRole{
	RoleAdmin, RoleSuperAdmin, RoleManager, RoleReceptionist,
	RolePersonalTrainer, RoleGeneralTrainer, RoleHousekeeping, RoleMember,
}

// NormalizeRole upper-cases and trims a role string. Roles arrive in
// mixed case from older clients ("admin", "Manager").
func NormalizeRole(s string) UserRole {
	return UserRole(strings.ToUpper(strings.TrimSpace(s)))
}

// Valid reports whether r is a known role.
func (r UserRole) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// IsStaff reports whether r may act on attendance for other people.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleSuperAdmin, RoleManager, RoleReceptionist,
		RolePersonalTrainer, RoleGeneralTrainer:
		return true
	}
	return false
}

// AttendanceMode is the channel a session was opened through.
type AttendanceMode string

const (
	ModeQRCode AttendanceMode = "QR Code"
	ModeManual AttendanceMode = "Manual"
	ModeApp    AttendanceMode = "App"
)

// Valid reports whether m is a known mode.
func (m AttendanceMode) Valid() bool {
	return m == ModeQRCode || m == ModeManual || m == ModeApp
}

// AttendanceStatus is derived from CheckOut; it is never stored.
type AttendanceStatus string

const (
	AttendanceActive    AttendanceStatus = "Active"
	AttendanceCompleted AttendanceStatus = "Completed"
)

// User represents staff and member accounts alike.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	BranchID     *int64    `json:"branchId,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Branch is one gym location.
type Branch struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// AttendanceRecord is one check-in session of a member (or staff member)
// at a branch. CheckIn is set on creation; CheckOut is set exactly once.
type AttendanceRecord struct {
	ID       int64          `json:"id"`
	MemberID string         `json:"memberId"`
	BranchID int64          `json:"branchId"`
	CheckIn  time.Time      `json:"checkIn"`
	CheckOut *time.Time     `json:"checkOut,omitempty"`
	Mode     AttendanceMode `json:"mode"`
	Notes    string         `json:"notes"`
}

// Status is Active while CheckOut is absent, Completed afterwards.
// Any status string a server sends alongside is display-only.
func (a AttendanceRecord) Status() AttendanceStatus {
	if a.CheckOut == nil {
		return AttendanceActive
	}
	return AttendanceCompleted
}

// MarshalJSON adds the derived computedStatus field.
func (a AttendanceRecord) MarshalJSON() ([]byte, error) {
	type plain AttendanceRecord
	return json.Marshal(struct {
		plain
		ComputedStatus AttendanceStatus `json:"computedStatus"`
	}{plain(a), a.Status()})
}

// QRCodeIssuance is one entry in the QR audit registry.
type QRCodeIssuance struct {
	ID        string    `json:"id"`
	BranchID  *int64    `json:"branchId,omitempty"`
	Nonce     string    `json:"nonce"`
	Purpose   string    `json:"purpose"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	IssuedBy  string    `json:"issuedBy,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ---- Request / Response DTOs ----

type RegisterRequest struct {
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8"`
	Name     string   `json:"name" validate:"required"`
	Role     UserRole `json:"role"`
	BranchID *int64   `json:"branchId,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type CreateBranchRequest struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address"`
}

// CheckInRequest is the body of POST /memberattendence/checkin.
type CheckInRequest struct {
	MemberID string         `json:"memberId" validate:"required"`
	BranchID int64          `json:"branchId" validate:"required,gt=0"`
	Mode     AttendanceMode `json:"mode" validate:"required"`
	Notes    string         `json:"notes"`
}

// CheckOutRequest is the body of PUT|POST /memberattendence/checkout/{id}.
type CheckOutRequest struct {
	MemberID string `json:"memberId,omitempty"`
	BranchID int64  `json:"branchId" validate:"required,gt=0"`
}

// AttendanceResponse is the envelope of the check-in and checkout endpoints.
type AttendanceResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Attendance *AttendanceRecord `json:"attendance,omitempty"`
}

// AttendanceListResponse is the envelope of GET /memberattendence/{subjectId}.
type AttendanceListResponse struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Attendance []AttendanceRecord `json:"attendance"`
}

// GenerateQRRequest is the body of POST /qrcode/generate.
type GenerateQRRequest struct {
	BranchID  *int64    `json:"branchId,omitempty"`
	Nonce     string    `json:"nonce" validate:"required,min=16,alphanum"`
	Purpose   string    `json:"purpose,omitempty"`
	IssuedAt  time.Time `json:"issuedAt" validate:"required"`
	ExpiresAt time.Time `json:"expiresAt" validate:"required"`
}
