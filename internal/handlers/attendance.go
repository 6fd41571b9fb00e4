package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/Elizabethomito/gymdesk/backend/internal/middleware"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const attendanceColumns = `id, member_id, branch_id, check_in, check_out, mode, notes`

func scanAttendance(row rowScanner) (models.AttendanceRecord, error) {
	var (
		rec      models.AttendanceRecord
		checkOut sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.MemberID, &rec.BranchID, &rec.CheckIn, &checkOut, &rec.Mode, &rec.Notes); err != nil {
		return models.AttendanceRecord{}, err
	}
	if checkOut.Valid {
		t := checkOut.Time
		rec.CheckOut = &t
	}
	return rec, nil
}

// callerMayActFor reports whether the caller may read or change the
// attendance of subjectID. Staff act for anyone; everyone else only for
// themselves.
func callerMayActFor(r *http.Request, subjectID string) bool {
	if models.NormalizeRole(middleware.GetRole(r.Context())).IsStaff() {
		return true
	}
	return middleware.GetUserID(r.Context()) == subjectID
}

// CheckIn handles POST /memberattendence/checkin
//
// Opens a session for (memberId, branchId). A subject can hold at most
// one open session per branch: when one exists the answer is 409 and
// carries the open record, so the client can offer to check it out.
// The partial unique index open_session_per_branch backs the explicit
// lookup below when two check-ins race.
func (s *Server) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req models.CheckInRequest
	if err := decode(r, &req); err != nil {
		attendanceError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Mode == "" {
		req.Mode = models.ModeManual
	}
	if err := validate.Struct(req); err != nil {
		attendanceError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if !req.Mode.Valid() {
		attendanceError(w, http.StatusBadRequest, "mode must be one of 'QR Code', 'Manual', 'App'")
		return
	}
	if !callerMayActFor(r, req.MemberID) {
		attendanceError(w, http.StatusForbidden, "members can only check themselves in")
		return
	}
	if !s.userExists(r, req.MemberID) {
		attendanceError(w, http.StatusNotFound, "member not found")
		return
	}
	if !s.branchExists(r, req.BranchID) {
		attendanceError(w, http.StatusNotFound, "branch not found")
		return
	}

	if open, err := s.openSession(r, req.MemberID, req.BranchID); err == nil {
		respondAttendance(w, http.StatusConflict, "Member is already checked in at this branch", &open)
		return
	} else if !errors.Is(err, sql.ErrNoRows) {
		attendanceError(w, http.StatusInternalServerError, "database error")
		return
	}

	now := s.clock()
	res, err := s.DB.ExecContext(r.Context(),
		`INSERT INTO member_attendance (member_id, branch_id, check_in, mode, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		req.MemberID, req.BranchID, now, req.Mode, req.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent check-in.
			if open, err := s.openSession(r, req.MemberID, req.BranchID); err == nil {
				respondAttendance(w, http.StatusConflict, "Member is already checked in at this branch", &open)
				return
			}
		}
		attendanceError(w, http.StatusInternalServerError, "could not record check-in")
		return
	}
	id, err := res.LastInsertId()
	if err != nil {
		attendanceError(w, http.StatusInternalServerError, "could not record check-in")
		return
	}

	rec := models.AttendanceRecord{
		ID:       id,
		MemberID: req.MemberID,
		BranchID: req.BranchID,
		CheckIn:  now,
		Mode:     req.Mode,
		Notes:    req.Notes,
	}
	s.reqLog(r).Info("checked in",
		"attendance_id", rec.ID, "member_id", rec.MemberID, "branch_id", rec.BranchID, "mode", rec.Mode,
		"by", middleware.GetUserID(r.Context()))
	respondAttendance(w, http.StatusCreated, "Checked in successfully", &rec)
}

// CheckOut handles PUT and POST /memberattendence/checkout/{attendanceId}
//
// Both verbs are routed to the same handler; older clients only know POST.
// checkOut is set exactly once: the UPDATE only matches rows whose
// check_out is still NULL.
func (s *Server) CheckOut(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("attendanceId"), 10, 64)
	if err != nil {
		attendanceError(w, http.StatusBadRequest, "invalid attendance id")
		return
	}

	var req models.CheckOutRequest
	if err := decode(r, &req); err != nil {
		attendanceError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		attendanceError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	rec, err := scanAttendance(s.DB.QueryRowContext(r.Context(),
		`SELECT `+attendanceColumns+` FROM member_attendance WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			attendanceError(w, http.StatusNotFound, "attendance record not found")
			return
		}
		attendanceError(w, http.StatusInternalServerError, "database error")
		return
	}

	if !callerMayActFor(r, rec.MemberID) {
		attendanceError(w, http.StatusForbidden, "members can only check themselves out")
		return
	}
	if req.MemberID != "" && req.MemberID != rec.MemberID {
		attendanceError(w, http.StatusBadRequest, "attendance record belongs to another member")
		return
	}
	if req.BranchID != rec.BranchID {
		attendanceError(w, http.StatusBadRequest, "attendance record belongs to another branch")
		return
	}
	if rec.CheckOut != nil {
		respondAttendance(w, http.StatusConflict, "Member has already checked out", &rec)
		return
	}

	now := s.clock()
	res, err := s.DB.ExecContext(r.Context(),
		`UPDATE member_attendance SET check_out = ? WHERE id = ? AND check_out IS NULL`, now, id)
	if err != nil {
		attendanceError(w, http.StatusInternalServerError, "could not record checkout")
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		attendanceError(w, http.StatusConflict, "Member has already checked out")
		return
	}

	rec.CheckOut = &now
	s.reqLog(r).Info("checked out",
		"attendance_id", rec.ID, "member_id", rec.MemberID, "branch_id", rec.BranchID,
		"by", middleware.GetUserID(r.Context()))
	respondAttendance(w, http.StatusOK, "Checked out successfully", &rec)
}

// History handles GET /memberattendence/{subjectId}
//
// Returns every session of the subject, newest first. The list is
// [] (never null) when there are none.
func (s *Server) History(w http.ResponseWriter, r *http.Request) {
	subjectID := r.PathValue("subjectId")
	if !callerMayActFor(r, subjectID) {
		respond(w, http.StatusForbidden, models.AttendanceListResponse{
			Message: "members can only view their own attendance", Attendance: []models.AttendanceRecord{},
		})
		return
	}

	records, err := s.listAttendance(r, `WHERE member_id = ? ORDER BY check_in DESC, id DESC`, subjectID)
	if err != nil {
		respond(w, http.StatusInternalServerError, models.AttendanceListResponse{
			Message: "database error", Attendance: []models.AttendanceRecord{},
		})
		return
	}
	respond(w, http.StatusOK, models.AttendanceListResponse{Success: true, Attendance: records})
}

// DeleteAttendance handles DELETE /memberattendence/{attendanceId}  (admin only)
//
// Administrative correction of a bad record. Every delete is logged.
func (s *Server) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("attendanceId"), 10, 64)
	if err != nil {
		attendanceError(w, http.StatusBadRequest, "invalid attendance id")
		return
	}

	rec, err := scanAttendance(s.DB.QueryRowContext(r.Context(),
		`SELECT `+attendanceColumns+` FROM member_attendance WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			attendanceError(w, http.StatusNotFound, "attendance record not found")
			return
		}
		attendanceError(w, http.StatusInternalServerError, "database error")
		return
	}

	if _, err := s.DB.ExecContext(r.Context(), `DELETE FROM member_attendance WHERE id = ?`, id); err != nil {
		attendanceError(w, http.StatusInternalServerError, "could not delete attendance record")
		return
	}

	s.reqLog(r).Warn("attendance deleted",
		"attendance_id", rec.ID, "member_id", rec.MemberID, "branch_id", rec.BranchID,
		"check_in", rec.CheckIn, "by", middleware.GetUserID(r.Context()))
	respondAttendance(w, http.StatusOK, "Attendance record deleted", &rec)
}

// openSession returns the open record of (memberID, branchID), or sql.ErrNoRows.
func (s *Server) openSession(r *http.Request, memberID string, branchID int64) (models.AttendanceRecord, error) {
	return scanAttendance(s.DB.QueryRowContext(r.Context(),
		`SELECT `+attendanceColumns+` FROM member_attendance
		 WHERE member_id = ? AND branch_id = ? AND check_out IS NULL`, memberID, branchID))
}

// listAttendance runs SELECT attendanceColumns with the given tail.
func (s *Server) listAttendance(r *http.Request, tail string, args ...any) ([]models.AttendanceRecord, error) {
	rows, err := s.DB.QueryContext(r.Context(),
		`SELECT `+attendanceColumns+` FROM member_attendance `+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.AttendanceRecord{}
	for rows.Next() {
		rec, err := scanAttendance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Server) userExists(r *http.Request, id string) bool {
	var one int
	err := s.DB.QueryRowContext(r.Context(), `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	return err == nil
}
