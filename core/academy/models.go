package academy

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trackmyacademy/dashboard/core"
)

const DateLayout = "2006-01-02"

// Date is a nullable date. It decodes RFC 3339 timestamps as well as plain YYYY-MM-DD dates (read as UTC midnight).
type Date struct {
	null.Time
}

func DateFrom(t time.Time) Date {
	return Date{null.TimeFrom(t)}
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if s := string(data); s == "null" || s == `""` {
		d.Time = null.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decoding date")
	}
	for _, layout := range []string{time.RFC3339Nano, DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = null.TimeFrom(t)
			return nil
		}
	}
	return errors.Errorf("invalid date %q", s)
}

// MarshalJSON writes the date as YYYY-MM-DD, or null when unset.
func (d Date) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// String returns the date as YYYY-MM-DD, or "" when unset.
func (d Date) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Time.Format(DateLayout)
}

// orZero returns the pointed Date, or an unset one.
func (d *Date) orZero() Date {
	if d == nil {
		return Date{}
	}
	return *d
}

// unsetIfNull drops a Date that was sent as "" so that it is omitted again.
func unsetIfNull(d *Date) *Date {
	if d == nil || !d.Valid {
		return nil
	}
	return d
}

// Session types
const (
	SessionTraining   = "training"
	SessionMatch      = "match"
	SessionPractice   = "practice"
	SessionAssessment = "assessment"
)

// Session statuses
const (
	SessionScheduled = "scheduled"
	SessionOngoing   = "ongoing"
	SessionCompleted = "completed"
	SessionCancelled = "cancelled"
)

// Attendance statuses
const (
	AttendancePresent = "present"
	AttendanceLate    = "late"
	AttendanceAbsent  = "absent"
	AttendanceExcused = "excused"
)

// Academy is a tenant organization owning coaches, students and sessions.
// Its subscription status is derived (see Evaluate), never stored.
type Academy struct {
	ID                     string      `json:"id"`
	Name                   string      `json:"name"`
	Location               string      `json:"location"`
	OwnerName              string      `json:"owner_name"`
	AdminContact           string      `json:"admin_contact"`
	AdminEmail             string      `json:"admin_email"`
	StudentLimit           int         `json:"student_limit"`
	CoachLimit             int         `json:"coach_limit"`
	SubscriptionStartDate  Date        `json:"subscription_start_date"`
	SubscriptionExpiryDate Date        `json:"subscription_expiry_date"`
	LogoURL                null.String `json:"logo_url"`
	Branches               []string    `json:"branches"`
}

// Subscription evaluates the academy's subscription at `now`.
func (a Academy) Subscription(now time.Time) (Subscription, error) {
	return Evaluate(a.SubscriptionExpiryDate, now)
}

type Coach struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Specialization string `json:"specialization"`
	AcademyID      string `json:"academy_id"`
}

type Student struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Age              int      `json:"age"`
	EnrolledProgram  string   `json:"enrolled_program"`
	PerformanceScore float64  `json:"performance_score"` // 0 - 10
	ParentContact    string   `json:"parent_contact"`
	AcademyID        string   `json:"academy_id"`
	AssignedCoaches  []string `json:"assigned_coaches"`
}

type Session struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Date             string   `json:"date"`       // YYYY-MM-DD
	StartTime        string   `json:"start_time"` // HH:MM
	EndTime          string   `json:"end_time"`   // HH:MM
	Location         string   `json:"location"`
	MaxParticipants  null.Int `json:"max_participants"`
	SessionType      string   `json:"session_type"`
	Status           string   `json:"status"`
	AcademyID        string   `json:"academy_id"`
	CoachID          string   `json:"coach_id"`
	AssignedStudents []string `json:"assigned_students"`
}

// HasCoach reports whether the session is run by the given coach.
func (s Session) HasCoach(coachID string) bool {
	return coachID != "" && s.CoachID == coachID
}

// HasStudent reports whether the given student is assigned to the session.
func (s Session) HasStudent(studentID string) bool {
	for _, id := range s.AssignedStudents {
		if id == studentID {
			return true
		}
	}
	return false
}

type AttendanceRecord struct {
	ID        string `json:"id,omitempty"`
	SessionID string `json:"session_id"`
	StudentID string `json:"student_id"`
	Status    string `json:"status"`
	Notes     string `json:"notes"`
}

type PerformanceRecord struct {
	ID         string    `json:"id,omitempty"`
	StudentID  string    `json:"student_id"`
	SessionID  string    `json:"session_id,omitempty"`
	Score      float64   `json:"score"` // 0 - 10
	Notes      string    `json:"notes"`
	RecordedAt time.Time `json:"recorded_at"`
}

type AttendanceAnalytics struct {
	StudentID      string  `json:"student_id"`
	TotalSessions  int     `json:"total_sessions"`
	Present        int     `json:"present"`
	Late           int     `json:"late"`
	Absent         int     `json:"absent"`
	Excused        int     `json:"excused"`
	AttendanceRate float64 `json:"attendance_rate"` // percentage
}

type PerformancePoint struct {
	Date  string  `json:"date"`
	Score float64 `json:"score"`
}

type PerformanceAnalytics struct {
	StudentID    string             `json:"student_id"`
	AverageScore float64            `json:"average_score"`
	LatestScore  float64            `json:"latest_score"`
	Trend        []PerformancePoint `json:"trend"`
}

// NewAcademy contains information needed to create a new Academy.
type NewAcademy struct {
	Name                   string   `json:"name" validate:"required,notblank"`
	Location               string   `json:"location" validate:"required"`
	OwnerName              string   `json:"owner_name" validate:"required"`
	AdminContact           string   `json:"admin_contact" validate:"required"`
	AdminEmail             string   `json:"admin_email" validate:"required,email"`
	StudentLimit           int      `json:"student_limit" validate:"required,gt=0"`
	CoachLimit             int      `json:"coach_limit" validate:"required,gt=0"`
	SubscriptionStartDate  Date     `json:"subscription_start_date"`
	SubscriptionExpiryDate Date     `json:"subscription_expiry_date"`
	LogoURL                string   `json:"logo_url,omitempty" validate:"omitempty,url"`
	Branches               []string `json:"branches" validate:"omitempty,unique,notblank"`
}

func (na *NewAcademy) clean() {
	na.Name = core.CleanString(na.Name)
	na.Location = core.CleanString(na.Location)
	na.OwnerName = core.CleanString(na.OwnerName)
	na.AdminContact = core.CleanString(na.AdminContact)
	na.AdminEmail = core.CleanString(na.AdminEmail, true /* lower */)
	na.LogoURL = core.CleanString(na.LogoURL)
	na.Branches = cleanStrings(na.Branches)
}

// UpdateAcademy defines what information may be provided to modify an existing Academy.
// Blank and nil fields are omitted, and left unchanged by the backend.
type UpdateAcademy struct {
	Name                   string   `json:"name,omitempty"`
	Location               string   `json:"location,omitempty"`
	OwnerName              string   `json:"owner_name,omitempty"`
	AdminContact           string   `json:"admin_contact,omitempty"`
	AdminEmail             string   `json:"admin_email,omitempty" validate:"omitempty,email"`
	StudentLimit           int      `json:"student_limit,omitempty" validate:"omitempty,gt=0"`
	CoachLimit             int      `json:"coach_limit,omitempty" validate:"omitempty,gt=0"`
	SubscriptionStartDate  *Date    `json:"subscription_start_date,omitempty"`
	SubscriptionExpiryDate *Date    `json:"subscription_expiry_date,omitempty"`
	LogoURL                string   `json:"logo_url,omitempty" validate:"omitempty,url"`
	Branches               []string `json:"branches,omitempty" validate:"omitempty,unique,notblank"`
}

func (ua *UpdateAcademy) clean() {
	ua.Name = core.CleanString(ua.Name)
	ua.Location = core.CleanString(ua.Location)
	ua.OwnerName = core.CleanString(ua.OwnerName)
	ua.AdminContact = core.CleanString(ua.AdminContact)
	ua.AdminEmail = core.CleanString(ua.AdminEmail, true /* lower */)
	ua.LogoURL = core.CleanString(ua.LogoURL)
	ua.Branches = cleanStrings(ua.Branches)
	ua.SubscriptionStartDate = unsetIfNull(ua.SubscriptionStartDate)
	ua.SubscriptionExpiryDate = unsetIfNull(ua.SubscriptionExpiryDate)
}

type NewCoach struct {
	Name           string `json:"name" validate:"required,notblank"`
	Email          string `json:"email" validate:"required,email"`
	Specialization string `json:"specialization" validate:"required"`
	AcademyID      string `json:"academy_id"`
}

func (nc *NewCoach) clean() {
	nc.Name = core.CleanString(nc.Name)
	nc.Email = core.CleanString(nc.Email, true /* lower */)
	nc.Specialization = core.CleanString(nc.Specialization)
}

type NewStudent struct {
	Name             string   `json:"name" validate:"required,notblank"`
	Age              int      `json:"age" validate:"required,gt=0,lte=100"`
	EnrolledProgram  string   `json:"enrolled_program" validate:"required"`
	PerformanceScore float64  `json:"performance_score" validate:"gte=0,lte=10"`
	ParentContact    string   `json:"parent_contact" validate:"required"`
	AcademyID        string   `json:"academy_id"`
	AssignedCoaches  []string `json:"assigned_coaches" validate:"omitempty,unique"`
}

func (ns *NewStudent) clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.EnrolledProgram = core.CleanString(ns.EnrolledProgram)
	ns.ParentContact = core.CleanString(ns.ParentContact)
	ns.AssignedCoaches = cleanStrings(ns.AssignedCoaches)
}

type NewSession struct {
	Name             string   `json:"name" validate:"required,notblank"`
	Description      string   `json:"description" validate:"max=2000"`
	Date             string   `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime        string   `json:"start_time" validate:"required,datetime=15:04"`
	EndTime          string   `json:"end_time" validate:"required,datetime=15:04"`
	Location         string   `json:"location" validate:"required"`
	MaxParticipants  null.Int `json:"max_participants"`
	SessionType      string   `json:"session_type" validate:"required,oneof=training match practice assessment"`
	Status           string   `json:"status" validate:"omitempty,oneof=scheduled ongoing completed cancelled"`
	AcademyID        string   `json:"academy_id"`
	CoachID          string   `json:"coach_id" validate:"required"`
	AssignedStudents []string `json:"assigned_students" validate:"omitempty,unique"`
}

func (ns *NewSession) clean() {
	ns.Name = core.CleanString(ns.Name)
	ns.Description = core.CleanString(ns.Description)
	ns.Date = core.CleanString(ns.Date)
	ns.StartTime = core.CleanString(ns.StartTime)
	ns.EndTime = core.CleanString(ns.EndTime)
	ns.Location = core.CleanString(ns.Location)
	ns.SessionType = core.CleanString(ns.SessionType, true /* lower */)
	ns.Status = core.CleanString(ns.Status, true /* lower */)
	if ns.Status == "" {
		ns.Status = SessionScheduled
	}
	ns.AssignedStudents = cleanStrings(ns.AssignedStudents)
}

// UpdateSession defines what information may be provided to modify an existing Session.
type UpdateSession struct {
	Name             string    `json:"name,omitempty"`
	Description      string    `json:"description,omitempty" validate:"max=2000"`
	Date             string    `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	StartTime        string    `json:"start_time,omitempty" validate:"required_with=EndTime,omitempty,datetime=15:04"`
	EndTime          string    `json:"end_time,omitempty" validate:"required_with=StartTime,omitempty,datetime=15:04"`
	Location         string    `json:"location,omitempty"`
	MaxParticipants  *null.Int `json:"max_participants,omitempty"`
	SessionType      string    `json:"session_type,omitempty" validate:"omitempty,oneof=training match practice assessment"`
	Status           string    `json:"status,omitempty" validate:"omitempty,oneof=scheduled ongoing completed cancelled"`
	CoachID          string    `json:"coach_id,omitempty"`
	AssignedStudents []string  `json:"assigned_students,omitempty" validate:"omitempty,unique"`
}

func (us *UpdateSession) clean() {
	us.Name = core.CleanString(us.Name)
	us.Description = core.CleanString(us.Description)
	us.Date = core.CleanString(us.Date)
	us.StartTime = core.CleanString(us.StartTime)
	us.EndTime = core.CleanString(us.EndTime)
	us.Location = core.CleanString(us.Location)
	us.SessionType = core.CleanString(us.SessionType, true /* lower */)
	us.Status = core.CleanString(us.Status, true /* lower */)
	us.AssignedStudents = cleanStrings(us.AssignedStudents)
}

type NewAttendance struct {
	SessionID string `json:"session_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=present late absent excused"`
	Notes     string `json:"notes" validate:"max=500"`
}

func (na *NewAttendance) clean() {
	na.Status = core.CleanString(na.Status, true /* lower */)
	na.Notes = core.CleanString(na.Notes)
}

type NewPerformance struct {
	StudentID string  `json:"student_id" validate:"required"`
	SessionID string  `json:"session_id,omitempty"`
	Score     float64 `json:"score" validate:"gte=0,lte=10"`
	Notes     string  `json:"notes" validate:"max=500"`
}

func (np *NewPerformance) clean() {
	np.Notes = core.CleanString(np.Notes)
}

func cleanStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	cleaned := make([]string, 0, len(ss))
	for _, s := range ss {
		cleaned = append(cleaned, core.CleanString(s))
	}
	return cleaned
}
