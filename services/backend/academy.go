package backendsvc

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trackmyacademy/dashboard/core/academy"
)

// ListAcademies lists every academy (super-admin scope).
func (c *Client) ListAcademies(ctx context.Context, token string) ([]academy.Academy, error) {
	academies := make([]academy.Academy, 0)
	err := c.get(ctx, token, "/api/super-admin/academies", &academies)
	return academies, errors.Wrap(err, "listing academies")
}

// ListTenantAcademies lists the academies visible to the caller (their own, for an admin).
func (c *Client) ListTenantAcademies(ctx context.Context, token string) ([]academy.Academy, error) {
	academies := make([]academy.Academy, 0)
	err := c.get(ctx, token, "/api/academies", &academies)
	return academies, errors.Wrap(err, "listing tenant academies")
}

func (c *Client) GetAcademy(ctx context.Context, token, id string) (academy.Academy, error) {
	var a academy.Academy
	err := c.get(ctx, token, idPath("/api/super-admin/academies/%s", id), &a)
	return a, errors.Wrap(err, "getting academy")
}

func (c *Client) CreateAcademy(ctx context.Context, token string, na academy.NewAcademy) (academy.Academy, error) {
	var a academy.Academy
	err := c.send(ctx, rest.Post, token, "/api/super-admin/academies", na, &a)
	return a, errors.Wrap(err, "creating academy")
}

func (c *Client) UpdateAcademy(ctx context.Context, token, id string, ua academy.UpdateAcademy) (academy.Academy, error) {
	var a academy.Academy
	err := c.send(ctx, rest.Put, token, idPath("/api/super-admin/academies/%s", id), ua, &a)
	return a, errors.Wrap(err, "updating academy")
}

func (c *Client) DeleteAcademy(ctx context.Context, token, id string) error {
	err := c.send(ctx, rest.Delete, token, idPath("/api/super-admin/academies/%s", id), nil, nil)
	return errors.Wrap(err, "deleting academy")
}

func (c *Client) ListCoaches(ctx context.Context, token string) ([]academy.Coach, error) {
	coaches := make([]academy.Coach, 0)
	err := c.get(ctx, token, "/api/coaches", &coaches)
	return coaches, errors.Wrap(err, "listing coaches")
}

func (c *Client) CreateCoach(ctx context.Context, token string, nc academy.NewCoach) (academy.Coach, error) {
	var coach academy.Coach
	err := c.send(ctx, rest.Post, token, "/api/coaches", nc, &coach)
	return coach, errors.Wrap(err, "creating coach")
}

func (c *Client) ListStudents(ctx context.Context, token string) ([]academy.Student, error) {
	students := make([]academy.Student, 0)
	err := c.get(ctx, token, "/api/students", &students)
	return students, errors.Wrap(err, "listing students")
}

func (c *Client) CreateStudent(ctx context.Context, token string, ns academy.NewStudent) (academy.Student, error) {
	var s academy.Student
	err := c.send(ctx, rest.Post, token, "/api/students", ns, &s)
	return s, errors.Wrap(err, "creating student")
}

func (c *Client) ListSessions(ctx context.Context, token string) ([]academy.Session, error) {
	sessions := make([]academy.Session, 0)
	err := c.get(ctx, token, "/api/sessions", &sessions)
	return sessions, errors.Wrap(err, "listing sessions")
}

func (c *Client) GetSession(ctx context.Context, token, id string) (academy.Session, error) {
	var s academy.Session
	err := c.get(ctx, token, idPath("/api/sessions/%s", id), &s)
	return s, errors.Wrap(err, "getting session")
}

func (c *Client) CreateSession(ctx context.Context, token string, ns academy.NewSession) (academy.Session, error) {
	var s academy.Session
	err := c.send(ctx, rest.Post, token, "/api/sessions", ns, &s)
	return s, errors.Wrap(err, "creating session")
}

func (c *Client) UpdateSession(ctx context.Context, token, id string, us academy.UpdateSession) (academy.Session, error) {
	var s academy.Session
	err := c.send(ctx, rest.Put, token, idPath("/api/sessions/%s", id), us, &s)
	return s, errors.Wrap(err, "updating session")
}

func (c *Client) RecordAttendance(ctx context.Context, token string, na academy.NewAttendance) (academy.AttendanceRecord, error) {
	var rec academy.AttendanceRecord
	err := c.send(ctx, rest.Post, token, "/api/attendance", na, &rec)
	return rec, errors.Wrap(err, "recording attendance")
}

func (c *Client) ListSessionAttendance(ctx context.Context, token, sessionID string) ([]academy.AttendanceRecord, error) {
	records := make([]academy.AttendanceRecord, 0)
	err := c.get(ctx, token, idPath("/api/attendance/session/%s", sessionID), &records)
	return records, errors.Wrap(err, "listing attendance")
}

func (c *Client) RecordPerformance(ctx context.Context, token string, np academy.NewPerformance) (academy.PerformanceRecord, error) {
	var rec academy.PerformanceRecord
	err := c.send(ctx, rest.Post, token, "/api/performance", np, &rec)
	return rec, errors.Wrap(err, "recording performance")
}

func (c *Client) ListStudentPerformance(ctx context.Context, token, studentID string) ([]academy.PerformanceRecord, error) {
	records := make([]academy.PerformanceRecord, 0)
	err := c.get(ctx, token, idPath("/api/performance/student/%s", studentID), &records)
	return records, errors.Wrap(err, "listing performance")
}

func (c *Client) AttendanceAnalytics(ctx context.Context, token, studentID string) (academy.AttendanceAnalytics, error) {
	var an academy.AttendanceAnalytics
	err := c.get(ctx, token, idPath("/api/analytics/attendance/%s", studentID), &an)
	return an, errors.Wrap(err, "getting attendance analytics")
}

func (c *Client) PerformanceAnalytics(ctx context.Context, token, studentID string) (academy.PerformanceAnalytics, error) {
	var an academy.PerformanceAnalytics
	err := c.get(ctx, token, idPath("/api/analytics/performance/%s", studentID), &an)
	return an, errors.Wrap(err, "getting performance analytics")
}
