package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/user"
	identitysvc "github.com/trackmyacademy/dashboard/services/identity"
)

// Backend is an in-memory academy backend served over HTTP.
// Callers are resolved from the subject of their (unverified) access token.
type Backend struct {
	*httptest.Server

	mu        sync.Mutex
	users     map[string]user.User
	academies []academy.Academy
	coaches   []academy.Coach
	students  []academy.Student
	sessions  []academy.Session
	fail      map[string]int // "METHOD /path" -> status
	calls     map[string]int // "METHOD /path" -> count
	nextID    int
}

func NewBackend(t *testing.T) *Backend {
	b := &Backend{
		users: make(map[string]user.User),
		fail:  make(map[string]int),
		calls: make(map[string]int),
	}
	b.Server = httptest.NewServer(b.routes())
	t.Cleanup(b.Close)
	return b
}

func (b *Backend) AddUser(usr user.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[usr.ID] = usr
}

func (b *Backend) AddAcademies(academies ...academy.Academy) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.academies = append(b.academies, academies...)
}

func (b *Backend) AddCoaches(coaches ...academy.Coach) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coaches = append(b.coaches, coaches...)
}

func (b *Backend) AddStudents(students ...academy.Student) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.students = append(b.students, students...)
}

func (b *Backend) AddSessions(sessions ...academy.Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = append(b.sessions, sessions...)
}

// FailWith makes every `method` request to `path` answer `status`. A 0 status clears the failure.
func (b *Backend) FailWith(method, path string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.fail, method+" "+path)
		return
	}
	b.fail[method+" "+path] = status
}

// Calls returns how many `method` requests were made to `path`.
func (b *Backend) Calls(method, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method+" "+path]
}

// Academies returns a copy of the stored academies.
func (b *Backend) Academies() []academy.Academy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]academy.Academy(nil), b.academies...)
}

func (b *Backend) newID(prefix string) string {
	b.nextID++
	return fmt.Sprintf("%s-%d", prefix, b.nextID)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, usr user.User)

func (b *Backend) routes() http.Handler {
	mux := http.NewServeMux()
	handle := func(pattern string, h handlerFunc, roles ...string) {
		mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
			b.mu.Lock()
			defer b.mu.Unlock()

			key := r.Method + " " + r.URL.Path
			b.calls[key]++
			if status, ok := b.fail[key]; ok {
				writeError(w, status, http.StatusText(status))
				return
			}

			claims, err := identitysvc.ParseToken(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "), nil)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			usr, ok := b.users[claims.Subject]
			if !ok {
				writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}
			if !usr.HasAnyRole(roles...) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			h(w, r, usr)
		})
	}

	mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.calls[r.Method+" "+r.URL.Path]++

		var su user.SignUp
		if err := json.NewDecoder(r.Body).Decode(&su); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, usr := range b.users {
			if usr.Email == su.Email {
				writeError(w, http.StatusConflict, "Email already registered")
				return
			}
		}
		usr := user.User{ID: b.newID("user"), Email: su.Email, Name: su.Name, Role: su.Role, AcademyID: su.AcademyID}
		b.users[usr.ID] = usr
		writeJSON(w, http.StatusCreated, usr)
	})

	handle("GET /api/auth/me", func(w http.ResponseWriter, _ *http.Request, usr user.User) {
		writeJSON(w, http.StatusOK, usr)
	})

	// academies
	handle("GET /api/super-admin/academies", func(w http.ResponseWriter, _ *http.Request, _ user.User) {
		writeJSON(w, http.StatusOK, b.academies)
	}, user.RoleSuperAdmin)
	handle("POST /api/super-admin/academies", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		var na academy.NewAcademy
		if err := json.NewDecoder(r.Body).Decode(&na); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, a := range b.academies {
			if strings.EqualFold(a.Name, na.Name) {
				writeError(w, http.StatusConflict, "Academy name already exists")
				return
			}
		}
		a := academy.Academy{
			ID:                     b.newID("academy"),
			Name:                   na.Name,
			Location:               na.Location,
			OwnerName:              na.OwnerName,
			AdminContact:           na.AdminContact,
			AdminEmail:             na.AdminEmail,
			StudentLimit:           na.StudentLimit,
			CoachLimit:             na.CoachLimit,
			SubscriptionStartDate:  na.SubscriptionStartDate,
			SubscriptionExpiryDate: na.SubscriptionExpiryDate,
			Branches:               na.Branches,
		}
		b.academies = append(b.academies, a)
		writeJSON(w, http.StatusCreated, a)
	}, user.RoleSuperAdmin)
	handle("GET /api/super-admin/academies/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		for _, a := range b.academies {
			if a.ID == r.PathValue("id") {
				writeJSON(w, http.StatusOK, a)
				return
			}
		}
		writeError(w, http.StatusNotFound, "Academy not found")
	}, user.RoleSuperAdmin)
	handle("PUT /api/super-admin/academies/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		var ua academy.UpdateAcademy
		if err := json.NewDecoder(r.Body).Decode(&ua); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for i, a := range b.academies {
			if a.ID == r.PathValue("id") {
				if ua.Name != "" {
					a.Name = ua.Name
				}
				if ua.Location != "" {
					a.Location = ua.Location
				}
				if ua.StudentLimit != 0 {
					a.StudentLimit = ua.StudentLimit
				}
				if ua.SubscriptionExpiryDate != nil {
					a.SubscriptionExpiryDate = *ua.SubscriptionExpiryDate
				}
				b.academies[i] = a
				writeJSON(w, http.StatusOK, a)
				return
			}
		}
		writeError(w, http.StatusNotFound, "Academy not found")
	}, user.RoleSuperAdmin)
	handle("DELETE /api/super-admin/academies/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		for i, a := range b.academies {
			if a.ID == r.PathValue("id") {
				b.academies = append(b.academies[:i], b.academies[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeError(w, http.StatusNotFound, "Academy not found")
	}, user.RoleSuperAdmin)
	handle("GET /api/academies", func(w http.ResponseWriter, _ *http.Request, usr user.User) {
		res := make([]academy.Academy, 0)
		for _, a := range b.academies {
			if a.ID == usr.AcademyID {
				res = append(res, a)
			}
		}
		writeJSON(w, http.StatusOK, res)
	})
	handle("POST /api/upload/logo", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		if _, fh, err := r.FormFile("file"); err != nil {
			writeError(w, http.StatusBadRequest, "file is required")
		} else {
			writeJSON(w, http.StatusOK, map[string]string{"url": "/uploads/" + fh.Filename})
		}
	}, user.RoleSuperAdmin)

	// people
	handle("GET /api/coaches", func(w http.ResponseWriter, _ *http.Request, usr user.User) {
		res := make([]academy.Coach, 0)
		for _, c := range b.coaches {
			if c.AcademyID == usr.AcademyID {
				res = append(res, c)
			}
		}
		writeJSON(w, http.StatusOK, res)
	}, user.RoleAdmin)
	handle("POST /api/coaches", func(w http.ResponseWriter, r *http.Request, usr user.User) {
		var nc academy.NewCoach
		if err := json.NewDecoder(r.Body).Decode(&nc); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		c := academy.Coach{ID: b.newID("coach"), Name: nc.Name, Email: nc.Email, Specialization: nc.Specialization, AcademyID: usr.AcademyID}
		b.coaches = append(b.coaches, c)
		writeJSON(w, http.StatusCreated, c)
	}, user.RoleAdmin)
	handle("GET /api/students", func(w http.ResponseWriter, _ *http.Request, usr user.User) {
		res := make([]academy.Student, 0)
		for _, s := range b.students {
			if s.AcademyID == usr.AcademyID {
				res = append(res, s)
			}
		}
		writeJSON(w, http.StatusOK, res)
	})
	handle("POST /api/students", func(w http.ResponseWriter, r *http.Request, usr user.User) {
		var ns academy.NewStudent
		if err := json.NewDecoder(r.Body).Decode(&ns); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, a := range b.academies {
			if a.ID == usr.AcademyID && a.StudentLimit > 0 && b.countStudents(a.ID) >= a.StudentLimit {
				writeError(w, http.StatusBadRequest, "Student limit reached")
				return
			}
		}
		s := academy.Student{
			ID:              b.newID("student"),
			Name:            ns.Name,
			Age:             ns.Age,
			EnrolledProgram: ns.EnrolledProgram,
			ParentContact:   ns.ParentContact,
			AcademyID:       usr.AcademyID,
			AssignedCoaches: ns.AssignedCoaches,
		}
		b.students = append(b.students, s)
		writeJSON(w, http.StatusCreated, s)
	}, user.RoleAdmin)

	// sessions
	handle("GET /api/sessions", func(w http.ResponseWriter, _ *http.Request, usr user.User) {
		res := make([]academy.Session, 0)
		for _, s := range b.sessions {
			if s.AcademyID == usr.AcademyID {
				res = append(res, s)
			}
		}
		writeJSON(w, http.StatusOK, res)
	})
	handle("POST /api/sessions", func(w http.ResponseWriter, r *http.Request, usr user.User) {
		var ns academy.NewSession
		if err := json.NewDecoder(r.Body).Decode(&ns); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s := academy.Session{
			ID:               b.newID("session"),
			Name:             ns.Name,
			Date:             ns.Date,
			StartTime:        ns.StartTime,
			EndTime:          ns.EndTime,
			Location:         ns.Location,
			SessionType:      ns.SessionType,
			Status:           ns.Status,
			AcademyID:        usr.AcademyID,
			CoachID:          ns.CoachID,
			AssignedStudents: ns.AssignedStudents,
		}
		b.sessions = append(b.sessions, s)
		writeJSON(w, http.StatusCreated, s)
	}, user.RoleAdmin)
	handle("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		for _, s := range b.sessions {
			if s.ID == r.PathValue("id") {
				writeJSON(w, http.StatusOK, s)
				return
			}
		}
		writeError(w, http.StatusNotFound, "Session not found")
	})
	handle("PUT /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		var us academy.UpdateSession
		if err := json.NewDecoder(r.Body).Decode(&us); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for i, s := range b.sessions {
			if s.ID == r.PathValue("id") {
				if us.Status != "" {
					s.Status = us.Status
				}
				if us.Name != "" {
					s.Name = us.Name
				}
				b.sessions[i] = s
				writeJSON(w, http.StatusOK, s)
				return
			}
		}
		writeError(w, http.StatusNotFound, "Session not found")
	}, user.RoleAdmin)

	// attendance & performance
	handle("POST /api/attendance", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		var na academy.NewAttendance
		if err := json.NewDecoder(r.Body).Decode(&na); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, academy.AttendanceRecord{
			ID: b.newID("attendance"), SessionID: na.SessionID, StudentID: na.StudentID, Status: na.Status, Notes: na.Notes,
		})
	}, user.RoleAdmin, user.RoleCoach)
	handle("GET /api/attendance/session/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		writeJSON(w, http.StatusOK, []academy.AttendanceRecord{
			{ID: "attendance-0", SessionID: r.PathValue("id"), StudentID: "student-0", Status: academy.AttendancePresent},
		})
	}, user.RoleAdmin, user.RoleCoach)
	handle("POST /api/performance", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		var np academy.NewPerformance
		if err := json.NewDecoder(r.Body).Decode(&np); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, academy.PerformanceRecord{
			ID: b.newID("performance"), StudentID: np.StudentID, SessionID: np.SessionID, Score: np.Score, Notes: np.Notes,
		})
	}, user.RoleAdmin, user.RoleCoach)
	handle("GET /api/performance/student/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		writeJSON(w, http.StatusOK, []academy.PerformanceRecord{{ID: "performance-0", StudentID: r.PathValue("id"), Score: 7.5}})
	})
	handle("GET /api/analytics/attendance/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		writeJSON(w, http.StatusOK, academy.AttendanceAnalytics{
			StudentID: r.PathValue("id"), TotalSessions: 4, Present: 3, Absent: 1, AttendanceRate: 75,
		})
	})
	handle("GET /api/analytics/performance/{id}", func(w http.ResponseWriter, r *http.Request, _ user.User) {
		writeJSON(w, http.StatusOK, academy.PerformanceAnalytics{
			StudentID: r.PathValue("id"), AverageScore: 7.5, LatestScore: 8,
			Trend: []academy.PerformancePoint{{Date: "2025-03-01", Score: 7}, {Date: "2025-03-08", Score: 8}},
		})
	})

	return mux
}

// countStudents must be called with the lock held.
func (b *Backend) countStudents(academyID string) int {
	var n int
	for _, s := range b.students {
		if s.AcademyID == academyID {
			n++
		}
	}
	return n
}
