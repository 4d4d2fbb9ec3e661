package backendsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/user"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conf := core.NewTestConfig()
	conf.Backend.BaseURL = srv.URL + "/"
	return NewClient(conf), srv
}

func TestClient_ListAcademies(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/super-admin/academies", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `[
			{"id": "a1", "name": "Blue Lions FC", "subscription_expiry_date": "2025-03-15"},
			{"id": "a2", "name": "Acadia", "subscription_expiry_date": null}
		]`)
	})

	academies, err := client.ListAcademies(context.Background(), "tok")
	require.NoError(t, err)
	if assert.Len(t, academies, 2) {
		assert.Equal(t, "2025-03-15", academies[0].SubscriptionExpiryDate.String())
		assert.False(t, academies[1].SubscriptionExpiryDate.Valid)
	}
}

func TestClient_emptyTokenFailsFast(t *testing.T) {
	calls := 0
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })
	ctx := context.Background()

	_, err := client.ListSessions(ctx, "")
	assert.Equal(t, core.ErrUnauthorized, errors.Cause(err))
	_, err = client.Me(ctx, "")
	assert.True(t, core.IsUnauthorized(err))
	_, err = client.UploadLogo(ctx, "", "logo.png", strings.NewReader("png"))
	assert.True(t, core.IsUnauthorized(err))
	assert.Zero(t, calls)
}

func TestClient_errorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			check:  func(t *testing.T, err error) { assert.Equal(t, core.ErrUnauthorized, errors.Cause(err)) },
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			check:  func(t *testing.T, err error) { assert.Equal(t, core.ErrForbidden, errors.Cause(err)) },
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			check:  func(t *testing.T, err error) { assert.Equal(t, core.ErrNotFound, errors.Cause(err)) },
		},
		{
			name:   "rejection with message",
			status: http.StatusConflict,
			body:   `{"error": "Email already registered"}`,
			check: func(t *testing.T, err error) {
				assert.Equal(t, &core.RejectionError{StatusCode: 409, Message: "Email already registered"}, errors.Cause(err))
			},
		},
		{
			name:   "rejection with plain body",
			status: http.StatusUnprocessableEntity,
			body:   "Student limit exceeded",
			check: func(t *testing.T, err error) {
				assert.Equal(t, &core.RejectionError{StatusCode: 422, Message: "Student limit exceeded"}, errors.Cause(err))
			},
		},
		{
			name:   "server error",
			status: http.StatusBadGateway,
			check: func(t *testing.T, err error) {
				assert.Equal(t, &core.TransportError{Service: "backend", StatusCode: 502}, errors.Cause(err))
			},
		},
		{
			name:   "garbage body",
			status: http.StatusOK,
			body:   "<html>",
			check: func(t *testing.T, err error) {
				_, ok := errors.Cause(err).(*core.TransportError)
				assert.True(t, ok)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := client.CreateCoach(context.Background(), "tok", academy.NewCoach{Name: "C"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_unreachable(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	srv.Close()

	_, err := client.ListCoaches(context.Background(), "tok")
	terr, ok := errors.Cause(err).(*core.TransportError)
	require.True(t, ok)
	assert.Equal(t, "backend", terr.Service)
	assert.Zero(t, terr.StatusCode)
}

func TestClient_CreateSession(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var ns academy.NewSession
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ns))
		assert.Equal(t, "Drills", ns.Name)
		assert.Equal(t, []string{"s1", "s2"}, ns.AssignedStudents)

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": "x1", "name": "Drills", "coach_id": "c1", "assigned_students": ["s1", "s2"]}`)
	})

	sess, err := client.CreateSession(context.Background(), "tok", academy.NewSession{
		Name:             "Drills",
		CoachID:          "c1",
		AssignedStudents: []string{"s1", "s2"},
	})
	require.NoError(t, err)
	assert.Equal(t, "x1", sess.ID)
	assert.True(t, sess.HasStudent("s2"))
}

func TestClient_requestBodies(t *testing.T) {
	expiry := academy.DateFrom(time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC))
	start := academy.DateFrom(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))
	maxParticipants := null.IntFrom(12)

	tests := []struct {
		name     string
		call     func(c *Client) error
		wantBody string
	}{
		{
			name: "rename only leaves dates out",
			call: func(c *Client) error {
				_, err := c.UpdateAcademy(context.Background(), "tok", "a1", academy.UpdateAcademy{Name: "Renamed"})
				return err
			},
			wantBody: `{"name":"Renamed"}`,
		},
		{
			name: "new expiry date is a plain date",
			call: func(c *Client) error {
				_, err := c.UpdateAcademy(context.Background(), "tok", "a1", academy.UpdateAcademy{SubscriptionExpiryDate: &expiry})
				return err
			},
			wantBody: `{"subscription_expiry_date":"2025-03-15"}`,
		},
		{
			name: "new academy dates",
			call: func(c *Client) error {
				_, err := c.CreateAcademy(context.Background(), "tok", academy.NewAcademy{
					Name: "Blue Lions FC", SubscriptionStartDate: start, SubscriptionExpiryDate: expiry,
				})
				return err
			},
			wantBody: `{"name":"Blue Lions FC","location":"","owner_name":"","admin_contact":"","admin_email":"",` +
				`"student_limit":0,"coach_limit":0,"subscription_start_date":"2024-03-15",` +
				`"subscription_expiry_date":"2025-03-15","branches":null}`,
		},
		{
			name: "session status only leaves max participants out",
			call: func(c *Client) error {
				_, err := c.UpdateSession(context.Background(), "tok", "s1", academy.UpdateSession{Status: academy.SessionCompleted})
				return err
			},
			wantBody: `{"status":"completed"}`,
		},
		{
			name: "session max participants",
			call: func(c *Client) error {
				_, err := c.UpdateSession(context.Background(), "tok", "s1", academy.UpdateSession{MaxParticipants: &maxParticipants})
				return err
			},
			wantBody: `{"max_participants":12}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body []byte
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				body, _ = io.ReadAll(r.Body)
				_, _ = io.WriteString(w, `{"id": "x1"}`)
			})

			require.NoError(t, tt.call(client))
			assert.JSONEq(t, tt.wantBody, string(body))
		})
	}
}

func TestClient_pathsEscapeIDs(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analytics/attendance/a%2Fb", r.URL.RawPath)
		_, _ = io.WriteString(w, `{"student_id": "a/b", "total_sessions": 10, "present": 8, "attendance_rate": 80}`)
	})

	an, err := client.AttendanceAnalytics(context.Background(), "tok", "a/b")
	require.NoError(t, err)
	assert.Equal(t, 80.0, an.AttendanceRate)
}

func TestClient_SignUp(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/signup", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"id": "u9", "email": "kid@academy.io", "name": "Kid", "role": "student"}`)
	})

	usr, err := client.SignUp(context.Background(), user.SignUp{Name: "Kid", Email: "kid@academy.io", Role: user.RoleStudent})
	require.NoError(t, err)
	assert.Equal(t, user.User{ID: "u9", Email: "kid@academy.io", Name: "Kid", Role: user.RoleStudent}, usr)
}

func TestClient_UploadLogo(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload/logo", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "logo.png", header.Filename)
		assert.Equal(t, "\x89PNG", string(content))
		_, _ = io.WriteString(w, `{"url": "/uploads/logos/logo.png"}`)
	})

	logoURL, err := client.UploadLogo(context.Background(), "tok", "logo.png", strings.NewReader("\x89PNG"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/uploads/logos/logo.png", logoURL)
}

func TestClient_JoinURL(t *testing.T) {
	client := NewClient(&core.Config{Backend: core.BackendConfig{BaseURL: "https://api.academy.io/"}})

	tests := []struct {
		ref  string
		want string
	}{
		{ref: "", want: ""},
		{ref: "/uploads/a.png", want: "https://api.academy.io/uploads/a.png"},
		{ref: "uploads/a.png", want: "https://api.academy.io/uploads/a.png"},
		{ref: "https://cdn.academy.io/a.png", want: "https://cdn.academy.io/a.png"},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.want, client.JoinURL(tt.ref))
		})
	}
}
