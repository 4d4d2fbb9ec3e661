package dashboard

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/user"
)

type Kind string

const (
	KindAcademies            Kind = "academies"
	KindAcademy              Kind = "academy"
	KindCoaches              Kind = "coaches"
	KindStudents             Kind = "students"
	KindSessions             Kind = "sessions"
	KindProfile              Kind = "profile"
	KindAttendanceAnalytics  Kind = "attendance_analytics"
	KindPerformanceAnalytics Kind = "performance_analytics"
)

var ErrUnknownResource = errors.New("unknown dashboard resource")

// Backend is the part of the backend client dashboards read from.
type Backend interface {
	ListAcademies(ctx context.Context, token string) ([]academy.Academy, error)
	ListTenantAcademies(ctx context.Context, token string) ([]academy.Academy, error)
	ListCoaches(ctx context.Context, token string) ([]academy.Coach, error)
	ListStudents(ctx context.Context, token string) ([]academy.Student, error)
	ListSessions(ctx context.Context, token string) ([]academy.Session, error)
	AttendanceAnalytics(ctx context.Context, token, studentID string) (academy.AttendanceAnalytics, error)
	PerformanceAnalytics(ctx context.Context, token, studentID string) (academy.PerformanceAnalytics, error)
}

type loader interface {
	Load(ctx context.Context) error
	State() State
}

// View is the dashboard of one role: a fixed set of resources, each loaded and failing on its own.
type View struct {
	Role  string
	kinds []Kind
	res   map[Kind]loader
}

// Snapshot is the renderable state of a View.
type Snapshot struct {
	Role      string         `json:"role"`
	Resources map[Kind]State `json:"resources"`
}

// NewView builds the dashboard of `usr`'s role. Resources are not loaded yet.
// `query` only applies to the super-admin academies table.
func NewView(backend Backend, usr user.User, token string, query academy.TableQuery) (*View, error) {
	v := &View{Role: usr.Role, res: make(map[Kind]loader)}

	switch usr.Role {
	case user.RoleSuperAdmin:
		v.add(KindAcademies, NewResource(func(ctx context.Context) ([]academy.Row, error) {
			academies, err := backend.ListAcademies(ctx, token)
			if err != nil {
				return nil, err
			}
			return academy.Table(academies, query, academy.NowFunc()), nil
		}))

	case user.RoleAdmin:
		v.add(KindAcademy, NewResource(func(ctx context.Context) (academy.Row, error) {
			academies, err := backend.ListTenantAcademies(ctx, token)
			if err != nil {
				return academy.Row{}, err
			}
			return ownAcademy(academies, usr.AcademyID)
		}))
		v.add(KindCoaches, NewResource(func(ctx context.Context) ([]academy.Coach, error) {
			return backend.ListCoaches(ctx, token)
		}))
		v.add(KindStudents, NewResource(func(ctx context.Context) ([]academy.Student, error) {
			return backend.ListStudents(ctx, token)
		}))
		v.add(KindSessions, NewResource(func(ctx context.Context) ([]academy.Session, error) {
			return backend.ListSessions(ctx, token)
		}))

	case user.RoleCoach:
		v.add(KindSessions, NewResource(func(ctx context.Context) ([]academy.Session, error) {
			sessions, err := backend.ListSessions(ctx, token)
			if err != nil {
				return nil, err
			}
			return filterSessions(sessions, func(s academy.Session) bool { return s.HasCoach(usr.ID) }), nil
		}))
		v.add(KindStudents, NewResource(func(ctx context.Context) ([]academy.Student, error) {
			return backend.ListStudents(ctx, token)
		}))

	case user.RoleStudent:
		// a student user's id is their student record id
		v.add(KindProfile, NewResource(func(ctx context.Context) (academy.Student, error) {
			students, err := backend.ListStudents(ctx, token)
			if err != nil {
				return academy.Student{}, err
			}
			for _, s := range students {
				if s.ID == usr.ID {
					return s, nil
				}
			}
			return academy.Student{}, core.ErrNotFound
		}))
		v.add(KindSessions, NewResource(func(ctx context.Context) ([]academy.Session, error) {
			sessions, err := backend.ListSessions(ctx, token)
			if err != nil {
				return nil, err
			}
			return filterSessions(sessions, func(s academy.Session) bool { return s.HasStudent(usr.ID) }), nil
		}))
		v.add(KindAttendanceAnalytics, NewResource(func(ctx context.Context) (academy.AttendanceAnalytics, error) {
			return backend.AttendanceAnalytics(ctx, token, usr.ID)
		}))
		v.add(KindPerformanceAnalytics, NewResource(func(ctx context.Context) (academy.PerformanceAnalytics, error) {
			return backend.PerformanceAnalytics(ctx, token, usr.ID)
		}))

	default:
		return nil, core.ErrForbidden
	}
	return v, nil
}

func (v *View) add(kind Kind, r loader) {
	v.kinds = append(v.kinds, kind)
	v.res[kind] = r
}

// Kinds returns the resource kinds of the View, in display order.
func (v *View) Kinds() []Kind {
	return append([]Kind(nil), v.kinds...)
}

// Load fetches every resource concurrently and returns once all of them settled.
// Each resource succeeds or fails on its own.
func (v *View) Load(ctx context.Context) Snapshot {
	var wg sync.WaitGroup
	for _, kind := range v.kinds {
		wg.Add(1)
		go func(r loader) {
			defer wg.Done()
			_ = r.Load(ctx) // recorded in the resource state
		}(v.res[kind])
	}
	wg.Wait()
	return v.Snapshot()
}

// Reload fetches a single resource again.
func (v *View) Reload(ctx context.Context, kind Kind) (State, error) {
	r, ok := v.res[kind]
	if !ok {
		return State{}, ErrUnknownResource
	}
	_ = r.Load(ctx) // recorded in the resource state
	return r.State(), nil
}

func (v *View) Snapshot() Snapshot {
	snap := Snapshot{Role: v.Role, Resources: make(map[Kind]State, len(v.kinds))}
	for _, kind := range v.kinds {
		snap.Resources[kind] = v.res[kind].State()
	}
	return snap
}

// Unauthorized reports whether any resource was rejected for lack of authentication.
func (snap Snapshot) Unauthorized() bool {
	for _, st := range snap.Resources {
		if st.Status == StatusFailed && core.IsUnauthorized(st.Err()) {
			return true
		}
	}
	return false
}

// ownAcademy returns the academy with id `academyID`, or the only academy of the tenant scope.
func ownAcademy(academies []academy.Academy, academyID string) (academy.Row, error) {
	now := academy.NowFunc()
	for _, a := range academies {
		if a.ID == academyID || (academyID == "" && len(academies) == 1) {
			sub, _ := a.Subscription(now) // ErrMissingExpiryDate -> StatusUnknown
			return academy.Row{Academy: a, Subscription: sub}, nil
		}
	}
	return academy.Row{}, core.ErrNotFound
}

func filterSessions(sessions []academy.Session, keep func(academy.Session) bool) []academy.Session {
	res := make([]academy.Session, 0, len(sessions))
	for _, s := range sessions {
		if keep(s) {
			res = append(res, s)
		}
	}
	return res
}
