package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trackmyacademy/dashboard/apps/api/echo"
	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/academy"
	"github.com/trackmyacademy/dashboard/core/user"
	"github.com/trackmyacademy/dashboard/services/backend"
	"github.com/trackmyacademy/dashboard/services/email"
	"github.com/trackmyacademy/dashboard/services/identity/inmem"
	"github.com/trackmyacademy/dashboard/storage/database/inmem"
	"github.com/trackmyacademy/dashboard/tests"
)

const testPassword = "Acad3my!Pass"

var (
	errUnauthorized = httpErr{Error: "user not authenticated"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type env struct {
	app      *Server
	backend  *testutil.Backend
	idp      *inmemidentity.Provider
	sessions user.SessionRepository
	mailSvc  *emailsvc.ConsoleServiceMock
	logger   *testutil.Logger
}

func setup(t *testing.T) *env {
	conf := core.NewTestConfig()
	backend := testutil.NewBackend(t)
	conf.Backend.BaseURL = backend.URL

	logger := new(testutil.Logger)
	core.ParseEmailTemplates(conf, logger)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	academy.InitValidators(validate, translator)

	idp := inmemidentity.NewProvider(conf, mailSvc, logger)
	client := backendsvc.NewClient(conf)
	sessions := inmemdb.NewSessionRepository(inmemdb.Open())
	usrSvc := user.NewService(conf, sessions, idp, client, validate, logger)

	app := NewServer(conf, logger, validate, translator, Deps{
		UserSvc:  usrSvc,
		Backend:  client,
		Notifier: academy.NewNotifier(client, mailSvc, logger),
	})
	return &env{app: app, backend: backend, idp: idp, sessions: sessions, mailSvc: mailSvc, logger: logger}
}

// addUser registers `usr` with both the identity provider and the backend.
func (e *env) addUser(t *testing.T, usr user.User) user.User {
	require.NoError(t, e.idp.AddAccount(usr.ID, usr.Email, usr.Name, testPassword))
	e.backend.AddUser(usr)
	return usr
}

// login signs `usr` in through the API and returns the session token.
func (e *env) login(t *testing.T, usr user.User) string {
	req, rec := newRequest(http.MethodPost, "/v1/auth/login", marshallObj(t, user.Credentials{Email: usr.Email, Password: testPassword}))
	e.app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res.Token
}

func (e *env) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	e.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, e *env, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, e.do(req, rec))
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// assertNoBackendCall checks that `method path` never reached the backend.
func assertNoBackendCall(t *testing.T, e *env, method, path string) {
	assert.Zero(t, e.backend.Calls(method, path), "%s %s reached the backend", method, path)
}
