package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trackmyacademy/dashboard/core"
	"github.com/trackmyacademy/dashboard/core/user"
)

func TestRollbarLogger_print(t *testing.T) {
	var buf bytes.Buffer
	logger := NewRollbarLogger(log.New(&buf, "API : ", 0), core.NewTestConfig())

	usr := user.User{ID: "u1", Email: "jane@academy.io", Name: "Jane", Role: user.RoleCoach}
	logger.Error("loading dashboard", errors.New("boom"), usr, map[string]interface{}{"kind": "sessions"})

	out := buf.String()
	assert.Contains(t, out, "API : loading dashboard\nAPI : boom\n") // followed by the stack trace
	assert.Contains(t, out, "API : map[kind:sessions]\n")
	assert.NotContains(t, out, "jane@academy.io")
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := RollbarLogger{}
	usr := user.User{ID: "u1"}
	err := errors.New("boom")

	args := logger.prepare("msg", []interface{}{usr, err, user.User{ID: "u2"}})
	assert.Equal(t, []interface{}{"msg", err}, args)
}
