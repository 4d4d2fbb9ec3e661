package sqlxrepos

import (
	"testing"

	testutil "github.com/trackmyacademy/dashboard/tests"
)

func TestSessionRepository(t *testing.T) {
	testutil.TestSessionRepository(t, NewSessionRepository(testutil.PrepareDB(t)))
}
