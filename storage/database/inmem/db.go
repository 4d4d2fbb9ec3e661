package inmemdb

import (
	"sync"

	"github.com/trackmyacademy/dashboard/core/user"
)

type (
	// DB is an in-memory stand-in for the sessions database, for tests and single-process development.
	DB struct {
		session *sessionTable
	}

	sessionTable struct {
		mutex sync.RWMutex
		table map[string]*user.Session
	}
)

func Open() *DB {
	return &DB{
		session: &sessionTable{table: make(map[string]*user.Session)},
	}
}
