package filestore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/trackmyacademy/dashboard/core/user"
)

// TokenStore keeps the access token in a file only readable by its owner.
type TokenStore struct {
	path string
}

var _ user.TokenStore = (*TokenStore)(nil) // interface compliance check

func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

func (s *TokenStore) LoadToken() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.Wrap(err, "reading token file")
	}
	return strings.TrimSpace(string(data)), nil
}

func (s *TokenStore) SaveToken(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return errors.Wrap(err, "creating token directory")
	}

	// write then rename so a crash never leaves a truncated token behind
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(token), 0o600); err != nil {
		return errors.Wrap(err, "writing token file")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "replacing token file")
}

func (s *TokenStore) ClearToken() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing token file")
	}
	return nil
}
