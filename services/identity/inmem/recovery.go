package inmemidentity

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	salt = []byte("trackmyacademy.identity.inmem.recovery")

	// RecoveryTimeout is how long a recovery token stays valid, rounded to whole days.
	RecoveryTimeout = 24 * time.Hour

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// makeRecoveryToken generates a password recovery token for `acc`.
// The token embeds the password hash: it stops working once the password changed.
func makeRecoveryToken(acc account, secret []byte, now time.Time) string {
	return makeTokenWithTimestamp(acc, secret, numDaysSince2001(now))
}

// verifyRecoveryToken checks that a recovery token for `acc` is valid at `now`.
func verifyRecoveryToken(acc account, secret []byte, token string, now time.Time) error {
	if token == "" {
		return errInvalidToken
	}

	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return errInvalidToken
	}

	data, err := b32.DecodeString(parts[0])
	if err != nil {
		return errInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return errInvalidToken
	}

	// check that token has not been tampered with
	expected := makeTokenWithTimestamp(acc, secret, ts)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) == 0 {
		return errInvalidToken
	}

	// check that the timestamp is within limit
	if numDaysSince2001(now)-ts > int(RecoveryTimeout/(24*time.Hour)) {
		return errTokenExpired
	}
	return nil
}

func makeTokenWithTimestamp(acc account, secret []byte, ts int) string {
	tsB32 := b32.EncodeToString([]byte(strconv.Itoa(ts)))
	return fmt.Sprintf("%s-%s", tsB32, sign(hashValue(acc, ts), secret))
}

func numDaysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func sign(val, secret []byte) string {
	key := sha256.Sum256(append(append([]byte(nil), salt...), secret...))
	h := hmac.New(sha256.New, key[:])
	_, _ = h.Write(val) // never fails
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func hashValue(acc account, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(acc.ID)
	val.Write(acc.PasswordHash)
	if !acc.LastSignIn.IsZero() {
		val.WriteString(acc.LastSignIn.UTC().String())
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
