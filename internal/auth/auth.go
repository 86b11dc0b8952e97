package auth

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "orderhub_session"

var ErrInvalidCredentials = errors.New("invalid username or password")

// HashPassword hashes a password with bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword verifies a password against its bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken returns a 64-char hex session token.
func GenerateToken() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// Login verifies credentials and creates a session valid for ttl.
// Expired sessions are swept opportunistically.
func Login(db *sql.DB, username, password string, ttl time.Duration) (token string, userID int, err error) {
	var passwordHash string
	err = db.QueryRow("SELECT id, password_hash FROM users WHERE username = ?", username).
		Scan(&userID, &passwordHash)
	if err != nil {
		return "", 0, ErrInvalidCredentials
	}
	if !CheckPassword(passwordHash, password) {
		return "", 0, ErrInvalidCredentials
	}

	db.Exec("DELETE FROM sessions WHERE expires_at < CURRENT_TIMESTAMP")

	expires := time.Now().Add(ttl)
	for i := 0; i < 3; i++ {
		token = GenerateToken()
		_, err = db.Exec("INSERT INTO sessions (token, user_id, expires_at) VALUES (?, ?, ?)",
			token, userID, expires.Format("2006-01-02 15:04:05"))
		if err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		return "", 0, err
	}
	return token, userID, nil
}

// Logout deletes the session for token. Unknown tokens are a no-op.
func Logout(db *sql.DB, token string) {
	db.Exec("DELETE FROM sessions WHERE token = ?", token)
}

// SessionUser returns the user behind a valid session token, or an
// error for missing/expired sessions. The session expiry slides
// forward on each successful check.
func SessionUser(db *sql.DB, token string, ttl time.Duration) (id int, username, role string, err error) {
	var expiresAt string
	err = db.QueryRow(`SELECT u.id, u.username, u.role, s.expires_at
		FROM sessions s JOIN users u ON s.user_id = u.id
		WHERE s.token = ?`, token).Scan(&id, &username, &role, &expiresAt)
	if err != nil {
		return 0, "", "", errors.New("invalid session")
	}

	expires, err := time.Parse("2006-01-02 15:04:05", expiresAt)
	if err != nil || time.Now().After(expires) {
		db.Exec("DELETE FROM sessions WHERE token = ?", token)
		return 0, "", "", errors.New("session expired")
	}

	newExpires := time.Now().Add(ttl)
	db.Exec("UPDATE sessions SET expires_at = ? WHERE token = ?",
		newExpires.Format("2006-01-02 15:04:05"), token)

	return id, username, role, nil
}

// CreateUser inserts a user with a hashed password.
func CreateUser(db *sql.DB, username, password, role, email string) (int, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	res, err := db.Exec("INSERT INTO users (username, password_hash, role, email) VALUES (?, ?, ?, ?)",
		username, hash, role, email)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return int(id), nil
}
