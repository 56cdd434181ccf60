package hoverflytest

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/httputil"
)

const tokenExpiry = 24 * time.Hour

func newID() string {
	return uuid.New().String()
}

func (s *Server) authEnabled() bool {
	return s.username != ""
}

// authorized reports whether r may reach the admin API.
func (s *Server) authorized(r *http.Request) bool {
	if !s.authEnabled() {
		return true
	}
	if r.URL.Path == "/api/health" || r.URL.Path == "/api/token-auth" {
		return true
	}
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return s.validateToken(raw) == nil
}

func (s *Server) issueToken(username string) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiry)),
		ID:        newID(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) validateToken(raw string) error {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("token is invalid")
	}
	return nil
}

func (s *Server) handleTokenAuth(w http.ResponseWriter, r *http.Request) {
	if !s.authEnabled() {
		httputil.WriteError(w, http.StatusBadRequest, "Authentication is not enabled")
		return
	}
	var req types.TokenRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Malformed JSON")
		return
	}
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.password)) == 1
	if !userOK || !passOK {
		httputil.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	token, err := s.issueToken(req.Username)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	httputil.WriteOK(w, types.TokenResponse{Token: token})
}
