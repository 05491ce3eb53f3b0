package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"stepup-auth/internal/domain"
)

const (
	defaultSessionTTL         = 12 * time.Hour
	defaultSessionRememberTTL = 30 * 24 * time.Hour
)

// SessionIssuer emite y valida sesiones firmadas (JWT HS256). No guarda
// estado salvo la lista de sesiones revocadas por logout.
type SessionIssuer struct {
	secret      []byte
	issuer      string
	ttl         time.Duration
	rememberTTL time.Duration
	revoked     RevocationStore
	now         func() time.Time
}

type SessionClaims struct {
	UserID string      `json:"uid"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
	jwt.RegisteredClaims
}

func NewSessionIssuer(secret, issuer string, ttl, rememberTTL time.Duration, revoked RevocationStore) *SessionIssuer {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if rememberTTL <= 0 {
		rememberTTL = defaultSessionRememberTTL
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "stepup-auth"
	}
	if revoked == nil {
		revoked = NewMemoryRevocationStore()
	}
	return &SessionIssuer{
		secret:      []byte(secret),
		issuer:      issuer,
		ttl:         ttl,
		rememberTTL: rememberTTL,
		revoked:     revoked,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Issue firma una sesion para el usuario; rememberMe elige la vida larga.
func (s *SessionIssuer) Issue(user domain.User, rememberMe bool) (domain.Session, error) {
	if len(s.secret) == 0 {
		return domain.Session{}, ErrSessionInvalid
	}
	ttl := s.ttl
	if rememberMe {
		ttl = s.rememberTTL
	}
	now := s.now()
	expiresAt := now.Add(ttl)
	claims := SessionClaims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{Token: signed, ExpiresAt: expiresAt}, nil
}

// Parse valida firma, emisor, sujeto, expiracion y revocacion.
func (s *SessionIssuer) Parse(tokenString string) (SessionClaims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return SessionClaims{}, ErrSessionInvalid
	}
	var claims SessionClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrSessionExpired
		}
		return SessionClaims{}, ErrSessionInvalid
	}
	if !s.isValidClaims(claims) {
		return SessionClaims{}, ErrSessionInvalid
	}
	revoked, err := s.revoked.IsRevoked(claims.ID)
	if err != nil || revoked {
		return SessionClaims{}, ErrSessionInvalid
	}
	return claims, nil
}

// Revoke invalida la sesion hasta su expiracion natural.
func (s *SessionIssuer) Revoke(claims SessionClaims) error {
	if claims.ID == "" || claims.ExpiresAt == nil {
		return ErrSessionInvalid
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.revoked.Revoke(claims.ID, ttl)
}

func (s *SessionIssuer) isValidClaims(claims SessionClaims) bool {
	if strings.TrimSpace(claims.UserID) == "" || claims.Subject != claims.UserID {
		return false
	}
	if strings.TrimSpace(claims.ID) == "" {
		return false
	}
	return claims.Issuer == s.issuer
}
