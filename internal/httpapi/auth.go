package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"hms/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const ctxClaims = "claims"

var ErrInvalidToken = errors.New("invalid token")

// Claims are issued by the identity provider; this service only verifies them.
type Claims struct {
	HospitalID string `json:"hospital_id"`
	Role       string `json:"role"`
	Email      string `json:"email"`
	jwt.RegisteredClaims
}

type TokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

func (v *TokenVerifier) Verify(token string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			writeError(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		claims, err := h.verifier.Verify(token)
		if err != nil {
			writeError(c, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

func requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromContext(c)
		if !ok {
			writeError(c, http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		writeError(c, http.StatusForbidden, "forbidden", "role not allowed for this action")
	}
}

// requireHospital writes a 403 unless the caller belongs to hospitalID.
func requireHospital(c *gin.Context, hospitalID string) bool {
	claims, ok := claimsFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized", "missing session")
		return false
	}
	if hospitalID == "" || claims.HospitalID != hospitalID {
		writeError(c, http.StatusForbidden, "access_denied", "hospital access denied")
		return false
	}
	return true
}

func claimsFromContext(c *gin.Context) (Claims, bool) {
	value, ok := c.Get(ctxClaims)
	if !ok {
		return Claims{}, false
	}
	claims, ok := value.(Claims)
	return claims, ok
}

func isAdmin(claims Claims) bool {
	return claims.Role == models.RoleHospitalAdmin
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}
