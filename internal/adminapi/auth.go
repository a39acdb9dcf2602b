package adminapi

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// defaultJWTSecret is only used when CMDLOG_JWT_SECRET is unset; set
	// it in any real deployment. Adapted from the teacher's
	// DefaultJWTSecret (internal/api/auth.go).
	defaultJWTSecret = "cmdlogbuf-admin-secret-change-in-production" // #nosec G101
	tokenExpiration  = 24 * time.Hour
)

// AuthManager issues and validates operator credentials for the admin
// surface. Unlike the teacher's AuthManager (which layers JWT login on
// top of a demo username/password), there is no end-user identity here
// — only operators holding a pre-shared API key get a token, since this
// subsystem has no user system of its own.
type AuthManager struct {
	jwtSecret []byte
	apiKeys   map[string]bool
}

// Claims identifies the operator API key a token was minted for.
type Claims struct {
	KeyID string `json:"key_id"`
	jwt.RegisteredClaims
}

func NewAuthManager() *AuthManager {
	secret := os.Getenv("CMDLOG_JWT_SECRET")
	if secret == "" {
		secret = defaultJWTSecret
	}
	return &AuthManager{
		jwtSecret: []byte(secret),
		apiKeys:   make(map[string]bool),
	}
}

// AddAPIKey registers an operator API key as valid for both the ApiKey
// auth scheme and for minting JWTs via Login.
func (am *AuthManager) AddAPIKey(key string) {
	am.apiKeys[key] = true
}

// GenerateAPIKey returns a fresh random operator key, for bootstrapping
// (cmd/cmdlogd logs one at startup if none is configured).
func (am *AuthManager) GenerateAPIKey() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(fmt.Sprintf("fallback-%d", time.Now().UnixNano())))
	}
	return hex.EncodeToString(b)
}

func (am *AuthManager) generateJWT(keyID string) (string, time.Time, error) {
	expiresAt := time.Now().Add(tokenExpiration)
	claims := &Claims{
		KeyID: keyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "cmdlogd",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(am.jwtSecret)
	return signed, expiresAt, err
}

func (am *AuthManager) validateJWT(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return am.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// authMiddleware accepts either a Bearer JWT or an ApiKey header,
// adapted from the teacher's AuthMiddleware (internal/api/auth.go).
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/v1/health" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			s.errorResponse(c, http.StatusUnauthorized, "MISSING_AUTH", "Authorization header required")
			c.Abort()
			return
		}

		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			claims, err := s.auth.validateJWT(tokenString)
			if err != nil {
				s.errorResponse(c, http.StatusUnauthorized, "INVALID_TOKEN", err.Error())
				c.Abort()
				return
			}
			c.Set("key_id", claims.KeyID)
			c.Next()
			return
		}

		if strings.HasPrefix(authHeader, "ApiKey ") {
			apiKey := strings.TrimPrefix(authHeader, "ApiKey ")
			if !s.auth.apiKeys[apiKey] {
				s.errorResponse(c, http.StatusUnauthorized, "INVALID_API_KEY", "invalid API key")
				c.Abort()
				return
			}
			c.Set("key_id", apiKey)
			c.Next()
			return
		}

		s.errorResponse(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>' or 'ApiKey <key>'")
		c.Abort()
	}
}

type loginRequest struct {
	APIKey string `json:"api_key" binding:"required"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if !s.auth.apiKeys[req.APIKey] {
		s.errorResponse(c, http.StatusUnauthorized, "INVALID_API_KEY", "invalid API key")
		return
	}

	token, expiresAt, err := s.auth.generateJWT(req.APIKey)
	if err != nil {
		s.errorResponse(c, http.StatusInternalServerError, "TOKEN_GENERATION_FAILED", err.Error())
		return
	}

	s.successResponse(c, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}
