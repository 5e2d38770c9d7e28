package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/apperrors"
	"github.com/blinkdate/match-server-go/internal/httputil"
	"github.com/blinkdate/match-server-go/internal/model"
	"github.com/blinkdate/match-server-go/internal/repository"
)

type contextKey string

const UserContextKey contextKey = "user"

func GetUser(ctx context.Context) *model.User {
	if user, ok := ctx.Value(UserContextKey).(*model.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware verifies the bearer token issued by the identity
// service and loads the user it names into the request context.
type AuthMiddleware struct {
	userRepo repository.UserRepository
	secret   []byte
}

func NewAuthMiddleware(userRepo repository.UserRepository, secret string) *AuthMiddleware {
	return &AuthMiddleware{userRepo: userRepo, secret: []byte(secret)}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		userID, err := m.parseSubject(token)
		if err != nil {
			log.Warn().Err(err).Msg("auth middleware: invalid token attempt")
			httputil.WriteError(w, apperrors.InvalidToken("Invalid or expired token"))
			return
		}

		user, err := m.userRepo.FindByID(r.Context(), userID)
		if err != nil {
			log.Error().Err(err).Msg("auth middleware: database error")
			httputil.WriteError(w, apperrors.Internal("Authentication failed"))
			return
		}
		if user == nil || !user.IsActive {
			httputil.WriteError(w, apperrors.Unauthorized("Account is not active"))
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) parseSubject(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return 0, err
	}

	subject, err := token.Claims.GetSubject()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(subject, 10, 64)
}

func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}
