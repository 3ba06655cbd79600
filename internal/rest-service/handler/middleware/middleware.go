package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/resource_center/internal/rest-service/database"
)

type ctxKey int

const (
	userKey ctxKey = iota
	requestIDKey
)

const headerRequestID = "X-Request-Id"

var (
	errUnauthorized = errors.New("you are not authorized for this action")
	errInvalidToken = errors.New("invalid token")
)

type Users interface {
	GetOrCreateUser(ctx context.Context, username, email, firstName string) (*database.User, error)
}

// User returns the principal of the request. It is nil outside CheckAuth and
// JWTAuth.
func User(ctx context.Context) *database.User {
	u, _ := ctx.Value(userKey).(*database.User)
	return u
}

func WithUser(ctx context.Context, u *database.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func writeError(rw http.ResponseWriter, status int, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(map[string]string{"error": msg})
}

func login(users Users, l *log.Entry, rw http.ResponseWriter, r *http.Request, next http.Handler, username, email, firstName string) {
	u, err := users.GetOrCreateUser(r.Context(), username, email, firstName)
	if err != nil {
		l.WithError(err).WithField("username", username).Error("can't resolve principal")
		writeError(rw, http.StatusInternalServerError, "can't resolve user")
		return
	}
	next.ServeHTTP(rw, r.WithContext(WithUser(r.Context(), u)))
}

// CheckAuth takes the principal from basic auth. The username is the
// account email; unknown users are created on first sight.
func CheckAuth(users Users, l *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			username, _, ok := r.BasicAuth()
			username = strings.TrimSpace(username)
			if !ok || username == "" {
				rw.Header().Set("WWW-Authenticate", `Basic realm="resource-center"`)
				writeError(rw, http.StatusUnauthorized, errUnauthorized.Error())
				return
			}
			login(users, l, rw, r, next, username, username, "")
		})
	}
}

// Claims are the identity-provider claims the service relies on.
type Claims struct {
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	GivenName         string `json:"given_name"`
	jwt.RegisteredClaims
}

func parseToken(token string, secret []byte) (*Claims, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// JWTAuth takes the principal from a HMAC signed bearer token.
func JWTAuth(users Users, secret []byte, l *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(rw, http.StatusUnauthorized, errUnauthorized.Error())
				return
			}
			claims, err := parseToken(strings.TrimSpace(raw), secret)
			if err != nil {
				l.WithError(err).Debug(errInvalidToken)
				writeError(rw, http.StatusUnauthorized, errInvalidToken.Error())
				return
			}
			username := claims.PreferredUsername
			if username == "" {
				username = claims.Email
			}
			if username == "" {
				username = claims.Subject
			}
			if username == "" {
				writeError(rw, http.StatusUnauthorized, errInvalidToken.Error())
				return
			}
			login(users, l, rw, r, next, username, claims.Email, claims.GivenName)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.size += n
	return n, err
}

// Logging tags every request with an id and logs its outcome.
func Logging(l *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(headerRequestID)
			if id == "" {
				id = uuid.NewString()
			}
			rw.Header().Set(headerRequestID, id)
			rec := &statusRecorder{ResponseWriter: rw}
			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			e := l.WithFields(log.Fields{
				"request_id": id,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"size":       rec.size,
				"latency":    time.Since(start).String(),
				"client":     r.RemoteAddr,
			})
			switch {
			case rec.status >= http.StatusInternalServerError:
				e.Error("request failed")
			case rec.status >= http.StatusBadRequest:
				e.Warn("request rejected")
			default:
				e.Info("request served")
			}
		})
	}
}

// Recover turns a panic into a JSON 500 response.
func Recover(l *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					if p == http.ErrAbortHandler {
						panic(p)
					}
					l.WithField("panic", p).WithField("request_id", RequestID(r.Context())).Error("handler panicked")
					writeError(rw, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// Chain applies mws so the first one is the outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
