package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examvault/internal/model"
	"github.com/pavelanni/examvault/internal/store"
)

const (
	authCookieName = "jwt"
	tokenIssuer    = "examvault"
)

// minPasswordLength is enforced for every new account.
const minPasswordLength = 8

// claims is the JWT payload of a login token.
type claims struct {
	jwt.RegisteredClaims
	Role model.UserRole `json:"role"`
}

// NewUser validates the account fields and returns a user with a bcrypt
// password hash, ready to be stored.
func NewUser(email, name, password string, role model.UserRole) (model.User, error) {
	verr := &model.ValidationError{}
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		verr.Add(-1, "email", "must be a valid email address")
	}
	if !role.Valid() {
		verr.Add(-1, "role", fmt.Sprintf("unknown role %q", role))
	}
	if len(password) < minPasswordLength {
		verr.Add(-1, "password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if err := verr.OrNil(); err != nil {
		return model.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	if name == "" {
		name = email
	}
	return model.User{
		Email:        email,
		Name:         name,
		PasswordHash: string(hash),
		Role:         role,
		Active:       true,
	}, nil
}

func (h *Handler) issueToken(u *model.User) (string, time.Time, error) {
	now := h.now()
	exp := now.Add(h.config.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: u.Role,
	})
	s, err := token.SignedString(h.config.JWTSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

func (h *Handler) parseToken(raw string) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return h.config.JWTSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(h.now),
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie(authCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// requireAuth is middleware that checks for a valid login token, taken from
// the Authorization header or the auth cookie. The user must still exist and
// be active; the role comes from the stored user, not the token.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFromRequest(r)
		if raw == "" {
			writeError(w, r, errUnauthorized)
			return
		}
		c, err := h.parseToken(raw)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %w", errUnauthorized, err))
			return
		}

		user, err := h.repo.GetUserByID(r.Context(), c.Subject)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if user == nil || !user.Active {
			writeError(w, r, errUnauthorized)
			return
		}

		ctx := model.ContextWithIdentity(r.Context(), &model.Identity{ID: user.ID, Role: user.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole returns middleware that checks the user has one of the allowed roles.
func requireRole(allowed ...model.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := model.IdentityFromContext(r.Context())
			if id == nil {
				writeError(w, r, errUnauthorized)
				return
			}
			for _, role := range allowed {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, fmt.Errorf("%w: role %s", errForbidden, id.Role))
		})
	}
}

// identity returns the authenticated caller. Routes are only reachable
// through requireAuth, so it is never nil there.
func identity(r *http.Request) model.Identity {
	if id := model.IdentityFromContext(r.Context()); id != nil {
		return *id
	}
	return model.Identity{}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *model.User `json:"user"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.repo.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if user == nil || !user.Active {
		writeError(w, r, errInvalidCredentials)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, r, errInvalidCredentials)
		return
	}

	token, exp, err := h.issueToken(user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.config.SecureCookies,
	})
	slog.Info("user logged in", "user_id", user.ID, "role", user.Role)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: user})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   h.config.SecureCookies,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

type createUserRequest struct {
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Password string         `json:"password"`
	Role     model.UserRole `json:"role"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := NewUser(req.Email, req.Name, req.Password, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.repo.CreateUser(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			err = fmt.Errorf("email %s: %w", u.Email, err)
		}
		writeError(w, r, err)
		return
	}

	created, err := h.repo.GetUserByEmail(r.Context(), u.Email)
	if err != nil || created == nil {
		writeError(w, r, fmt.Errorf("reload user %s: %w", u.Email, err))
		return
	}
	slog.Info("admin created user", "admin_id", identity(r).ID, "user_id", created.ID, "role", created.Role)
	writeJSON(w, http.StatusCreated, created)
}
