package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/healpoint/healpoint/libs/auth"
	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/services/auth-service/internal/audit"
	"github.com/healpoint/healpoint/services/auth-service/internal/outbox"
	"github.com/healpoint/healpoint/services/auth-service/internal/sessions"
	"github.com/healpoint/healpoint/services/auth-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type AuthHandler struct {
	signer     TokenSigner
	db         db.Conn
	logger     *slog.Logger
	accessTTL  time.Duration
	refreshTTL time.Duration
	cost       int
	now        func() time.Time
}

func NewAuthHandler(signer TokenSigner, conn db.Conn, logger *slog.Logger, cfg Config) *AuthHandler {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &AuthHandler{
		signer:     signer,
		db:         conn,
		logger:     logger,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		cost:       cfg.BcryptCost,
		now:        time.Now,
	}
}

func (h *AuthHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.SignUp)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", h.Refresh)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("POST /api/v1/auth/rotate", h.Rotate)
	mux.HandleFunc("GET /.well-known/jwks.json", h.JWKS)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	Phone          string `json:"phone"`
	DocumentNumber string `json:"document_number"`
}

type tokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type userResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

type loginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

func toUserResponse(u storage.User) userResponse {
	return userResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		Status:    u.Status,
	}
}

// SignUp creates an active PACIENTE account and signs it in.
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case req.FirstName == "":
		httpx.WriteError(w, http.StatusBadRequest, "first_name is required")
		return
	case req.LastName == "":
		httpx.WriteError(w, http.StatusBadRequest, "last_name is required")
		return
	case !validEmail(req.Email):
		httpx.WriteError(w, http.StatusBadRequest, "email is invalid")
		return
	case len(req.Password) < minPasswordLength:
		httpx.WriteError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cost)
	if err != nil {
		h.internal(w, r, "hash password", err)
		return
	}

	ctx := r.Context()
	var (
		user    storage.User
		refresh string
	)
	err = db.NewTxRunner(h.db).InTx(ctx, func(q db.DBTX) error {
		users := storage.NewUserRepository(q)
		id, err := users.Create(ctx, storage.NewUser{
			FirstName:      req.FirstName,
			LastName:       req.LastName,
			Email:          req.Email,
			Phone:          strings.TrimSpace(req.Phone),
			DocumentNumber: strings.TrimSpace(req.DocumentNumber),
			PasswordHash:   string(hash),
			RoleID:         storage.RolePatient,
			StatusID:       storage.StatusActive,
		})
		if err != nil {
			return err
		}
		if user, err = users.GetByID(ctx, id); err != nil {
			return err
		}
		evt, err := outbox.NewUserRegistered(outbox.UserRegistered{
			UserID:     user.ID,
			Email:      user.Email,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
			Role:       user.Role,
			OccurredAt: h.now().UTC(),
		})
		if err != nil {
			return err
		}
		if err := outbox.NewRepository(q).Insert(ctx, evt); err != nil {
			return err
		}
		if err := audit.NewRepository(q).Record(ctx, audit.Entry{
			Action:   audit.ActionCreate,
			Table:    "users",
			RecordID: user.ID,
			ActorID:  user.ID,
			Details:  map[string]any{"source": "self_registration"},
		}); err != nil {
			return err
		}
		refresh, err = h.issueRefreshToken(ctx, q, user.ID)
		return err
	})
	if errors.Is(err, storage.ErrEmailTaken) {
		httpx.WriteError(w, http.StatusConflict, "email already registered")
		return
	}
	if err != nil {
		h.internal(w, r, "register user", err)
		return
	}
	h.writeTokens(w, r, http.StatusCreated, user, refresh)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "email and password required")
		return
	}

	ctx := r.Context()
	user, err := storage.NewUserRepository(h.db).GetByEmail(ctx, req.Email)
	if storage.IsNotFound(err) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		h.internal(w, r, "lookup user", err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !user.Active() {
		httpx.WriteError(w, http.StatusForbidden, "user is inactive")
		return
	}

	var refresh string
	err = db.NewTxRunner(h.db).InTx(ctx, func(q db.DBTX) error {
		var err error
		if refresh, err = h.issueRefreshToken(ctx, q, user.ID); err != nil {
			return err
		}
		return audit.NewRepository(q).Record(ctx, audit.Entry{
			Action:   audit.ActionLogin,
			Table:    "users",
			RecordID: user.ID,
			ActorID:  user.ID,
			Details:  map[string]any{"ip": clientIP(r)},
		})
	})
	if err != nil {
		h.internal(w, r, "start session", err)
		return
	}
	h.writeTokens(w, r, http.StatusOK, user, refresh)
}

// Refresh exchanges a refresh token for a new pair. Replaying a revoked token
// revokes every session of its owner.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeRefreshToken(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	var (
		user    storage.User
		refresh string
		status  int
		msg     string
	)
	err := db.NewTxRunner(h.db).InTx(ctx, func(q db.DBTX) error {
		tokens := sessions.NewRefreshRepository(q)
		record, err := tokens.GetByHash(ctx, sessions.HashToken(raw))
		if sessions.IsNotFound(err) {
			status, msg = http.StatusUnauthorized, "invalid refresh token"
			return nil
		}
		if err != nil {
			return err
		}
		if record.RevokedAt != nil {
			h.logger.Warn("refresh token replayed", "user_id", record.UserID, "request_id", httpx.RequestIDFromContext(ctx))
			status, msg = http.StatusUnauthorized, "refresh token revoked"
			return tokens.RevokeAllForUser(ctx, record.UserID)
		}
		if !record.Usable(h.now()) {
			status, msg = http.StatusUnauthorized, "refresh token expired"
			return nil
		}
		revoked, err := tokens.Revoke(ctx, record.ID)
		if err != nil {
			return err
		}
		if !revoked {
			status, msg = http.StatusUnauthorized, "refresh token revoked"
			return nil
		}

		user, err = storage.NewUserRepository(q).GetByID(ctx, record.UserID)
		if storage.IsNotFound(err) {
			status, msg = http.StatusUnauthorized, "invalid refresh token"
			return nil
		}
		if err != nil {
			return err
		}
		if !user.Active() {
			status, msg = http.StatusForbidden, "user is inactive"
			return nil
		}
		refresh, err = h.issueRefreshToken(ctx, q, user.ID)
		return err
	})
	if err != nil {
		h.internal(w, r, "rotate refresh token", err)
		return
	}
	if status != 0 {
		httpx.WriteError(w, status, msg)
		return
	}
	h.writeTokens(w, r, http.StatusOK, user, refresh)
}

// Logout revokes the refresh token. Unknown tokens are accepted silently.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	raw, ok := decodeRefreshToken(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	err := db.NewTxRunner(h.db).InTx(ctx, func(q db.DBTX) error {
		tokens := sessions.NewRefreshRepository(q)
		record, err := tokens.GetByHash(ctx, sessions.HashToken(raw))
		if sessions.IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		revoked, err := tokens.Revoke(ctx, record.ID)
		if err != nil || !revoked {
			return err
		}
		return audit.NewRepository(q).Record(ctx, audit.Entry{
			Action:   audit.ActionLogout,
			Table:    "users",
			RecordID: record.UserID,
			ActorID:  record.UserID,
		})
	})
	if err != nil {
		h.internal(w, r, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "missing or invalid Authorization header")
		return
	}
	claims, err := h.signer.Verify(token)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	user, err := storage.NewUserRepository(h.db).GetByID(r.Context(), claims.Subject)
	if storage.IsNotFound(err) {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if err != nil {
		h.internal(w, r, "lookup user", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) JWKS(w http.ResponseWriter, _ *http.Request) {
	keys := h.signer.JWKS()
	if len(keys) == 0 {
		httpx.WriteError(w, http.StatusNotFound, "jwks not available")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, auth.JWKS{Keys: keys})
}

// Rotate switches the active signing key. It is guarded by a shared operator key
// rather than a user token.
func (h *AuthHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	if !h.signer.CanRotate() {
		httpx.WriteError(w, http.StatusBadRequest, "rotation not enabled")
		return
	}
	if key := r.Header.Get("X-Rotate-Key"); key == "" || key != h.signer.RotateKey() {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		ActiveKid string `json:"active_kid"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ActiveKid == "" {
		httpx.WriteError(w, http.StatusBadRequest, "active_kid is required")
		return
	}
	if err := h.signer.SetActiveKid(req.ActiveKid); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid active_kid")
		return
	}

	if err := audit.NewRepository(h.db).Record(r.Context(), audit.Entry{
		Action:   audit.ActionUpdate,
		Table:    "signing_keys",
		RecordID: req.ActiveKid,
	}); err != nil {
		h.logger.Error("record key rotation", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	}
	h.logger.Info("signing key rotated", "kid", req.ActiveKid)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) writeTokens(w http.ResponseWriter, r *http.Request, status int, user storage.User, refresh string) {
	access, err := h.signer.Sign(auth.NewClaims(user.ID, user.Role, user.Name(), h.now(), h.accessTTL))
	if err != nil {
		h.internal(w, r, "sign token", err)
		return
	}
	httpx.WriteJSON(w, status, loginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.accessTTL / time.Second),
		User:         toUserResponse(user),
	})
}

func (h *AuthHandler) issueRefreshToken(ctx context.Context, q db.DBTX, userID string) (string, error) {
	raw, err := sessions.NewToken()
	if err != nil {
		return "", err
	}
	if _, err := sessions.NewRefreshRepository(q).Create(ctx, userID, raw, h.now().Add(h.refreshTTL)); err != nil {
		return "", err
	}
	return raw, nil
}

func (h *AuthHandler) internal(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", "err", err, "request_id", httpx.RequestIDFromContext(r.Context()))
	httpx.WriteError(w, http.StatusInternalServerError, "internal error")
}

func decodeRefreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req tokenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "refresh_token required")
		return "", false
	}
	return req.RefreshToken, true
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return r.RemoteAddr
}
