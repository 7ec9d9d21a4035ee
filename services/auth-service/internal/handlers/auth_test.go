package handlers

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/healpoint/healpoint/libs/auth"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testSecret = "test-secret"
	userID     = "0b3f6a52-9d44-4c55-8d0e-1a2b3c4d5e6f"
)

var userCols = []string{"id", "first_name", "last_name", "email", "password_hash", "role_id", "role", "role_status_id", "status_id", "status"}

type fixture struct {
	mock    pgxmock.PgxPoolIface
	handler *AuthHandler
	mux     *http.ServeMux
	now     time.Time
}

func newFixture(t *testing.T, signer TokenSigner) *fixture {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	if signer == nil {
		signer = NewHS256Signer(testSecret)
	}
	h := NewAuthHandler(signer, mock, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{BcryptCost: bcrypt.MinCost})
	now := time.Now().UTC().Truncate(time.Second)
	h.now = func() time.Time { return now }

	mux := http.NewServeMux()
	h.Register(mux)
	return &fixture{mock: mock, handler: h, mux: mux, now: now}
}

func (f *fixture) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func userRow(hash string, statusID int) *pgxmock.Rows {
	status := "ACTIVO"
	if statusID != 1 {
		status = "INACTIVO"
	}
	return pgxmock.NewRows(userCols).
		AddRow(userID, "Ana", "Ruiz", "ana@example.com", hash, 3, "PACIENTE", 1, statusID, status)
}

func TestLogin_IssuesTokensAndRecordsLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("FROM users u").
		WithArgs("ana@example.com").
		WillReturnRows(userRow(hashOf(t, "s3cret-pass"), 1))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(pgxmock.AnyArg(), userID, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO monitoring_records").
		WithArgs("LOGIN", "users", userID, userID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	rec := f.do(http.MethodPost, "/api/v1/auth/login", loginRequest{Email: "ana@example.com", Password: "s3cret-pass"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Len(t, resp.RefreshToken, 64)
	assert.Equal(t, "PACIENTE", resp.User.Role)

	claims, err := auth.ParseAndVerifyHS256(resp.AccessToken, testSecret)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.Subject)
	assert.Equal(t, "PACIENTE", claims.Role)
	assert.Equal(t, "Ana Ruiz", claims.Name)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestLogin_Rejections(t *testing.T) {
	t.Run("unknown email", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectQuery("FROM users u").WillReturnError(pgx.ErrNoRows)
		rec := f.do(http.MethodPost, "/api/v1/auth/login", loginRequest{Email: "nobody@example.com", Password: "whatever1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("wrong password", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectQuery("FROM users u").WillReturnRows(userRow(hashOf(t, "s3cret-pass"), 1))
		rec := f.do(http.MethodPost, "/api/v1/auth/login", loginRequest{Email: "ana@example.com", Password: "wrong-pass"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
	t.Run("inactive user", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mock.ExpectQuery("FROM users u").WillReturnRows(userRow(hashOf(t, "s3cret-pass"), 2))
		rec := f.do(http.MethodPost, "/api/v1/auth/login", loginRequest{Email: "ana@example.com", Password: "s3cret-pass"})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.JSONEq(t, `{"error":"user is inactive"}`, rec.Body.String())
	})
	t.Run("missing fields", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(http.MethodPost, "/api/v1/auth/login", loginRequest{Email: "ana@example.com"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSignUp_Validation(t *testing.T) {
	cases := []struct {
		name string
		req  registerRequest
		want string
	}{
		{"first name", registerRequest{LastName: "Ruiz", Email: "ana@example.com", Password: "longenough"}, "first_name is required"},
		{"email", registerRequest{FirstName: "Ana", LastName: "Ruiz", Email: "not-an-email", Password: "longenough"}, "email is invalid"},
		{"password", registerRequest{FirstName: "Ana", LastName: "Ruiz", Email: "ana@example.com", Password: "short"}, "password must be at least 8 characters"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, nil)
			rec := f.do(http.MethodPost, "/api/v1/auth/register", tc.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"`+tc.want+`"}`, rec.Body.String())
		})
	}
}

func TestSignUp_CreatesPatientWithOutboxEvent(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("INSERT INTO users").
		WithArgs("Ana", "Ruiz", "ana@example.com", "", "", pgxmock.AnyArg(), 3, 1).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(userID))
	f.mock.ExpectQuery("FROM users u").
		WithArgs(userID).
		WillReturnRows(userRow("hash", 1))
	f.mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "user", userID, "healpoint.user.registered.v1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO monitoring_records").
		WithArgs("CREATE", "users", userID, userID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	rec := f.do(http.MethodPost, "/api/v1/auth/register", registerRequest{
		FirstName: " Ana ", LastName: "Ruiz", Email: "Ana@Example.com", Password: "longenough",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSignUp_DuplicateEmail(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("INSERT INTO users").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
	f.mock.ExpectRollback()

	rec := f.do(http.MethodPost, "/api/v1/auth/register", registerRequest{
		FirstName: "Ana", LastName: "Ruiz", Email: "ana@example.com", Password: "longenough",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func refreshRow(expires time.Time, revoked *time.Time) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "revoked_at"}).
		AddRow("9d7c1f1e-5b7a-4c1e-9a53-0f8e2d6c4b10", userID, "hash", expires, revoked)
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FROM refresh_tokens").
		WillReturnRows(refreshRow(f.now.Add(time.Hour), nil))
	f.mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("9d7c1f1e-5b7a-4c1e-9a53-0f8e2d6c4b10").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectQuery("FROM users u").
		WithArgs(userID).
		WillReturnRows(userRow("hash", 1))
	f.mock.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	rec := f.do(http.MethodPost, "/api/v1/auth/refresh", tokenRequest{RefreshToken: "old-token"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEqual(t, "old-token", resp.RefreshToken)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRefresh_ReplayRevokesAllSessions(t *testing.T) {
	f := newFixture(t, nil)
	revokedAt := f.now.Add(-time.Minute)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FROM refresh_tokens").
		WillReturnRows(refreshRow(f.now.Add(time.Hour), &revokedAt))
	f.mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs(userID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	f.mock.ExpectCommit()

	rec := f.do(http.MethodPost, "/api/v1/auth/refresh", tokenRequest{RefreshToken: "stolen"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRefresh_Expired(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FROM refresh_tokens").
		WillReturnRows(refreshRow(f.now.Add(-time.Second), nil))
	f.mock.ExpectCommit()

	rec := f.do(http.MethodPost, "/api/v1/auth/refresh", tokenRequest{RefreshToken: "old"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"refresh token expired"}`, rec.Body.String())
}

func TestLogout_RecordsLogout(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectBegin()
	f.mock.ExpectQuery("FROM refresh_tokens").
		WillReturnRows(refreshRow(f.now.Add(time.Hour), nil))
	f.mock.ExpectExec("UPDATE refresh_tokens").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	f.mock.ExpectExec("INSERT INTO monitoring_records").
		WithArgs("LOGOUT", "users", userID, userID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	f.mock.ExpectCommit()

	rec := f.do(http.MethodPost, "/api/v1/auth/logout", tokenRequest{RefreshToken: "token"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMe(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/api/v1/auth/me", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.SignHS256(auth.NewClaims(userID, "PACIENTE", "Ana Ruiz", time.Now(), time.Hour), testSecret)
	require.NoError(t, err)
	f.mock.ExpectQuery("FROM users u").WithArgs(userID).WillReturnRows(userRow("hash", 1))
	rec = f.do(http.MethodGet, "/api/v1/auth/me", nil, "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code)

	var me userResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, userID, me.ID)
	assert.Equal(t, "ACTIVO", me.Status)
}

func TestJWKS_HS256NotAvailable(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/.well-known/jwks.json", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRotatingSigner_OldTokensStayValid(t *testing.T) {
	k1, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	k2, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := NewRotatingRS256Signer(map[string]*rsa.PrivateKey{"k1": k1, "k2": k2}, "k1", "operator-key")
	require.NoError(t, err)

	claims := auth.NewClaims(userID, "MEDICO", "", time.Now(), time.Hour)
	oldToken, err := signer.Sign(claims)
	require.NoError(t, err)

	f := newFixture(t, signer)
	rec := f.do(http.MethodPost, "/api/v1/auth/rotate", map[string]string{"active_kid": "k2"}, "X-Rotate-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	f.mock.ExpectExec("INSERT INTO monitoring_records").
		WithArgs("UPDATE", "signing_keys", "k2", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	rec = f.do(http.MethodPost, "/api/v1/auth/rotate", map[string]string{"active_kid": "k2"}, "X-Rotate-Key", "operator-key")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "k2", signer.ActiveKid())

	newToken, err := signer.Sign(claims)
	require.NoError(t, err)
	header, err := auth.ParseHeader(newToken)
	require.NoError(t, err)
	assert.Equal(t, "k2", header.Kid)

	_, err = signer.Verify(oldToken)
	assert.NoError(t, err)

	rec = f.do(http.MethodGet, "/.well-known/jwks.json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var set auth.JWKS
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&set))
	require.Len(t, set.Keys, 2)
	assert.Equal(t, "k1", set.Keys[0].Kid)
}
