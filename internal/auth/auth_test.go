package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"organizer/internal/models"
	"organizer/internal/storage/local"
)

type fixture struct {
	svc   *Service
	store *local.Store
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := local.Open(t.TempDir(), local.Options{})
	require.NoError(t, err)
	f := &fixture{store: store, now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.svc, err = NewService(store, Config{
		Secret:     []byte("test-secret"),
		BcryptCost: bcrypt.MinCost,
		Now:        func() time.Time { return f.now },
	})
	require.NoError(t, err)
	return f
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(nil, Config{})
	assert.Error(t, err)
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.Register(ctx, "  Ada@Example.com ", "hunter2", "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, "ada@example.com", sess.User.Name, "name defaults to email")
	assert.True(t, sess.User.Preferences.DarkMode)
	assert.Equal(t, f.now.Add(DefaultTTL), sess.ExpiresAt)

	_, err = f.svc.Register(ctx, "ADA@example.com", "other", "Ada")
	assert.True(t, errors.Is(err, models.ErrDuplicateEmail))

	login, err := f.svc.Login(ctx, "ADA@EXAMPLE.COM", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	_, err = f.svc.Login(ctx, "ada@example.com", "wrong")
	assert.True(t, errors.Is(err, models.ErrInvalidCredentials))
	_, err = f.svc.Login(ctx, "nobody@example.com", "hunter2")
	assert.True(t, errors.Is(err, models.ErrInvalidCredentials))
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, email := range []string{"", "not-an-email", "Ada <ada@example.com>"} {
		_, err := f.svc.Register(ctx, email, "pw", "x")
		assert.True(t, errors.Is(err, models.ErrValidation), "email %q", email)
	}
	_, err := f.svc.Register(ctx, "ok@example.com", "", "x")
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestTokenClaims(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Register(context.Background(), "claims@example.com", "pw", "C")
	require.NoError(t, err)

	var c claims
	_, _, err = jwt.NewParser().ParseUnverified(sess.Token, &c)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, c.Subject)
	assert.Equal(t, sess.User.ID, c.UserID)
	assert.Equal(t, "claims@example.com", c.Email)
	assert.NotEmpty(t, c.ID)
}

func TestCurrentSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.svc.Register(ctx, "s@example.com", "pw", "S")
	require.NoError(t, err)

	got, err := f.svc.CurrentSession(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, got.User.ID)

	_, err = f.svc.CurrentSession(ctx, "")
	assert.True(t, errors.Is(err, models.ErrUnauthenticated))
	_, err = f.svc.CurrentSession(ctx, sess.Token+"x")
	assert.True(t, errors.Is(err, models.ErrUnauthenticated))

	other, err := NewService(f.store, Config{Secret: []byte("other"), Now: func() time.Time { return f.now }})
	require.NoError(t, err)
	_, err = other.CurrentSession(ctx, sess.Token)
	assert.True(t, errors.Is(err, models.ErrUnauthenticated), "foreign secret")

	f.now = f.now.Add(DefaultTTL + time.Minute)
	_, err = f.svc.CurrentSession(ctx, sess.Token)
	assert.True(t, errors.Is(err, models.ErrUnauthenticated), "expired")
}

func TestRejectsUnsignedTokens(t *testing.T) {
	f := newFixture(t)
	sess, err := f.svc.Register(context.Background(), "none@example.com", "pw", "N")
	require.NoError(t, err)

	forged := jwt.NewWithClaims(jwt.SigningMethodNone, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.User.ID,
			ID:        "x",
			ExpiresAt: jwt.NewNumericDate(f.now.Add(time.Hour)),
		},
	})
	raw, err := forged.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = f.svc.CurrentSession(context.Background(), raw)
	assert.True(t, errors.Is(err, models.ErrUnauthenticated))
}

func TestLogoutRevokes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// The fixture clock sits in 2024, so the revocation must be judged on it.
	sess, err := f.svc.Register(ctx, "bye@example.com", "pw", "B")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, sess.Token))
	_, err = f.svc.CurrentSession(ctx, sess.Token)
	assert.True(t, errors.Is(err, models.ErrUnauthenticated))

	fresh, err := f.svc.Login(ctx, "bye@example.com", "pw")
	require.NoError(t, err)
	_, err = f.svc.CurrentSession(ctx, fresh.Token)
	assert.NoError(t, err)

	f.now = f.now.Add(DefaultTTL + time.Minute)
	_, err = f.svc.CurrentSession(ctx, sess.Token)
	assert.True(t, errors.Is(err, models.ErrUnauthenticated), "expired as well as revoked")
}

func TestDeletedAccountIsUnauthenticated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess, err := f.svc.Register(ctx, "gone@example.com", "pw", "G")
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteUser(ctx, sess.User.ID))

	_, err = f.svc.CurrentSession(ctx, sess.Token)
	assert.True(t, errors.Is(err, models.ErrUnauthenticated))
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, BearerToken(r))
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, BearerToken(r))
	r.Header.Set("Authorization", "bearer abc.def")
	assert.Equal(t, "abc.def", BearerToken(r))
}

func TestRequireSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newFixture(t)
	sess, err := f.svc.Register(context.Background(), "mw@example.com", "pw", "M")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", f.svc.RequireSession(), func(c *gin.Context) {
		s, ok := SessionFromContext(c.Request.Context())
		require.True(t, ok)
		c.String(http.StatusOK, s.User.Email)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+sess.Token)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mw@example.com", rec.Body.String())
}
