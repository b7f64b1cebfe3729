package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/app/model"
	"parley/internal/app/store"
	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/errs"
)

const secret = "identity-secret"

type mockUsers struct {
	GetUserByIDFunc func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUsers) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return m.GetUserByIDFunc(ctx, id)
}

func usersWith(u *model.User) *mockUsers {
	return &mockUsers{GetUserByIDFunc: func(_ context.Context, id string) (*model.User, error) {
		if u != nil && id == u.ID {
			return u, nil
		}
		return nil, store.ErrNotFound
	}}
}

func sign(t *testing.T, p *jwt.Payload, ttl time.Duration) string {
	t.Helper()
	token, err := jwt.GenerateToken(p, secret, ttl)
	require.NoError(t, err)
	return token
}

func TestResolve(t *testing.T) {
	alice := &model.User{ID: "u-1", Username: "alice", Email: "a@example.com", Preferences: model.DefaultPreferences()}
	res := NewResolver(usersWith(alice), secret)
	ctx := context.Background()

	userToken := sign(t, &jwt.Payload{Kind: jwt.KindUser, UserID: "u-1"}, time.Hour)
	ghostToken := sign(t, &jwt.Payload{Kind: jwt.KindUser, UserID: "ghost"}, time.Hour)
	guestToken := sign(t, &jwt.Payload{Kind: jwt.KindGuest, DisplayName: "Bob"}, time.Hour)
	expired := sign(t, &jwt.Payload{Kind: jwt.KindUser, UserID: "u-1"}, -time.Minute)

	tests := []struct {
		name       string
		token      string
		tolerant   Identity
		strictCode int
		strict     Identity
	}{
		{"no token", "", Anonymous{}, errs.ErrUnauthorized, nil},
		{"malformed", "garbage", Anonymous{}, errs.ErrUnauthorized, nil},
		{"expired", expired, Anonymous{}, errs.ErrUnauthorized, nil},
		{"unknown user", ghostToken, Anonymous{}, errs.ErrUnauthorized, nil},
		{"guest", guestToken, Guest{DisplayName: "Bob"}, 0, Guest{DisplayName: "Bob"}},
		{"user", userToken, FromUser(alice), 0, FromUser(alice)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := res.Resolve(ctx, tt.token, Tolerant)
			require.NoError(t, err)
			assert.Equal(t, tt.tolerant, id)

			id, err = res.Resolve(ctx, tt.token, Strict)
			if tt.strictCode != 0 {
				assert.True(t, errs.HasCode(err, tt.strictCode))
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.strict, id)
		})
	}
}

func TestResolveStorageFailure(t *testing.T) {
	users := &mockUsers{GetUserByIDFunc: func(context.Context, string) (*model.User, error) {
		return nil, errors.New("connection refused")
	}}
	res := NewResolver(users, secret)
	token := sign(t, &jwt.Payload{Kind: jwt.KindUser, UserID: "u-1"}, time.Hour)

	id, err := res.Resolve(context.Background(), token, Tolerant)
	require.NoError(t, err)
	assert.Equal(t, Anonymous{}, id)

	_, err = res.Resolve(context.Background(), token, Strict)
	assert.True(t, errs.HasCode(err, errs.ErrUnknown))
}

func TestMiddleware(t *testing.T) {
	alice := &model.User{ID: "u-1", Username: "alice"}
	res := NewResolver(usersWith(alice), secret)

	var seen Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("tolerant passes anonymous through", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer junk")
		Middleware(res, Tolerant)(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, Anonymous{}, seen)
	})

	t.Run("strict rejects", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		Middleware(res, Strict)(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("query token for handshakes", func(t *testing.T) {
		token := sign(t, &jwt.Payload{Kind: jwt.KindUser, UserID: "u-1"}, time.Hour)
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		Middleware(res, Strict)(next).ServeHTTP(w, r)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, FromUser(alice), seen)
	})
}

func TestRequireUser(t *testing.T) {
	_, err := RequireUser(context.Background())
	assert.True(t, errs.HasCode(err, errs.ErrUnauthorized))

	_, err = RequireUser(WithIdentity(context.Background(), Guest{DisplayName: "Bob"}))
	assert.True(t, errs.HasCode(err, errs.ErrForbidden))

	a, err := RequireUser(WithIdentity(context.Background(), Authenticated{UserID: "u"}))
	require.NoError(t, err)
	assert.Equal(t, "u", a.UserID)
}

func TestKindAndUserID(t *testing.T) {
	assert.Equal(t, "user", Kind(Authenticated{}))
	assert.Equal(t, "guest", Kind(Guest{}))
	assert.Equal(t, "anonymous", Kind(Anonymous{}))

	id, ok := UserID(Authenticated{UserID: "x"})
	assert.True(t, ok)
	assert.Equal(t, "x", id)

	_, ok = UserID(Guest{})
	assert.False(t, ok)
}
