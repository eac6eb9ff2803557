package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vyrodovalexey/storefront/internal/auth"
)

func bcryptHash(t *testing.T, password string) string {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	return string(hash)
}

func TestWithAuthInfoAndFromContext(t *testing.T) {
	t.Parallel()

	// Arrange
	info := &auth.AuthInfo{Method: auth.AuthMethodBasic, Subject: "alice"}

	// Act
	got, ok := auth.FromContext(auth.WithAuthInfo(context.Background(), info))
	_, emptyOK := auth.FromContext(context.Background())

	// Assert
	require.True(t, ok)
	assert.Same(t, info, got)
	assert.False(t, emptyOK)
}

func TestNew(t *testing.T) {
	t.Parallel()

	users := "alice:" + bcryptHash(t, "secret")

	tests := []struct {
		name       string
		mode       string
		users      string
		keys       string
		wantMethod auth.AuthMethod
		wantNil    bool
		wantErr    bool
	}{
		{name: "empty mode disables auth", mode: "", wantNil: true},
		{name: "none", mode: "none", wantNil: true},
		{name: "basic", mode: "basic", users: users, wantMethod: auth.AuthMethodBasic},
		{name: "basic without users", mode: "basic", wantErr: true},
		{name: "apikey", mode: "apikey", keys: "k1:ops", wantMethod: auth.AuthMethodAPIKey},
		{name: "multi with both", mode: "multi", users: users, keys: "k1:ops", wantMethod: auth.AuthMethodMulti},
		{name: "multi with keys only", mode: "multi", keys: "k1:ops", wantMethod: auth.AuthMethodMulti},
		{name: "multi with nothing", mode: "multi", wantErr: true},
		{name: "unknown mode", mode: "oauth", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			a, err := auth.New(tt.mode, tt.users, tt.keys)

			// Assert
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, a)
				return
			}
			require.NotNil(t, a)
			assert.Equal(t, tt.wantMethod, a.Method())
		})
	}
}

func TestNew_MultiAcceptsEitherCredential(t *testing.T) {
	t.Parallel()

	// Arrange
	a, err := auth.New("multi", "alice:"+bcryptHash(t, "secret"), "k1:ops")
	require.NoError(t, err)

	basicReq := httptest.NewRequest(http.MethodPost, "/items", nil)
	basicReq.SetBasicAuth("alice", "secret")
	keyReq := httptest.NewRequest(http.MethodPost, "/items", nil)
	keyReq.Header.Set(auth.APIKeyHeader, "k1")
	noneReq := httptest.NewRequest(http.MethodPost, "/items", nil)

	// Act
	basicInfo, basicErr := a.Authenticate(basicReq)
	keyInfo, keyErr := a.Authenticate(keyReq)
	_, noneErr := a.Authenticate(noneReq)

	// Assert
	require.NoError(t, basicErr)
	assert.Equal(t, "alice", basicInfo.Subject)
	require.NoError(t, keyErr)
	assert.Equal(t, "ops", keyInfo.Subject)
	assert.ErrorIs(t, noneErr, auth.ErrUnauthenticated)
}
