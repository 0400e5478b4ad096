package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeCodex = `#!/bin/sh
case "$1" in
  login)
    case "$2" in
      --with-api-key)
        IFS= read -r key
        printf '{"auth_mode":"api_key","OPENAI_API_KEY":"%s"}' "$key" > "$CODEX_HOME/auth.json"
        ;;
      --device-auth)
        echo "device flow unavailable" >&2
        exit 1
        ;;
      *)
        echo "opened browser"
        printf '{"auth_mode":"chatgpt","tokens":{"account_id":"acct-9"}}' > "$CODEX_HOME/auth.json"
        ;;
    esac
    ;;
  logout)
    [ -f "$CODEX_HOME/auth.json" ] || exit 4
    rm -f "$CODEX_HOME/auth.json"
    ;;
esac
`

func idToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	require.NoError(t, err)
	return "eyJhbGciOiJub25lIn0." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func noEnv(string) string { return "" }

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake codex is a shell script")
	}
	home := t.TempDir()
	t.Setenv("CODEX_HOME", home)
	bin := filepath.Join(t.TempDir(), "codex")
	require.NoError(t, os.WriteFile(bin, []byte(fakeCodex), 0o755))
	return NewService(WithHome(home), WithBinary(bin), WithGetenv(noEnv)), home
}

func TestParseAuthFile_ChatGPT(t *testing.T) {
	token := idToken(t, map[string]any{
		"email":         "ada@example.com",
		"auth_provider": "google",
		claimPlanType:   "plus",
	})
	data := `{"auth_mode":"chatgpt","tokens":{"id_token":"` + token + `","account_id":"acct-1"}}`

	user, err := ParseAuthFile([]byte(data), false)
	require.NoError(t, err)
	assert.Equal(t, &User{
		ID:           "acct-1",
		Email:        "ada@example.com",
		Name:         "ada",
		AuthMode:     "chatgpt",
		AuthProvider: "google",
		PlanType:     "plus",
	}, user)
}

func TestParseAuthFile_Fallbacks(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		envKey   bool
		wantName string
		wantID   string
		provider string
	}{
		{name: "empty object", data: `{}`, wantName: "codex-unknown", wantID: "codex-user"},
		{name: "api key mode", data: `{"auth_mode":"api_key"}`, wantName: "codex-api_key", wantID: "codex-user", provider: "api_key"},
		{name: "env api key", data: `{"auth_mode":"chatgpt"}`, envKey: true, wantName: "codex-chatgpt", wantID: "codex-user", provider: "api_key"},
		{name: "garbage token", data: `{"auth_mode":"chatgpt","tokens":{"id_token":"not-a-jwt"}}`, wantName: "codex-chatgpt", wantID: "codex-user"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := ParseAuthFile([]byte(tt.data), tt.envKey)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, user.Name)
			assert.Equal(t, tt.wantID, user.ID)
			assert.Equal(t, tt.provider, user.AuthProvider)
		})
	}
}

func TestParseAuthFile_InvalidJSON(t *testing.T) {
	_, err := ParseAuthFile([]byte("{"), false)
	require.Error(t, err)
}

func TestJWTClaims_PaddedPayload(t *testing.T) {
	payload := base64.URLEncoding.EncodeToString([]byte(`{"email":"x@y.z"}`))
	claims := jwtClaims("h." + payload + ".s")
	require.Equal(t, "x@y.z", claims["email"])
}

func TestCodexHome(t *testing.T) {
	require.Equal(t, "/opt/codex", CodexHome(func(k string) string {
		if k == "CODEX_HOME" {
			return "/opt/codex"
		}
		return ""
	}))
	require.Equal(t, ".codex", filepath.Base(CodexHome(noEnv)))
}

func TestCurrentUser_MissingFile(t *testing.T) {
	svc := NewService(WithHome(t.TempDir()), WithGetenv(noEnv))

	user, err := svc.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, user)
}

func TestCurrentUser_CachedUntilInvalidated(t *testing.T) {
	home := t.TempDir()
	svc := NewService(WithHome(home), WithGetenv(noEnv))
	path := filepath.Join(home, AuthFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"auth_mode":"chatgpt","tokens":{"account_id":"a"}}`), 0o600))

	user, err := svc.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", user.ID)

	require.NoError(t, os.WriteFile(path, []byte(`{"auth_mode":"chatgpt","tokens":{"account_id":"b"}}`), 0o600))
	user, _ = svc.CurrentUser(context.Background())
	require.Equal(t, "a", user.ID)

	svc.Invalidate()
	user, _ = svc.CurrentUser(context.Background())
	require.Equal(t, "b", user.ID)
}

func TestWatch_InvalidatesOnChange(t *testing.T) {
	home := t.TempDir()
	svc := NewService(WithHome(home), WithGetenv(noEnv))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Watch(ctx))

	user, err := svc.CurrentUser(ctx)
	require.NoError(t, err)
	require.Nil(t, user)

	path := filepath.Join(home, AuthFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"auth_mode":"chatgpt","tokens":{"account_id":"w"}}`), 0o600))

	require.Eventually(t, func() bool {
		u, _ := svc.CurrentUser(ctx)
		return u != nil && u.ID == "w"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatch_MissingHome(t *testing.T) {
	svc := NewService(WithHome(filepath.Join(t.TempDir(), "missing")), WithGetenv(noEnv))
	require.Error(t, svc.Watch(context.Background()))
}

func TestLogin_ReturnsCachedCredentials(t *testing.T) {
	svc, home := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, AuthFileName), []byte(`{"auth_mode":"chatgpt"}`), 0o600))

	res := svc.Login(context.Background(), MethodDeviceAuth, "")
	require.True(t, res.Success)
	require.Equal(t, "codex-chatgpt", res.User.Name)
	require.Empty(t, res.Method)
}

func TestLogin_Browser(t *testing.T) {
	svc, _ := newTestService(t)

	res := svc.Login(context.Background(), "", "")
	require.True(t, res.Success, res.Error)
	require.Equal(t, MethodBrowser, res.Method)
	require.Contains(t, res.Output, "opened browser")
	require.Equal(t, "acct-9", res.User.ID)
}

func TestLogin_APIKey(t *testing.T) {
	svc, _ := newTestService(t)

	res := svc.Login(context.Background(), "API-KEY", "  sk-test  ")
	require.True(t, res.Success, res.Error)
	require.Equal(t, "api_key", res.User.AuthProvider)
}

func TestLogin_APIKeyRequiresKey(t *testing.T) {
	svc, _ := newTestService(t)

	res := svc.Login(context.Background(), MethodAPIKey, "   ")
	require.False(t, res.Success)
	require.Equal(t, ErrEmptyAPIKey.Error(), res.Error)
}

func TestLogin_FailureUsesStderr(t *testing.T) {
	svc, _ := newTestService(t)

	res := svc.Login(context.Background(), MethodDeviceAuth, "")
	require.False(t, res.Success)
	require.Contains(t, res.Error, "device flow unavailable")
}

func TestLogout(t *testing.T) {
	svc, home := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(home, AuthFileName), []byte(`{}`), 0o600))
	user, _ := svc.CurrentUser(context.Background())
	require.NotNil(t, user)

	require.NoError(t, svc.Logout(context.Background()))
	user, err := svc.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Nil(t, user)

	require.EqualError(t, svc.Logout(context.Background()), "codex logout failed with exit code 4")
}

func TestLoginMethods(t *testing.T) {
	methods := LoginMethods()
	require.Len(t, methods, 3)
	require.Equal(t, MethodBrowser, methods[0].ID)
}
