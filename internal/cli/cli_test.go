package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("LINKVAULT_JWT_SECRET", testSecret)

	out, err := execute(t, "token", "alice", "--ttl", "1h")
	require.NoError(t, err)

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(strings.TrimSpace(out), &claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenCommandJSON(t *testing.T) {
	t.Setenv("LINKVAULT_JWT_SECRET", testSecret)

	out, err := execute(t, "token", "bob", "--json")
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "bob", body["identity"])
	assert.NotEmpty(t, body["token"])
}

func TestTokenCommandRejectsBadTTL(t *testing.T) {
	t.Setenv("LINKVAULT_JWT_SECRET", testSecret)

	_, err := execute(t, "token", "alice", "--ttl", "-1h")
	assert.Error(t, err)
}

func TestImportCommand(t *testing.T) {
	t.Setenv("LINKVAULT_BACKEND", "memory")

	path := filepath.Join(t.TempDir(), "services.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`- Media:
    - Jellyfin:
        href: https://jellyfin.example.com
        description: Movies
    - Broken:
        href: not a url
`), 0o644))

	out, err := execute(t, "import", "--owner", "alice", "--kind", "services", path)
	require.NoError(t, err)
	assert.Equal(t, "created 1, skipped 0, invalid 1\n", out)
}

func TestImportCommandValidation(t *testing.T) {
	t.Setenv("LINKVAULT_BACKEND", "memory")

	_, err := execute(t, "import", "somefile.yaml")
	assert.Error(t, err, "owner is required")

	_, err = execute(t, "import", "--owner", "alice", "--kind", "widgets", "somefile.yaml")
	assert.Error(t, err)

	_, err = execute(t, "import", "--owner", "alice", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "linkvault "))
}
