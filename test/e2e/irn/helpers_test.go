package irn_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gstirn/internal/irnctl/app"
	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/slogx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

// sandboxConfig loads sandbox credentials from IRN_* variables (and
// IRN_CONFIG, a YAML file, when set). The suite is skipped unless IRN_E2E=1
// because it talks to the real sandbox and consumes its quota.
func sandboxConfig(t *testing.T) app.Config {
	t.Helper()

	if os.Getenv("IRN_E2E") != "1" {
		t.Skip("set IRN_E2E=1 and the IRN_PORTAL_* credentials to run sandbox tests")
	}

	cfg, err := app.LoadConfig(os.Getenv("IRN_CONFIG"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

// newSession returns a session with its own file cache under t.TempDir.
func newSession(t *testing.T, cfg app.Config) *irnsdk.Session {
	t.Helper()

	cache := tokencache.New(
		tokencache.NewFileBackend(filepath.Join(t.TempDir(), "tokens")),
		tokencache.WithLogger(slogx.Discard()),
	)
	client := irnsdk.NewSDKClient(cfg.Portal.BaseURL, irnsdk.WithTimeout(cfg.HTTP.Timeout))
	session := client.NewSession(cfg.Credentials(), irnsdk.WithCache(cache), irnsdk.WithLogger(slogx.Discard()))
	require.NoError(t, session.GenerateToken(t.Context(), false))
	return session
}
