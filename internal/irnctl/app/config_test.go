package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/irnsdk/irntest"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache/drivers/sqlite"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "irn.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, irnsdk.SandboxURL, cfg.Portal.BaseURL)
	require.Equal(t, "pkcs1", cfg.Portal.Padding)
	require.Equal(t, CacheFile, cfg.Cache.Driver)
	require.Equal(t, tokencache.DefaultDir, cfg.Cache.Dir)
	require.Equal(t, tokencache.DefaultSafetyMargin, cfg.Cache.SafetyMargin)
	require.Equal(t, 10*time.Second, cfg.HTTP.Timeout)

	err = cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "portal.gstin is required")
	require.Contains(t, err.Error(), "portal.public_key is required")
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "portal.pem")
	require.NoError(t, os.WriteFile(keyPath, []byte("-----BEGIN PUBLIC KEY-----\n"), 0o600))

	path := writeConfig(t, `
portal:
  gstin: 29AAACP7879D1Z0
  client_id: from-file
  client_secret: secret
  username: API_TEST
  password: hunter2
  public_key_file: `+keyPath+`
  padding: oaep
  gsp_headers:
    gsp-id: GSP42
cache:
  driver: sqlite
  dsn: /tmp/tokens.db
http:
  timeout: 30s
  rate_limit: 5
`)

	t.Setenv("IRN_PORTAL_CLIENT_ID", "from-env")
	t.Setenv("IRN_CACHE_SAFETY_MARGIN", "15m")
	t.Setenv("IRN_HTTP_LOG_REQUESTS", "true")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "from-env", cfg.Portal.ClientID)
	require.Equal(t, "secret", cfg.Portal.ClientSecret)
	require.Equal(t, "oaep", cfg.Portal.Padding)
	require.Equal(t, "-----BEGIN PUBLIC KEY-----\n", cfg.Portal.PublicKey)
	require.Equal(t, map[string]string{"gsp-id": "GSP42"}, cfg.Portal.GSPHeaders)
	require.Equal(t, CacheSQLite, cfg.Cache.Driver)
	require.Equal(t, "/tmp/tokens.db", cfg.Cache.DSN)
	require.Equal(t, 15*time.Minute, cfg.Cache.SafetyMargin)
	require.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	require.Equal(t, 5, cfg.HTTP.RateLimit)
	require.True(t, cfg.HTTP.LogRequests)

	creds := cfg.Credentials()
	require.Equal(t, "from-env", creds.ClientID)
	require.Equal(t, irnsdk.SandboxURL, creds.BaseURL)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := writeConfig(t, "portal:\n  public_key_file: /nonexistent/key.pem\n")
	_, err = LoadConfig(path)
	require.ErrorContains(t, err, "read public key")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.Cache.Driver = "etcd"
	cfg.Portal.Padding = "pss"
	err = cfg.Validate()
	require.ErrorContains(t, err, `unknown cache.driver "etcd"`)
	require.ErrorContains(t, err, `unknown padding "pss"`)

	cfg.Cache.Driver = CacheRedis
	require.ErrorContains(t, cfg.Validate(), "cache.redis_url is required")
}

func TestNew_AgainstPortal(t *testing.T) {
	portal := irntest.New(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	creds := portal.Credentials()
	cfg.Portal.BaseURL = portal.URL
	cfg.Portal.GSTIN = creds.GSTIN
	cfg.Portal.ClientID = creds.ClientID
	cfg.Portal.ClientSecret = creds.ClientSecret
	cfg.Portal.Username = creds.Username
	cfg.Portal.Password = creds.Password
	cfg.Portal.PublicKey = creds.PublicKey
	cfg.Log.Level = "error"

	t.Run("sealed sqlite cache survives restarts", func(t *testing.T) {
		cfg := cfg
		cfg.Cache.Driver = CacheSQLite
		cfg.Cache.DSN = filepath.Join(t.TempDir(), "tokens.db")
		cfg.Cache.Passphrase = "correct horse"

		for range 2 {
			application, err := New(context.Background(), cfg)
			require.NoError(t, err)
			require.NoError(t, application.Session().GenerateToken(context.Background(), false))
			require.True(t, application.Session().Authenticated())
			require.NoError(t, application.Close())
		}
		require.Equal(t, 1, portal.AuthCalls())
	})

	t.Run("no cache", func(t *testing.T) {
		cfg := cfg
		cfg.Cache.Driver = CacheNone
		cfg.HTTP.RateLimit = 100
		cfg.HTTP.LogRequests = true

		application, err := New(context.Background(), cfg)
		require.NoError(t, err)
		defer application.Close()

		require.NoError(t, application.Session().GenerateToken(context.Background(), false))
		require.Equal(t, 2, portal.AuthCalls())
	})

	t.Run("invalid", func(t *testing.T) {
		cfg := cfg
		cfg.Portal.Password = ""
		_, err := New(context.Background(), cfg)
		require.ErrorContains(t, err, "portal.password is required")
	})
}

func portalConfig(t *testing.T, portal *irntest.Portal) Config {
	t.Helper()

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	creds := portal.Credentials()
	cfg.Portal.BaseURL = portal.URL
	cfg.Portal.GSTIN = creds.GSTIN
	cfg.Portal.ClientID = creds.ClientID
	cfg.Portal.ClientSecret = creds.ClientSecret
	cfg.Portal.Username = creds.Username
	cfg.Portal.Password = creds.Password
	cfg.Portal.PublicKey = creds.PublicKey
	cfg.Log.Level = "error"
	return cfg
}

func TestNew_SQLitePrunesExpiredRows(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "tokens.db")

	store, err := sqlite.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, "stale", tokencache.Entry{
		Token:  "old",
		SEK:    "c2Vr",
		Expiry: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.Put(ctx, "live", tokencache.Entry{
		Token:  "new",
		SEK:    "c2Vr",
		Expiry: time.Now().Add(time.Hour),
	}))
	require.NoError(t, store.Close())

	cfg := portalConfig(t, irntest.New(t))
	cfg.Cache.Driver = CacheSQLite
	cfg.Cache.DSN = dsn

	application, err := New(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, application.Close())

	store, err = sqlite.Open(dsn)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, "stale")
	require.ErrorIs(t, err, tokencache.ErrNotFound)
	live, err := store.Get(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, "new", live.Token)
}

func TestNew_RecordsMetrics(t *testing.T) {
	ctx := context.Background()
	portal := irntest.New(t)

	cfg := portalConfig(t, portal)
	cfg.Cache.Driver = CacheMemory

	application, err := New(ctx, cfg)
	require.NoError(t, err)
	defer application.Close()

	require.NoError(t, application.Session().GenerateToken(ctx, false))

	var buf bytes.Buffer
	require.NoError(t, application.WriteMetrics(&buf))
	require.Contains(t, buf.String(), `irn_auth_requests_total{outcome="ok"} 1`)
	require.Contains(t, buf.String(), `irn_token_cache_lookups_total{result="miss"} 1`)
	require.Contains(t, buf.String(), `irn_token_cache_writes_total{result="ok"} 1`)
}
