package irnsdk_test

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/httpx"
	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/irnsdk/irntest"
	"github.com/aussiebroadwan/gstirn/pkg/metricsx"
	"github.com/aussiebroadwan/gstirn/pkg/slogx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const buyerGSTIN = "27AAACP7879D1Z0"

func buyerParty() irnsdk.Document {
	return irnsdk.Document{
		"Gstin":     buyerGSTIN,
		"TradeName": "ACME TRADERS",
		"LegalName": "ACME TRADERS PRIVATE LIMITED",
		"AddrBnm":   "SUNRISE TOWERS",
		"AddrBno":   "12",
		"AddrFlno":  "4",
		"AddrSt":    "MG ROAD",
		"AddrLoc":   "PUNE",
		"StateCode": 27.0,
		"AddrPncd":  411001.0,
		"TxpType":   "REG",
		"Status":    "ACT",
	}
}

// newSession returns a session against portal backed by an in-memory cache.
func newSession(t *testing.T, portal *irntest.Portal, opts ...irnsdk.SessionOption) (*irnsdk.Session, *tokencache.MemoryBackend) {
	t.Helper()

	backend := tokencache.NewMemoryBackend()
	opts = append([]irnsdk.SessionOption{
		irnsdk.WithCache(tokencache.New(backend, tokencache.WithLogger(slogx.Discard()))),
		irnsdk.WithLogger(slogx.Discard()),
	}, opts...)

	client := irnsdk.NewSDKClient(portal.URL)
	return client.NewSession(portal.Credentials(), opts...), backend
}

func TestGenerateToken_Handshake(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t)
	session, backend := newSession(t, portal)

	require.False(t, session.Authenticated())
	require.NoError(t, session.GenerateToken(ctx, false))
	require.True(t, session.Authenticated())
	require.Equal(t, 1, portal.AuthCalls())

	// The SEK the session decrypted is the one the portal issued.
	sek, ok := portal.SEKFor(session.AuthToken())
	require.True(t, ok)
	require.Equal(t, sek, session.SEK())
	require.WithinDuration(t, time.Now().Add(6*time.Hour), session.ExpiresAt(), time.Minute)
	require.Equal(t, 1, backend.Len())

	req, ok := portal.LastRequest()
	require.True(t, ok)
	require.Equal(t, "/eivital/v1.04/auth", req.Path)
	require.Equal(t, portal.ClientID, req.Header.Get("client-id"))
	require.Equal(t, portal.ClientSecret, req.Header.Get("client-secret"))
	require.Equal(t, portal.GSTIN, req.Header.Get("gstin"))
	require.Empty(t, req.Header.Get("AuthToken"))
}

func TestGenerateToken_CacheHitSkipsNetwork(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t)
	session, backend := newSession(t, portal)

	cache := tokencache.New(backend)
	cached := tokencache.Entry{
		Token:  "T1",
		SEK:    base64.StdEncoding.EncodeToString([]byte(strings.Repeat("0", 32))),
		Expiry: time.Now().Add(time.Hour),
	}
	cache.Store(ctx, session.Credentials().CacheFields(), cached)

	require.NoError(t, session.GenerateToken(ctx, false))
	require.Equal(t, "T1", session.AuthToken())
	require.Equal(t, cached.SEK, session.SEK())
	require.Empty(t, portal.Requests())
}

func TestGenerateToken_SharedCacheAcrossSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t)
	cache := tokencache.New(tokencache.NewMemoryBackend())
	client := irnsdk.NewSDKClient(portal.URL)

	first := client.NewSession(portal.Credentials(), irnsdk.WithCache(cache), irnsdk.WithLogger(slogx.Discard()))
	second := client.NewSession(portal.Credentials(), irnsdk.WithCache(cache), irnsdk.WithLogger(slogx.Discard()))

	require.NoError(t, first.GenerateToken(ctx, false))
	require.NoError(t, second.GenerateToken(ctx, false))
	require.Equal(t, 1, portal.AuthCalls())
	require.Equal(t, first.AuthToken(), second.AuthToken())

	// A different user does not share the slot.
	creds := portal.Credentials()
	creds.Username = "someone-else"
	third := client.NewSession(creds, irnsdk.WithCache(cache), irnsdk.WithLogger(slogx.Discard()))
	err := third.GenerateToken(ctx, false)
	require.True(t, irnsdk.IsBusiness(err))
	require.Equal(t, 2, portal.AuthCalls())
}

func TestGenerateToken_NearExpiryEntryIsIgnored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t)
	session, backend := newSession(t, portal)

	tokencache.New(backend).Store(ctx, session.Credentials().CacheFields(), tokencache.Entry{
		Token:  "stale",
		SEK:    base64.StdEncoding.EncodeToString(make([]byte, 32)),
		Expiry: time.Now().Add(5 * time.Minute),
	})

	require.NoError(t, session.GenerateToken(ctx, false))
	require.NotEqual(t, "stale", session.AuthToken())
	require.Equal(t, 1, portal.AuthCalls())
}

func TestGenerateToken_ForceAlwaysAuthenticates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t)
	session, backend := newSession(t, portal)
	cache := tokencache.New(backend)
	fields := session.Credentials().CacheFields()

	cache.Store(ctx, fields, tokencache.Entry{
		Token:  "T1",
		SEK:    base64.StdEncoding.EncodeToString(make([]byte, 32)),
		Expiry: time.Now().Add(time.Hour),
	})

	require.NoError(t, session.GenerateToken(ctx, true))
	require.Equal(t, 1, portal.AuthCalls())
	require.NotEqual(t, "T1", session.AuthToken())

	entry, ok := cache.Lookup(ctx, fields)
	require.True(t, ok)
	require.Equal(t, session.AuthToken(), entry.Token)
	require.Equal(t, session.SEK(), entry.SEK)

	require.NoError(t, session.GenerateToken(ctx, true))
	require.Equal(t, 2, portal.AuthCalls())
}

func TestGenerateToken_BusinessFailureWritesNoCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t)
	session, backend := newSession(t, portal)

	portal.FailNext(irntest.Failure{Code: irntest.CodeInvalidLogin, Message: "Invalid UserName or Password"})

	err := session.GenerateToken(ctx, false)
	require.Error(t, err)

	var reqErr *irnsdk.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, irnsdk.KindBusiness, reqErr.Kind)
	require.Equal(t, "action failed", reqErr.Message)
	require.Equal(t, 200, reqErr.StatusCode)
	require.True(t, reqErr.HasCode(irntest.CodeInvalidLogin))
	require.Contains(t, string(reqErr.Body), "Invalid UserName or Password")

	require.False(t, session.Authenticated())
	require.Zero(t, backend.Len())
}

func TestGenerateToken_WrongPassword(t *testing.T) {
	t.Parallel()

	portal := irntest.New(t)
	creds := portal.Credentials()
	creds.Password = "wrong"

	session := irnsdk.NewSDKClient(portal.URL).NewSession(creds, irnsdk.WithoutCache(), irnsdk.WithLogger(slogx.Discard()))
	err := session.GenerateToken(context.Background(), false)

	var reqErr *irnsdk.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.True(t, reqErr.HasCode(irntest.CodeInvalidLogin))
}

func TestGenerateToken_TransportFailure(t *testing.T) {
	t.Parallel()

	portal := irntest.New(t)
	session, backend := newSession(t, portal)
	portal.FailNext(irntest.Failure{HTTPStatus: 503})

	err := session.GenerateToken(context.Background(), false)
	require.True(t, irnsdk.IsTransport(err))
	require.False(t, irnsdk.IsBusiness(err))

	var reqErr *irnsdk.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, 503, reqErr.StatusCode)
	require.Equal(t, "status 503", reqErr.Message)
	require.Zero(t, backend.Len())
}

func TestGenerateToken_UnreachablePortal(t *testing.T) {
	t.Parallel()

	portal := irntest.New(t)
	session, _ := newSession(t, portal)
	portal.Close()

	err := session.GenerateToken(context.Background(), false)

	var tokenErr *irnsdk.GenerateTokenError
	require.ErrorAs(t, err, &tokenErr)
	require.NotErrorIs(t, err, irnsdk.ErrNoSessionKey)
}

func TestGenerateToken_BadPublicKey(t *testing.T) {
	t.Parallel()

	portal := irntest.New(t)
	creds := portal.Credentials()
	creds.PublicKey = "not a key"

	session := irnsdk.NewSDKClient(portal.URL).NewSession(creds, irnsdk.WithoutCache())
	err := session.GenerateToken(context.Background(), false)

	var cryptoErr *cryptox.CryptoError
	require.ErrorAs(t, err, &cryptoErr)
	require.ErrorIs(t, err, cryptox.ErrInvalidKey)
	require.Empty(t, portal.Requests())
}

func TestGenerateToken_PublicKeyForms(t *testing.T) {
	t.Parallel()

	t.Run("bare base64 DER", func(t *testing.T) {
		t.Parallel()

		portal := irntest.New(t)
		creds := portal.Credentials()
		creds.PublicKey = portal.PublicKeyDER()

		session := irnsdk.NewSDKClient(portal.URL).NewSession(creds, irnsdk.WithoutCache(), irnsdk.WithLogger(slogx.Discard()))
		require.NoError(t, session.GenerateToken(context.Background(), false))
	})

	t.Run("OAEP portal", func(t *testing.T) {
		t.Parallel()

		portal := irntest.New(t, irntest.WithPadding(cryptox.PaddingOAEP))
		session, _ := newSession(t, portal, irnsdk.WithPadding(cryptox.PaddingOAEP))
		require.NoError(t, session.GenerateToken(context.Background(), false))
	})

	t.Run("padding mismatch", func(t *testing.T) {
		t.Parallel()

		portal := irntest.New(t, irntest.WithPadding(cryptox.PaddingOAEP))
		session, _ := newSession(t, portal)
		require.True(t, irnsdk.IsBusiness(session.GenerateToken(context.Background(), false)))
	})
}

func TestGenerateToken_FileCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t)
	dir := filepath.Join(t.TempDir(), "tokens_cache")
	cache := tokencache.New(tokencache.NewFileBackend(dir))

	session := irnsdk.NewSDKClient(portal.URL).NewSession(portal.Credentials(), irnsdk.WithCache(cache), irnsdk.WithLogger(slogx.Discard()))
	require.NoError(t, session.GenerateToken(ctx, false))

	path := filepath.Join(dir, tokencache.KeyFor(session.Credentials().CacheFields())+".json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), session.AuthToken())
	require.Contains(t, string(raw), `"expiry_time"`)
}

func TestAuthenticatedCalls_RequireToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t)
	session, _ := newSession(t, portal)

	_, err := session.GetPartyInfo(ctx, buyerGSTIN)
	var tokenErr *irnsdk.GenerateTokenError
	require.ErrorAs(t, err, &tokenErr)
	require.ErrorIs(t, err, irnsdk.ErrNoSessionKey)

	_, err = session.GenerateInvoice(ctx, map[string]any{})
	require.ErrorIs(t, err, irnsdk.ErrNoSessionKey)

	_, err = session.Get(ctx, "/anything", nil)
	require.ErrorIs(t, err, irnsdk.ErrNoSessionKey)

	require.Empty(t, portal.Requests())
}

func TestGetPartyInfo(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t, irntest.WithParty(buyerGSTIN, buyerParty()))
	session, _ := newSession(t, portal, irnsdk.WithGSPHeaders(map[string]string{"gsp-id": "GSP42"}))
	require.NoError(t, session.GenerateToken(ctx, false))

	party, err := session.GetPartyInfo(ctx, buyerGSTIN)
	require.NoError(t, err)
	require.Equal(t, buyerParty(), party)

	req, ok := portal.LastRequest()
	require.True(t, ok)
	require.Equal(t, "/eivital/v1.04/Master/gstin/"+buyerGSTIN, req.Path)
	require.Equal(t, portal.ClientID, req.Header.Get("client-id"))
	require.Equal(t, portal.ClientSecret, req.Header.Get("client-secret"))
	require.Equal(t, portal.GSTIN, req.Header.Get("gstin"))
	require.Equal(t, portal.Username, req.Header.Get("user_name"))
	require.Equal(t, session.AuthToken(), req.Header.Get("AuthToken"))
	require.Equal(t, "GSP42", req.Header.Get("gsp-id"))

	t.Run("unknown gstin", func(t *testing.T) {
		_, err := session.GetPartyInfo(ctx, "07AAACP7879D1Z0")

		var reqErr *irnsdk.RequestError
		require.ErrorAs(t, err, &reqErr)
		require.Equal(t, irnsdk.KindBusiness, reqErr.Kind)
		require.True(t, reqErr.HasCode(irntest.CodeNotFound))
	})
}

func TestGetPartyInfo_SandboxTrailingBytes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t,
		irntest.WithParty(buyerGSTIN, buyerParty()),
		irntest.WithTrailingBytes([]byte("\x03\x03\x03")),
	)
	session, _ := newSession(t, portal)
	require.NoError(t, session.GenerateToken(ctx, false))

	party, err := session.GetPartyInfo(ctx, buyerGSTIN)
	require.NoError(t, err)
	require.Equal(t, buyerGSTIN, party.String("Gstin"))
}

func TestExpiredTokenIsNotRetried(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t, irntest.WithParty(buyerGSTIN, buyerParty()))
	session, _ := newSession(t, portal)
	require.NoError(t, session.GenerateToken(ctx, false))

	portal.RevokeTokens()
	requests := len(portal.Requests())

	_, err := session.GetPartyInfo(ctx, buyerGSTIN)
	var reqErr *irnsdk.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.True(t, reqErr.HasCode(irntest.CodeInvalidToken))
	require.Equal(t, 1, portal.AuthCalls())
	require.Len(t, portal.Requests(), requests+1)

	require.NoError(t, session.GenerateToken(ctx, true))
	_, err = session.GetPartyInfo(ctx, buyerGSTIN)
	require.NoError(t, err)
}

func TestPortalRateLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t,
		irntest.WithParty(buyerGSTIN, buyerParty()),
		irntest.WithRateLimit(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 1}),
	)
	session, _ := newSession(t, portal)
	require.NoError(t, session.GenerateToken(ctx, false))

	_, err := session.GetPartyInfo(ctx, buyerGSTIN)

	var reqErr *irnsdk.RequestError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, irnsdk.KindTransport, reqErr.Kind)
	require.Equal(t, 429, reqErr.StatusCode)
	require.True(t, reqErr.HasCode("429"))

	// Buckets are per client-id and GSTIN: another GSTIN under the same
	// client-id reaches the portal and is turned away on its merits.
	creds := portal.Credentials()
	creds.GSTIN = buyerGSTIN
	other := irnsdk.NewSDKClient(portal.URL).NewSession(creds,
		irnsdk.WithoutCache(), irnsdk.WithLogger(slogx.Discard()))
	err = other.GenerateToken(ctx, false)
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, irnsdk.KindBusiness, reqErr.Kind)
	require.NotEqual(t, 429, reqErr.StatusCode)
}

func TestClientRateLimit_HonoursContext(t *testing.T) {
	t.Parallel()

	portal := irntest.New(t)
	client := irnsdk.NewSDKClient(portal.URL,
		irnsdk.WithRateLimit(httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 1}),
		irnsdk.WithRequestLogging(slogx.Discard()),
	)
	session := client.NewSession(portal.Credentials(), irnsdk.WithoutCache(), irnsdk.WithLogger(slogx.Discard()))
	require.NoError(t, session.GenerateToken(context.Background(), false))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := session.GenerateToken(ctx, true)
	var tokenErr *irnsdk.GenerateTokenError
	require.ErrorAs(t, err, &tokenErr)
	require.Equal(t, 1, portal.AuthCalls())
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t, irntest.WithParty(buyerGSTIN, buyerParty()))
	m := metricsx.New(prometheus.NewRegistry())
	session, _ := newSession(t, portal, irnsdk.WithMetrics(m))

	require.NoError(t, session.GenerateToken(ctx, false))
	_, err := session.GetPartyInfo(ctx, buyerGSTIN)
	require.NoError(t, err)
	_, err = session.GetPartyInfo(ctx, "07AAACP7879D1Z0")
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.AuthRequests.WithLabelValues(metricsx.OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("get_party", metricsx.OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.APIRequests.WithLabelValues("get_party", metricsx.OutcomeBusiness)))
}

func TestConcurrentUse(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	portal := irntest.New(t, irntest.WithParty(buyerGSTIN, buyerParty()))
	session, _ := newSession(t, portal)
	require.NoError(t, session.GenerateToken(ctx, false))

	var (
		wg   sync.WaitGroup
		errs = make(chan error, 20)
	)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%5 == 0 {
				errs <- session.GenerateToken(ctx, true)
				return
			}
			_, err := session.GetPartyInfo(ctx, buyerGSTIN)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// Replaced tokens stay valid on the portal, so a call racing a refresh
	// only fails if it paired a token with another token's key.
	for err := range errs {
		require.NoError(t, err)
	}
}
