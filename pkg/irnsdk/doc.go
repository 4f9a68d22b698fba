/*
Package irnsdk is a client for the GST e-invoice Invoice Registration Portal
(IRP).

# Overview

Every business call to the portal is encrypted with a per-session symmetric
key (the SEK). Getting that key is a handshake: the client generates a
random application key, RSA-encrypts it together with the API login under
the portal's public key, and receives an AuthToken plus the SEK encrypted
under the application key. This package runs that handshake, caches its
result, and uses the SEK to encrypt request bodies and decrypt response
data.

# SDKClient vs Session

The package is organized around two types:

  - SDKClient: HTTP plumbing shared by sessions (base URL, timeout, rate
    limiting, request logging)
  - Session: one registrant's encrypted session

	client := irnsdk.NewSDKClient(irnsdk.SandboxURL,
		irnsdk.WithRateLimit(httpx.DefaultClientLimit),
	)

	session := client.NewSession(irnsdk.Credentials{
		GSTIN:        "29AAACP7879D1Z0",
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Username:     username,
		Password:     password,
		PublicKey:    portalPublicKey,
	})

	if err := session.GenerateToken(ctx, false); err != nil {
		return err
	}

	party, err := session.GetPartyInfo(ctx, "27AAACP7879D1Z0")

# Token Caching

GenerateToken(ctx, false) first looks for a cached token for the same
credentials and adopts it without a network call. The default cache is a
directory of JSON files (tokencache.DefaultDir); WithCache selects another
backend (SQLite, Redis, memory) and WithoutCache turns caching off.

	cache := tokencache.New(tokencache.NewFileBackend("/var/cache/irn"))
	session := client.NewSession(creds, irnsdk.WithCache(cache))

A cached entry is only used while its expiry is more than the cache's
safety margin away. GenerateToken(ctx, true) always authenticates and
overwrites the cached entry.

The session never refreshes by itself and never retries. When the portal
rejects an expired token the caller calls GenerateToken again.

# Registering Invoices

	registration, err := session.GenerateInvoice(ctx, invoice)
	if err != nil {
		var reqErr *irnsdk.RequestError
		if errors.As(err, &reqErr) {
			if irn, ok := reqErr.DuplicateIRN(); ok {
				registration, err = session.GetInvoiceByIRN(ctx, irn, "")
			}
		}
	}

	qr, err := irnsdk.DecodeSignedQRCode(registration.String("SignedQRCode"))

# Error Handling

Errors are typed:

  - *RequestError: the portal answered but rejected the call. Kind is
    KindTransport for HTTP statuses other than 200 and KindBusiness for
    HTTP 200 with Status other than 1. Body, Errors and Info keep what the
    portal said.
  - *GenerateTokenError: the session has no SEK yet (wraps ErrNoSessionKey)
    or the auth exchange could not be completed.
  - *cryptox.CryptoError: a key or ciphertext could not be used.

Use errors.As, IsBusiness and IsTransport to tell them apart:

	switch {
	case irnsdk.IsBusiness(err):
		// fix the document
	case irnsdk.IsTransport(err):
		// portal or network trouble
	}

# Concurrency

A Session is safe for concurrent use. The token and SEK are replaced
together, so a call never pairs a new token with an old key. Concurrent
GenerateToken calls may each authenticate; the last one wins.
*/
package irnsdk
