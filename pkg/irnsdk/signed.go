package irnsdk

import (
	"fmt"

	"github.com/aussiebroadwan/gstirn/pkg/cryptox"
	"github.com/aussiebroadwan/gstirn/pkg/jwtx"
)

// DecodeSignedDocument returns the document inside a SignedInvoice or
// SignedQRCode without checking the signature. Use it for display only.
func DecodeSignedDocument(signed string) (Document, error) {
	claims, err := jwtx.ParseSignedDocument(signed)
	if err != nil {
		return nil, err
	}
	return claims.Document()
}

// DecodeSignedQRCode is DecodeSignedDocument for the SignedQRCode of a
// registration. The result holds SellerGstin, BuyerGstin, DocNo, DocTyp,
// DocDt, TotInvVal, ItemCnt, MainHsnCode, Irn and IrnDt.
func DecodeSignedQRCode(signed string) (Document, error) {
	return DecodeSignedDocument(signed)
}

// VerifySignedDocument checks signed against the portal's signing
// certificate or public key and returns the document.
func VerifySignedDocument(signed, signingKey string) (Document, error) {
	key, err := cryptox.ParsePublicKey(signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	claims, err := jwtx.NewVerifierRS256(key, jwtx.PortalIssuer).Verify(signed)
	if err != nil {
		return nil, err
	}
	return claims.Document()
}
