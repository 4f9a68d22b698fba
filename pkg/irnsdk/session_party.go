package irnsdk

import (
	"context"
	"net/http"
	"net/url"
)

// GetPartyInfo returns the registration details of gstin (legal and trade
// name, address, state code, status).
func (s *Session) GetPartyInfo(ctx context.Context, gstin string) (Document, error) {
	return s.document(ctx, "get_party", http.MethodGet, partyPath+url.PathEscape(gstin), nil, nil)
}
