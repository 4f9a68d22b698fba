package irnsdk

import (
	"context"
	"net/http"
	"net/url"
)

// GenerateInvoice registers invoice with the portal and returns the
// registration, which holds the Irn, AckNo, AckDt, SignedInvoice and
// SignedQRCode.
//
// invoice is anything that encodes to the portal's invoice JSON
// (an einvoice.Invoice or a plain map).
//
// Resubmitting a registered document fails with a KindBusiness
// *RequestError whose DuplicateIRN reports the existing IRN.
func (s *Session) GenerateInvoice(ctx context.Context, invoice any) (Document, error) {
	return s.document(ctx, "generate_invoice", http.MethodPost, invoicePath, invoice, nil)
}

// GetInvoiceByIRN fetches a registration by IRN. supplierGSTIN is sent as
// sup_gstin when set; GSPs filing for several suppliers need it.
func (s *Session) GetInvoiceByIRN(ctx context.Context, irn, supplierGSTIN string) (Document, error) {
	var headers map[string]string
	if supplierGSTIN != "" {
		headers = map[string]string{headerSupplier: supplierGSTIN}
	}
	return s.document(ctx, "get_invoice", http.MethodGet, invoiceByIRNPath+url.PathEscape(irn), nil, headers)
}
