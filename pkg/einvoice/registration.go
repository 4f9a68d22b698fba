package einvoice

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

// Registration is the portal's answer to a generated invoice, and to a
// lookup by IRN.
type Registration struct {
	AckNo         json.Number `json:"AckNo"`
	AckDt         string      `json:"AckDt"`
	Irn           string      `json:"Irn"`
	SignedInvoice string      `json:"SignedInvoice"`
	SignedQRCode  string      `json:"SignedQRCode"`
	Status        string      `json:"Status,omitempty"`
	EwbNo         json.Number `json:"EwbNo,omitempty"`
	EwbDt         string      `json:"EwbDt,omitempty"`
	EwbValidTill  string      `json:"EwbValidTill,omitempty"`
	Remarks       string      `json:"Remarks,omitempty"`
}

// DecodeRegistration converts a document from Session.GenerateInvoice or
// Session.GetInvoiceByIRN.
func DecodeRegistration(doc irnsdk.Document) (*Registration, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("einvoice: failed to encode registration: %w", err)
	}

	var reg Registration
	if err := json.Unmarshal(raw, &reg); err != nil {
		return nil, fmt.Errorf("einvoice: failed to decode registration: %w", err)
	}
	if reg.Irn == "" {
		return nil, fmt.Errorf("einvoice: registration has no Irn")
	}
	return &reg, nil
}

// AcknowledgedAt parses AckDt, which the portal reports in IST.
func (r *Registration) AcknowledgedAt() (time.Time, error) {
	return time.ParseInLocation(tokencache.ExpiryLayout, r.AckDt, tokencache.IST)
}
