package irntest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
	"github.com/aussiebroadwan/gstirn/pkg/jwtx"
	"github.com/aussiebroadwan/gstirn/pkg/tokencache"
)

// registration is a registered invoice.
type registration struct {
	seller string
	doc    irnsdk.Document
}

// invoiceFields are the parts of an invoice the portal looks at.
type invoiceFields struct {
	DocDtls struct {
		Typ string `json:"Typ"`
		No  string `json:"No"`
		Dt  string `json:"Dt"`
	} `json:"DocDtls"`
	SellerDtls struct {
		Gstin string `json:"Gstin"`
	} `json:"SellerDtls"`
	BuyerDtls struct {
		Gstin string `json:"Gstin"`
	} `json:"BuyerDtls"`
	ItemList []struct {
		HsnCd string `json:"HsnCd"`
	} `json:"ItemList"`
	ValDtls struct {
		TotInvVal json.Number `json:"TotInvVal"`
	} `json:"ValDtls"`
}

// IRN returns the IRN the portal assigns to a document: the SHA-256 of the
// seller GSTIN, document type and number.
func IRN(sellerGSTIN, docType, docNo string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.ToUpper(sellerGSTIN),
		strings.ToUpper(docType),
		strings.ToUpper(docNo),
	}, "|")))
	return hex.EncodeToString(sum[:])
}

func (p *Portal) handleGenerate(w http.ResponseWriter, r *http.Request, sek string) {
	var raw json.RawMessage
	if err := readData(r, sek, &raw); err != nil {
		writeError(w, CodeBadRequest, "Unable to decrypt the request", nil)
		return
	}

	var inv invoiceFields
	if err := json.Unmarshal(raw, &inv); err != nil {
		writeError(w, CodeBadRequest, "Invalid invoice format", nil)
		return
	}
	if inv.DocDtls.No == "" || inv.DocDtls.Typ == "" || inv.SellerDtls.Gstin == "" {
		writeError(w, CodeBadRequest, "DocDtls and SellerDtls are required", nil)
		return
	}

	irn := IRN(inv.SellerDtls.Gstin, inv.DocDtls.Typ, inv.DocDtls.No)

	p.mu.Lock()
	if existing, ok := p.registrations[irn]; ok {
		p.mu.Unlock()
		writeError(w, CodeDuplicateIRN, "Duplicate IRN", []infoDetail{{
			InfoCd: irnsdk.InfoDuplicateIRN,
			Desc: map[string]any{
				"AckNo": existing.doc["AckNo"],
				"AckDt": existing.doc["AckDt"],
				"Irn":   irn,
			},
		}})
		return
	}
	p.ackNo++
	ackNo := p.ackNo
	p.mu.Unlock()

	now := p.now()
	ackDt := now.In(tokencache.IST).Format(tokencache.ExpiryLayout)

	var invoice map[string]any
	if err := json.Unmarshal(raw, &invoice); err != nil {
		writeError(w, CodeBadRequest, "Invalid invoice format", nil)
		return
	}
	invoice["AckNo"] = ackNo
	invoice["AckDt"] = ackDt
	invoice["Irn"] = irn

	signedInvoice, err := p.sign(invoice, now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	mainHSN := ""
	if len(inv.ItemList) > 0 {
		mainHSN = inv.ItemList[0].HsnCd
	}
	signedQR, err := p.sign(map[string]any{
		"SellerGstin": inv.SellerDtls.Gstin,
		"BuyerGstin":  inv.BuyerDtls.Gstin,
		"DocNo":       inv.DocDtls.No,
		"DocTyp":      strings.ToUpper(inv.DocDtls.Typ),
		"DocDt":       inv.DocDtls.Dt,
		"TotInvVal":   inv.ValDtls.TotInvVal,
		"ItemCnt":     len(inv.ItemList),
		"MainHsnCode": mainHSN,
		"Irn":         irn,
		"IrnDt":       ackDt,
	}, now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	doc := irnsdk.Document{
		"AckNo":         ackNo,
		"AckDt":         ackDt,
		"Irn":           irn,
		"SignedInvoice": signedInvoice,
		"SignedQRCode":  signedQR,
		"Status":        "ACT",
		"EwbNo":         nil,
		"EwbDt":         nil,
		"EwbValidTill":  nil,
		"Remarks":       nil,
	}

	p.mu.Lock()
	p.registrations[irn] = &registration{seller: inv.SellerDtls.Gstin, doc: doc}
	p.mu.Unlock()

	p.writeData(w, doc, sek)
}

func (p *Portal) sign(doc any, now time.Time) (string, error) {
	claims, err := jwtx.NewDocumentClaims(doc, jwtx.PortalIssuer, now)
	if err != nil {
		return "", err
	}
	return p.signer.Sign(claims)
}
