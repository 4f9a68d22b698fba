// Package einvoice provides typed builders for the e-invoice JSON the portal
// registers (schema version 1.1).
//
// The SDK itself treats invoices as opaque JSON; these types only spare
// callers from assembling maps by hand. Field names follow the portal
// schema exactly. Optional fields are omitted when empty.
package einvoice

import (
	"fmt"
	"strings"
)

const (
	// SchemaVersion is the invoice schema the portal expects.
	SchemaVersion = "1.1"

	// TaxSchemeGST is the only tax scheme the portal accepts.
	TaxSchemeGST = "GST"

	// DateLayout is the layout of DocDtls.Dt and other document dates.
	DateLayout = "02/01/2006"

	// MaxItems is the most items one invoice may carry.
	MaxItems = 1000
)

// Supply types (TranDtls.SupTyp).
const (
	SupplyB2B    = "B2B"
	SupplySEZWP  = "SEZWP"
	SupplySEZWOP = "SEZWOP"
	SupplyEXPWP  = "EXPWP"
	SupplyEXPWOP = "EXPWOP"
	SupplyDEXP   = "DEXP"
)

// Document types (DocDtls.Typ).
const (
	DocInvoice    = "INV"
	DocCreditNote = "CRN"
	DocDebitNote  = "DBN"
)

// Invoice is a complete e-invoice.
type Invoice struct {
	Version    string     `json:"Version"`
	TranDtls   TranDtls   `json:"TranDtls"`
	DocDtls    DocDtls    `json:"DocDtls"`
	SellerDtls SellerDtls `json:"SellerDtls"`
	BuyerDtls  BuyerDtls  `json:"BuyerDtls"`
	DispDtls   *DispDtls  `json:"DispDtls,omitempty"`
	ShipDtls   *ShipDtls  `json:"ShipDtls,omitempty"`
	ItemList   []Item     `json:"ItemList"`
	ValDtls    ValDtls    `json:"ValDtls"`
	PayDtls    *PayDtls   `json:"PayDtls,omitempty"`
	EwbDtls    *EwbDtls   `json:"EwbDtls,omitempty"`
	RefDtls    *RefDtls   `json:"RefDtls,omitempty"`
	ExpDtls    *ExpDtls   `json:"ExpDtls,omitempty"`
	AddlDocs   []AddlDoc  `json:"AddlDocDtls,omitempty"`
}

// TranDtls are the transaction details.
type TranDtls struct {
	TaxSch      string `json:"TaxSch"`
	SupTyp      string `json:"SupTyp"`
	RegRev      string `json:"RegRev,omitempty"`
	EcmGstin    string `json:"EcmGstin,omitempty"`
	IgstOnIntra string `json:"IgstOnIntra,omitempty"`
}

// DocDtls identify the document. Dt is DD/MM/YYYY.
type DocDtls struct {
	Typ string `json:"Typ"`
	No  string `json:"No"`
	Dt  string `json:"Dt"`
}

// SellerDtls describe the supplier.
type SellerDtls struct {
	Gstin string `json:"Gstin"`
	LglNm string `json:"LglNm"`
	TrdNm string `json:"TrdNm,omitempty"`
	Addr1 string `json:"Addr1"`
	Addr2 string `json:"Addr2,omitempty"`
	Loc   string `json:"Loc"`
	Pin   int    `json:"Pin"`
	Stcd  string `json:"Stcd"`
	Ph    string `json:"Ph,omitempty"`
	Em    string `json:"Em,omitempty"`
}

// BuyerDtls describe the recipient. Pos is the place of supply state code.
type BuyerDtls struct {
	Gstin string `json:"Gstin"`
	LglNm string `json:"LglNm"`
	TrdNm string `json:"TrdNm,omitempty"`
	Pos   string `json:"Pos"`
	Addr1 string `json:"Addr1"`
	Addr2 string `json:"Addr2,omitempty"`
	Loc   string `json:"Loc"`
	Pin   int    `json:"Pin"`
	Stcd  string `json:"Stcd"`
	Ph    string `json:"Ph,omitempty"`
	Em    string `json:"Em,omitempty"`
}

// DispDtls describe where goods are dispatched from.
type DispDtls struct {
	Nm    string `json:"Nm"`
	Addr1 string `json:"Addr1"`
	Addr2 string `json:"Addr2,omitempty"`
	Loc   string `json:"Loc"`
	Pin   int    `json:"Pin"`
	Stcd  string `json:"Stcd"`
}

// ShipDtls describe where goods are shipped to.
type ShipDtls struct {
	Gstin string `json:"Gstin,omitempty"`
	LglNm string `json:"LglNm"`
	TrdNm string `json:"TrdNm,omitempty"`
	Addr1 string `json:"Addr1"`
	Addr2 string `json:"Addr2,omitempty"`
	Loc   string `json:"Loc"`
	Pin   int    `json:"Pin"`
	Stcd  string `json:"Stcd"`
}

// Item is one line of the invoice.
type Item struct {
	SlNo       string   `json:"SlNo"`
	PrdDesc    string   `json:"PrdDesc,omitempty"`
	IsServc    string   `json:"IsServc"`
	HsnCd      string   `json:"HsnCd"`
	Barcde     string   `json:"Barcde,omitempty"`
	Qty        Amount   `json:"Qty,omitzero"`
	FreeQty    Amount   `json:"FreeQty,omitzero"`
	Unit       string   `json:"Unit,omitempty"`
	UnitPrice  Amount   `json:"UnitPrice"`
	TotAmt     Amount   `json:"TotAmt"`
	Discount   Amount   `json:"Discount,omitzero"`
	PreTaxVal  Amount   `json:"PreTaxVal,omitzero"`
	AssAmt     Amount   `json:"AssAmt"`
	GstRt      Amount   `json:"GstRt"`
	IgstAmt    Amount   `json:"IgstAmt,omitzero"`
	CgstAmt    Amount   `json:"CgstAmt,omitzero"`
	SgstAmt    Amount   `json:"SgstAmt,omitzero"`
	CesRt      Amount   `json:"CesRt,omitzero"`
	CesAmt     Amount   `json:"CesAmt,omitzero"`
	OthChrg    Amount   `json:"OthChrg,omitzero"`
	TotItemVal Amount   `json:"TotItemVal"`
	OrdLineRef string   `json:"OrdLineRef,omitempty"`
	OrgCntry   string   `json:"OrgCntry,omitempty"`
	PrdSlNo    string   `json:"PrdSlNo,omitempty"`
	BchDtls    *BchDtls `json:"BchDtls,omitempty"`
}

// BchDtls are the batch details of an item.
type BchDtls struct {
	Nm    string `json:"Nm"`
	ExpDt string `json:"ExpDt,omitempty"`
	WrDt  string `json:"WrDt,omitempty"`
}

// ValDtls are the invoice totals.
type ValDtls struct {
	AssVal    Amount `json:"AssVal"`
	CgstVal   Amount `json:"CgstVal,omitzero"`
	SgstVal   Amount `json:"SgstVal,omitzero"`
	IgstVal   Amount `json:"IgstVal,omitzero"`
	CesVal    Amount `json:"CesVal,omitzero"`
	StCesVal  Amount `json:"StCesVal,omitzero"`
	Discount  Amount `json:"Discount,omitzero"`
	OthChrg   Amount `json:"OthChrg,omitzero"`
	RndOffAmt Amount `json:"RndOffAmt,omitzero"`
	TotInvVal Amount `json:"TotInvVal"`
}

// PayDtls are the payment details.
type PayDtls struct {
	Nm       string `json:"Nm,omitempty"`
	AccDet   string `json:"AccDet,omitempty"`
	Mode     string `json:"Mode,omitempty"`
	FinInsBr string `json:"FinInsBr,omitempty"`
	PayTerm  string `json:"PayTerm,omitempty"`
	PayInstr string `json:"PayInstr,omitempty"`
	CrTrn    string `json:"CrTrn,omitempty"`
	DirDr    string `json:"DirDr,omitempty"`
	CrDay    int    `json:"CrDay,omitempty"`
	PaidAmt  Amount `json:"PaidAmt,omitzero"`
	PaymtDue Amount `json:"PaymtDue,omitzero"`
}

// EwbDtls request an e-way bill together with the IRN.
type EwbDtls struct {
	TransID    string `json:"TransId,omitempty"`
	TransName  string `json:"TransName,omitempty"`
	TransMode  string `json:"TransMode,omitempty"`
	Distance   int    `json:"Distance"`
	TransDocNo string `json:"TransDocNo,omitempty"`
	TransDocDt string `json:"TransDocDt,omitempty"`
	VehNo      string `json:"VehNo,omitempty"`
	VehType    string `json:"VehType,omitempty"`
}

// RefDtls reference earlier documents.
type RefDtls struct {
	InvRm       string    `json:"InvRm,omitempty"`
	PrecDocDtls []PrecDoc `json:"PrecDocDtls,omitempty"`
}

// PrecDoc is a preceding document (the invoice a credit note amends).
type PrecDoc struct {
	InvNo string `json:"InvNo"`
	InvDt string `json:"InvDt"`
}

// ExpDtls are the export details.
type ExpDtls struct {
	ShipBNo string `json:"ShipBNo,omitempty"`
	ShipBDt string `json:"ShipBDt,omitempty"`
	Port    string `json:"Port,omitempty"`
	ForCur  string `json:"ForCur,omitempty"`
	CntCode string `json:"CntCode,omitempty"`
}

// AddlDoc is a supporting document.
type AddlDoc struct {
	URL  string `json:"Url,omitempty"`
	Docs string `json:"Docs,omitempty"`
	Info string `json:"Info,omitempty"`
}

// NewTranDtls returns the common case: GST, B2B.
func NewTranDtls() TranDtls {
	return TranDtls{TaxSch: TaxSchemeGST, SupTyp: SupplyB2B}
}

// New assembles an invoice with the schema version and B2B transaction
// details filled in. Totals are computed from items.
func New(doc DocDtls, seller SellerDtls, buyer BuyerDtls, items []Item) *Invoice {
	return &Invoice{
		Version:    SchemaVersion,
		TranDtls:   NewTranDtls(),
		DocDtls:    doc,
		SellerDtls: seller,
		BuyerDtls:  buyer,
		ItemList:   items,
		ValDtls:    Totals(items),
	}
}

// Totals sums item amounts into ValDtls.
func Totals(items []Item) ValDtls {
	var v ValDtls
	for _, it := range items {
		v.AssVal = v.AssVal.Add(it.AssAmt)
		v.CgstVal = v.CgstVal.Add(it.CgstAmt)
		v.SgstVal = v.SgstVal.Add(it.SgstAmt)
		v.IgstVal = v.IgstVal.Add(it.IgstAmt)
		v.CesVal = v.CesVal.Add(it.CesAmt)
		v.OthChrg = v.OthChrg.Add(it.OthChrg)
		v.TotInvVal = v.TotInvVal.Add(it.TotItemVal)
	}
	return v
}

// Validate checks what the portal would reject before any field-level
// validation: missing identifiers, no items, too many items.
func (inv *Invoice) Validate() error {
	var errs []string
	require := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, field+" is required")
		}
	}

	require("Version", inv.Version)
	require("TranDtls.TaxSch", inv.TranDtls.TaxSch)
	require("TranDtls.SupTyp", inv.TranDtls.SupTyp)
	require("DocDtls.Typ", inv.DocDtls.Typ)
	require("DocDtls.No", inv.DocDtls.No)
	require("DocDtls.Dt", inv.DocDtls.Dt)
	require("SellerDtls.Gstin", inv.SellerDtls.Gstin)
	require("BuyerDtls.Gstin", inv.BuyerDtls.Gstin)

	switch {
	case len(inv.ItemList) == 0:
		errs = append(errs, "ItemList is empty")
	case len(inv.ItemList) > MaxItems:
		errs = append(errs, fmt.Sprintf("ItemList has %d items, limit %d", len(inv.ItemList), MaxItems))
	}

	seen := make(map[string]bool, len(inv.ItemList))
	for i, it := range inv.ItemList {
		if it.SlNo == "" {
			errs = append(errs, fmt.Sprintf("ItemList[%d].SlNo is required", i))
		} else if seen[it.SlNo] {
			errs = append(errs, fmt.Sprintf("ItemList[%d].SlNo %q is repeated", i, it.SlNo))
		}
		seen[it.SlNo] = true
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

// ValidationError lists every problem Validate found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "einvoice: invalid invoice: " + strings.Join(e.Problems, "; ")
}
