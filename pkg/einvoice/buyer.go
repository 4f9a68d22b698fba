package einvoice

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/gstirn/pkg/irnsdk"
)

// ErrIncompleteParty is returned when a party record lacks a field the
// buyer section needs.
var ErrIncompleteParty = errors.New("einvoice: party record is incomplete")

// ToBuyer builds BuyerDtls from a party record returned by
// Session.GetPartyInfo. The address line joins the floor and street.
// An empty placeOfSupply means the buyer's own state (an intra-state sale).
func ToBuyer(party irnsdk.Document, placeOfSupply string) (BuyerDtls, error) {
	gstin := party.String("Gstin")
	if gstin == "" {
		return BuyerDtls{}, fmt.Errorf("%w: no Gstin", ErrIncompleteParty)
	}

	state, err := intField(party, "StateCode")
	if err != nil {
		return BuyerDtls{}, err
	}
	pin, err := intField(party, "AddrPncd")
	if err != nil {
		return BuyerDtls{}, err
	}

	stcd := strconv.Itoa(state)
	if placeOfSupply == "" {
		placeOfSupply = stcd
	}

	return BuyerDtls{
		Gstin: gstin,
		LglNm: party.String("LegalName"),
		TrdNm: party.String("TradeName"),
		Pos:   placeOfSupply,
		Addr1: joinAddress(party.String("AddrFlno"), party.String("AddrSt")),
		Addr2: joinAddress(party.String("AddrBno"), party.String("AddrBnm")),
		Loc:   party.String("AddrLoc"),
		Pin:   pin,
		Stcd:  stcd,
	}, nil
}

// ToShip builds ShipDtls for delivery to the party's registered address.
func ToShip(party irnsdk.Document) (ShipDtls, error) {
	buyer, err := ToBuyer(party, "")
	if err != nil {
		return ShipDtls{}, err
	}
	return ShipDtls{
		Gstin: buyer.Gstin,
		LglNm: buyer.LglNm,
		TrdNm: buyer.TrdNm,
		Addr1: buyer.Addr1,
		Addr2: buyer.Addr2,
		Loc:   buyer.Loc,
		Pin:   buyer.Pin,
		Stcd:  buyer.Stcd,
	}, nil
}

// intField reads a numeric field that may arrive as a JSON number or string.
func intField(doc irnsdk.Document, key string) (int, error) {
	switch v := doc[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s is not an integer: %v", ErrIncompleteParty, key, v)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not an integer: %q", ErrIncompleteParty, key, v)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("%w: no %s", ErrIncompleteParty, key)
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrIncompleteParty, key, v)
	}
}

func joinAddress(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ", ")
}
