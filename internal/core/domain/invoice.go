package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Invoice is a single-use request to receive an amount of a contract at a
// seal. The amount is expressed in minimal indivisible units.
type Invoice struct {
	InvoiceID  string            `json:"invoiceId"`
	ContractID string            `json:"contractId"`
	Iface      string            `json:"iface"`
	Amount     uint64            `json:"amount"`
	Seal       string            `json:"seal"`
	Params     map[string]string `json:"params,omitempty"`
	Consumed   bool              `json:"consumed"`
}

// Consume marks the invoice as used. Invoices are single-use: consuming one
// twice is an error.
func (i *Invoice) Consume() error {
	if i.Consumed {
		return ErrInvoiceConsumed
	}
	i.Consumed = true
	return nil
}

// Release undoes a Consume reservation. It is used when the transfer that
// claimed the invoice fails before anything is settled or published.
func (i *Invoice) Release() {
	i.Consumed = false
}

// Encode renders the invoice in its interchange string form:
//
//	rgb:<contractId>/<iface>/<amount>/<seal>[?<query-params>]
func (i *Invoice) Encode() string {
	encoded := fmt.Sprintf(
		"rgb:%s/%s/%d/%s", i.ContractID, i.Iface, i.Amount, i.Seal,
	)
	if len(i.Params) > 0 {
		query := url.Values{}
		for k, v := range i.Params {
			query.Set(k, v)
		}
		encoded += "?" + query.Encode()
	}
	return encoded
}

// DecodeInvoice parses the interchange string form produced by Encode.
func DecodeInvoice(encoded string) (*Invoice, error) {
	raw, ok := strings.CutPrefix(encoded, "rgb:")
	if !ok {
		return nil, fmt.Errorf("invoice must start with rgb: prefix")
	}

	var rawQuery string
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		raw, rawQuery = raw[:idx], raw[idx+1:]
	}

	parts := strings.Split(raw, "/")
	if len(parts) != 4 {
		return nil, fmt.Errorf("invoice must have contract/iface/amount/seal parts")
	}

	amount, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed invoice amount %q", parts[2])
	}

	params := make(map[string]string)
	if len(rawQuery) > 0 {
		query, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("malformed invoice params: %w", err)
		}
		for k := range query {
			params[k] = query.Get(k)
		}
	}

	return &Invoice{
		ContractID: parts[0],
		Iface:      parts[1],
		Amount:     amount,
		Seal:       parts[3],
		Params:     params,
	}, nil
}
