// Package txn defines the immutable transaction request model shared by
// the fallback engine, processors, and the HTTP API layer.
package txn

import (
	"github.com/orbitpay/switchboard/internal/money"
)

// Currency is the closed set of supported transaction currencies.
type Currency string

const (
	BRL Currency = "BRL"
	USD Currency = "USD"
	MXN Currency = "MXN"
)

// ValidCurrencies lists the closed set accepted by request validation.
var ValidCurrencies = map[Currency]bool{
	BRL: true,
	USD: true,
	MXN: true,
}

// Request is an immutable charge request. Once constructed via New, its
// fields are not mutated by any component that receives it.
type Request struct {
	transactionID string
	amount        money.Money
	currency      Currency
	merchantID    string
	cardLastFour  string
	metadata      map[string]string
}

// New constructs a Request, copying the metadata map so the caller's
// copy can be mutated freely afterward without affecting the request.
func New(transactionID string, amount money.Money, currency Currency, merchantID, cardLastFour string, metadata map[string]string) Request {
	m := make(map[string]string, len(metadata))
	for k, v := range metadata {
		m[k] = v
	}
	return Request{
		transactionID: transactionID,
		amount:        amount,
		currency:      currency,
		merchantID:    merchantID,
		cardLastFour:  cardLastFour,
		metadata:      m,
	}
}

func (r Request) TransactionID() string       { return r.transactionID }
func (r Request) Amount() money.Money         { return r.amount }
func (r Request) Currency() Currency          { return r.currency }
func (r Request) MerchantID() string          { return r.merchantID }
func (r Request) CardLastFour() string        { return r.cardLastFour }

// Metadata returns a copy of the request's metadata map.
func (r Request) Metadata() map[string]string {
	m := make(map[string]string, len(r.metadata))
	for k, v := range r.metadata {
		m[k] = v
	}
	return m
}
