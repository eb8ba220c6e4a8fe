package entity

import (
	"encoding/json"
	"fmt"

	errs "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
)

// OperationType tags the kind of trade-affecting operation a lock protects
type OperationType string

const (
	OperationTypeTrade  OperationType = "trade"
	OperationTypeCancel OperationType = "cancel"
	OperationTypeUpdate OperationType = "update"
)

// IsValid reports whether the operation type is one of the known values
func (t OperationType) IsValid() bool {
	switch t {
	case OperationTypeTrade, OperationTypeCancel, OperationTypeUpdate:
		return true
	}
	return false
}

// Payload is the operation payload attached to a lock request.
// Each variant declares the fields that identify the logical operation,
// so two submissions that differ only in incidental data (timestamps,
// client metadata) still deduplicate to the same idempotency key.
type Payload interface {
	// OperationType returns the tag of this payload variant
	OperationType() OperationType
	// Validate checks the payload at the boundary, before it is persisted
	Validate() error
	// FingerprintFields returns the ordered fields that feed the
	// idempotency key derivation
	FingerprintFields() []string
}

// TradePayload describes a new order submission
type TradePayload struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`      // buy or sell
	OrderType string `json:"orderType"` // limit or market
	Quantity  string `json:"quantity"`
	Price     string `json:"price,omitempty"`
}

// OperationType returns the trade tag
func (p *TradePayload) OperationType() OperationType {
	return OperationTypeTrade
}

// Validate checks the trade payload fields
func (p *TradePayload) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", errs.ErrInvalidPayload)
	}
	if p.Side != "buy" && p.Side != "sell" {
		return fmt.Errorf("%w: side must be buy or sell, got %q", errs.ErrInvalidPayload, p.Side)
	}
	if p.OrderType != "limit" && p.OrderType != "market" {
		return fmt.Errorf("%w: order type must be limit or market, got %q", errs.ErrInvalidPayload, p.OrderType)
	}
	if p.Quantity == "" {
		return fmt.Errorf("%w: quantity is required", errs.ErrInvalidPayload)
	}
	if p.OrderType == "limit" && p.Price == "" {
		return fmt.Errorf("%w: price is required for limit orders", errs.ErrInvalidPayload)
	}
	return nil
}

// FingerprintFields returns symbol, side, quantity and order type.
// Price is deliberately excluded: a resubmission of the same logical
// order at an adjusted price must still dedupe against the original.
func (p *TradePayload) FingerprintFields() []string {
	return []string{p.Symbol, p.Side, p.Quantity, p.OrderType}
}

// CancelPayload describes a cancellation of an existing order
type CancelPayload struct {
	Symbol  string `json:"symbol"`
	OrderID string `json:"orderId"`
}

// OperationType returns the cancel tag
func (p *CancelPayload) OperationType() OperationType {
	return OperationTypeCancel
}

// Validate checks the cancel payload fields
func (p *CancelPayload) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", errs.ErrInvalidPayload)
	}
	if p.OrderID == "" {
		return fmt.Errorf("%w: order id is required", errs.ErrInvalidPayload)
	}
	return nil
}

// FingerprintFields returns the symbol and the target order id
func (p *CancelPayload) FingerprintFields() []string {
	return []string{p.Symbol, p.OrderID}
}

// UpdatePayload describes an amendment of an existing order
type UpdatePayload struct {
	Symbol   string `json:"symbol"`
	OrderID  string `json:"orderId"`
	Quantity string `json:"quantity,omitempty"`
	Price    string `json:"price,omitempty"`
}

// OperationType returns the update tag
func (p *UpdatePayload) OperationType() OperationType {
	return OperationTypeUpdate
}

// Validate checks the update payload fields
func (p *UpdatePayload) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", errs.ErrInvalidPayload)
	}
	if p.OrderID == "" {
		return fmt.Errorf("%w: order id is required", errs.ErrInvalidPayload)
	}
	if p.Quantity == "" && p.Price == "" {
		return fmt.Errorf("%w: update must change quantity or price", errs.ErrInvalidPayload)
	}
	return nil
}

// FingerprintFields returns the symbol, target order id and the new values
func (p *UpdatePayload) FingerprintFields() []string {
	return []string{p.Symbol, p.OrderID, p.Quantity, p.Price}
}

// payloadEnvelope is the persisted wire form of a payload: a type tag
// plus the variant's own JSON document
type payloadEnvelope struct {
	Type OperationType   `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload serializes a validated payload into its tagged envelope
func MarshalPayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: payload is required", errs.ErrInvalidPayload)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidPayload, err.Error())
	}
	return json.Marshal(payloadEnvelope{Type: p.OperationType(), Data: data})
}

// UnmarshalPayload decodes a tagged envelope back into its payload variant.
// Unknown tags are rejected so that no untyped shape can enter the system.
func UnmarshalPayload(raw json.RawMessage) (Payload, error) {
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidPayload, err.Error())
	}

	var p Payload
	switch env.Type {
	case OperationTypeTrade:
		p = &TradePayload{}
	case OperationTypeCancel:
		p = &CancelPayload{}
	case OperationTypeUpdate:
		p = &UpdatePayload{}
	default:
		return nil, fmt.Errorf("%w: unknown operation type %q", errs.ErrInvalidPayload, env.Type)
	}

	if err := json.Unmarshal(env.Data, p); err != nil {
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidPayload, err.Error())
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
