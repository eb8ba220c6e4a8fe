package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/amirhossein-jamali/trade-lock-manager/internal/domain/error"
)

func TestTradePayloadValidate(t *testing.T) {
	testCases := []struct {
		name    string
		payload TradePayload
		wantErr bool
	}{
		{
			name:    "valid limit order",
			payload: TradePayload{Symbol: "BTCUSDT", Side: "buy", OrderType: "limit", Quantity: "0.5", Price: "64000"},
		},
		{
			name:    "valid market order without price",
			payload: TradePayload{Symbol: "BTCUSDT", Side: "sell", OrderType: "market", Quantity: "0.5"},
		},
		{
			name:    "missing symbol",
			payload: TradePayload{Side: "buy", OrderType: "market", Quantity: "0.5"},
			wantErr: true,
		},
		{
			name:    "invalid side",
			payload: TradePayload{Symbol: "BTCUSDT", Side: "hold", OrderType: "market", Quantity: "0.5"},
			wantErr: true,
		},
		{
			name:    "invalid order type",
			payload: TradePayload{Symbol: "BTCUSDT", Side: "buy", OrderType: "stop", Quantity: "0.5"},
			wantErr: true,
		},
		{
			name:    "missing quantity",
			payload: TradePayload{Symbol: "BTCUSDT", Side: "buy", OrderType: "market"},
			wantErr: true,
		},
		{
			name:    "limit order without price",
			payload: TradePayload{Symbol: "BTCUSDT", Side: "buy", OrderType: "limit", Quantity: "0.5"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCancelPayloadValidate(t *testing.T) {
	valid := CancelPayload{Symbol: "BTCUSDT", OrderID: "ord-1"}
	assert.NoError(t, valid.Validate())

	missingSymbol := CancelPayload{OrderID: "ord-1"}
	assert.ErrorIs(t, missingSymbol.Validate(), errs.ErrInvalidPayload)

	missingOrder := CancelPayload{Symbol: "BTCUSDT"}
	assert.ErrorIs(t, missingOrder.Validate(), errs.ErrInvalidPayload)
}

func TestUpdatePayloadValidate(t *testing.T) {
	priceOnly := UpdatePayload{Symbol: "BTCUSDT", OrderID: "ord-1", Price: "64000"}
	assert.NoError(t, priceOnly.Validate())

	quantityOnly := UpdatePayload{Symbol: "BTCUSDT", OrderID: "ord-1", Quantity: "2"}
	assert.NoError(t, quantityOnly.Validate())

	// An update that changes nothing is not an update.
	noChange := UpdatePayload{Symbol: "BTCUSDT", OrderID: "ord-1"}
	assert.ErrorIs(t, noChange.Validate(), errs.ErrInvalidPayload)

	missingOrder := UpdatePayload{Symbol: "BTCUSDT", Price: "64000"}
	assert.ErrorIs(t, missingOrder.Validate(), errs.ErrInvalidPayload)
}

func TestPayloadEnvelopeRoundTrip(t *testing.T) {
	t.Run("trade", func(t *testing.T) {
		original := &TradePayload{Symbol: "BTCUSDT", Side: "buy", OrderType: "limit", Quantity: "0.5", Price: "64000"}

		raw, err := MarshalPayload(original)
		require.NoError(t, err)

		decoded, err := UnmarshalPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, OperationTypeTrade, decoded.OperationType())
		assert.Equal(t, original, decoded)
	})

	t.Run("cancel", func(t *testing.T) {
		original := &CancelPayload{Symbol: "ETHUSDT", OrderID: "ord-7"}

		raw, err := MarshalPayload(original)
		require.NoError(t, err)

		decoded, err := UnmarshalPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, OperationTypeCancel, decoded.OperationType())
		assert.Equal(t, original, decoded)
	})

	t.Run("update", func(t *testing.T) {
		original := &UpdatePayload{Symbol: "SOLUSDT", OrderID: "ord-9", Quantity: "12"}

		raw, err := MarshalPayload(original)
		require.NoError(t, err)

		decoded, err := UnmarshalPayload(raw)
		require.NoError(t, err)
		assert.Equal(t, OperationTypeUpdate, decoded.OperationType())
		assert.Equal(t, original, decoded)
	})
}

func TestMarshalPayloadRejectsInvalid(t *testing.T) {
	_, err := MarshalPayload(nil)
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	_, err = MarshalPayload(&TradePayload{Symbol: "BTCUSDT"})
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)
}

func TestUnmarshalPayloadRejectsBadEnvelopes(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{"not json", `{{`},
		{"unknown type tag", `{"type":"transfer","data":{}}`},
		{"empty envelope", `{}`},
		{"data fails validation", `{"type":"trade","data":{"symbol":"BTCUSDT"}}`},
		{"data wrong shape", `{"type":"cancel","data":[1,2,3]}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := UnmarshalPayload(json.RawMessage(tc.raw))
			assert.ErrorIs(t, err, errs.ErrInvalidPayload)
		})
	}
}

func TestOperationTypeIsValid(t *testing.T) {
	assert.True(t, OperationTypeTrade.IsValid())
	assert.True(t, OperationTypeCancel.IsValid())
	assert.True(t, OperationTypeUpdate.IsValid())
	assert.False(t, OperationType("transfer").IsValid())
	assert.False(t, OperationType("").IsValid())
}
