package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/amirhossein-jamali/trade-lock-manager/internal/domain/entity"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	d := NewKeyDeriver()
	payload := limitBuy("BTCUSDT", "0.5", "64000")

	first := d.DeriveKey("order:BTCUSDT", "user-1", payload)
	second := d.DeriveKey("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))

	assert.Equal(t, first, second)
	assert.Len(t, first, 64) // hex-encoded sha256
}

func TestDeriveKey_DistinguishesOperations(t *testing.T) {
	d := NewKeyDeriver()
	base := d.DeriveKey("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))

	testCases := []struct {
		name       string
		resourceID string
		ownerID    string
		payload    entity.Payload
	}{
		{"different resource", "order:ETHUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000")},
		{"different owner", "order:BTCUSDT", "user-2", limitBuy("BTCUSDT", "0.5", "64000")},
		{"different quantity", "order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.6", "64000")},
		{"different side", "order:BTCUSDT", "user-1", &entity.TradePayload{
			Symbol: "BTCUSDT", Side: "sell", OrderType: "limit", Quantity: "0.5", Price: "64000",
		}},
		{"different operation type", "order:BTCUSDT", "user-1", &entity.CancelPayload{
			Symbol: "BTCUSDT", OrderID: "ord-1",
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotEqual(t, base, d.DeriveKey(tc.resourceID, tc.ownerID, tc.payload))
		})
	}
}

func TestDeriveKey_PriceExcludedFromTradeFingerprint(t *testing.T) {
	d := NewKeyDeriver()

	original := d.DeriveKey("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "64000"))
	repriced := d.DeriveKey("order:BTCUSDT", "user-1", limitBuy("BTCUSDT", "0.5", "63500"))

	assert.Equal(t, original, repriced)
}

func TestDeriveKey_FieldBoundariesPreserved(t *testing.T) {
	d := NewKeyDeriver()

	// Concatenation across field boundaries must not collide.
	a := d.DeriveKey("order:AB", "C", limitBuy("BTCUSDT", "1", "64000"))
	b := d.DeriveKey("order:A", "BC", limitBuy("BTCUSDT", "1", "64000"))

	assert.NotEqual(t, a, b)
}

func TestDeriveKey_UpdatePriceParticipates(t *testing.T) {
	d := NewKeyDeriver()

	// Unlike trades, an update's new price is part of the operation identity.
	a := d.DeriveKey("order:BTCUSDT", "user-1", &entity.UpdatePayload{
		Symbol: "BTCUSDT", OrderID: "ord-1", Price: "64000",
	})
	b := d.DeriveKey("order:BTCUSDT", "user-1", &entity.UpdatePayload{
		Symbol: "BTCUSDT", OrderID: "ord-1", Price: "63500",
	})

	assert.NotEqual(t, a, b)
}
