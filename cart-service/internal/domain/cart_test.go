package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceTierJSON_UnboundedMaxIsNull(t *testing.T) {
	tiers := []PriceTier{
		{MinQty: 1, MaxQty: 9, UnitPrice: decimal.NewFromInt(90), Label: "1 - 9 pcs"},
		{MinQty: 10, MaxQty: Unbounded, UnitPrice: decimal.NewFromInt(80), Label: "10 - max pcs", IsActive: true},
	}

	data, err := json.Marshal(tiers)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"min_qty":1,"max_qty":9,"unit_price":"90","label":"1 - 9 pcs","is_active":false},
		{"min_qty":10,"max_qty":null,"unit_price":"80","label":"10 - max pcs","is_active":true}
	]`, string(data))

	var back []PriceTier
	require.NoError(t, json.Unmarshal(data, &back))
	require.Len(t, back, 2)
	assert.Equal(t, 9, back[0].MaxQty)
	assert.True(t, back[1].IsUnbounded())
	assert.True(t, back[1].UnitPrice.Equal(decimal.NewFromInt(80)))
}
