package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func intp(i int) *int { return &i }

func TestNewTiering_Kinds(t *testing.T) {
	tiering, malformed := NewTiering(nil, nil, nil, nil)
	assert.Empty(t, malformed)
	assert.Equal(t, DefaultOnly, tiering.Kind())

	tiering, malformed = NewTiering(dec("80"), intp(10), nil, nil)
	assert.Empty(t, malformed)
	assert.Equal(t, WithBulk, tiering.Kind())

	tiering, malformed = NewTiering(nil, nil, dec("70"), intp(50))
	assert.Empty(t, malformed)
	assert.Equal(t, WithLarge, tiering.Kind())

	tiering, malformed = NewTiering(dec("80"), intp(10), dec("70"), intp(50))
	assert.Empty(t, malformed)
	assert.Equal(t, WithBulkAndLarge, tiering.Kind())
	assert.Equal(t, 10, tiering.Bulk.MinUnits)
	assert.True(t, tiering.Large.Price.Equal(decimal.NewFromInt(70)))
}

func TestNewTiering_MalformedPairsAreDropped(t *testing.T) {
	tiering, malformed := NewTiering(dec("80"), nil, nil, intp(50))
	assert.Equal(t, DefaultOnly, tiering.Kind())
	assert.Equal(t, []string{"bulk", "large_quantity"}, malformed)

	tiering, malformed = NewTiering(dec("80"), intp(0), dec("0"), intp(5))
	assert.Equal(t, DefaultOnly, tiering.Kind())
	assert.Len(t, malformed, 2)
}

func TestListPrice(t *testing.T) {
	p := Product{BasePrice: decimal.NewFromInt(100), DiscountedPrice: dec("90")}
	assert.True(t, p.ListPrice().Equal(decimal.NewFromInt(90)))

	p.DiscountedPrice = dec("120")
	assert.True(t, p.ListPrice().Equal(decimal.NewFromInt(100)), "a higher discounted price is ignored")

	p.DiscountedPrice = nil
	assert.True(t, p.ListPrice().Equal(decimal.NewFromInt(100)))
}

func TestSummaryDisplay_RoundsOnlyAtTheEnd(t *testing.T) {
	s := CartSummary{
		Subtotal:   decimal.RequireFromString("10.005"),
		GrandTotal: decimal.RequireFromString("269.6666"),
		ItemCount:  3,
	}
	v := s.Display()
	assert.Equal(t, "10.01", v.Subtotal)
	assert.Equal(t, "269.67", v.GrandTotal)
	assert.Equal(t, "0.00", v.DeliveryCharge)
	assert.Equal(t, 3, v.ItemCount)
}
