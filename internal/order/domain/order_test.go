package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/order-ledger/pkg/apperror"
)

func TestSetItemsRecomputesTotal(t *testing.T) {
	var o Order
	o.SetItems([]OrderItem{
		{ProductID: 1, Quantity: 3, PriceAtOrder: decimal.RequireFromString("20.00")},
		{ProductID: 2, Quantity: 2, PriceAtOrder: decimal.RequireFromString("0.10")},
	})
	assert.Equal(t, "60.20", o.TotalAmount.StringFixed(2))

	o.SetItems([]OrderItem{{ProductID: 3, Quantity: 1, PriceAtOrder: decimal.RequireFromString("5.55")}})
	assert.Equal(t, "5.55", o.TotalAmount.StringFixed(2))
}

func TestCreateInputValidate(t *testing.T) {
	neg := decimal.NewFromInt(-1)
	shipped := "shipped"
	bogus := "lost"
	tests := []struct {
		name       string
		in         CreateInput
		wantKind   apperror.Kind
		wantStatus Status
	}{
		{name: "defaults to pending", in: CreateInput{CustomerID: 1, Items: []ItemInput{{ProductID: 1, Quantity: 1}}}, wantStatus: StatusPending},
		{name: "explicit status", in: CreateInput{CustomerID: 1, Status: &shipped, Items: []ItemInput{{ProductID: 1, Quantity: 1}}}, wantStatus: StatusShipped},
		{name: "missing customer", in: CreateInput{Items: []ItemInput{{ProductID: 1, Quantity: 1}}}, wantKind: apperror.KindValidation},
		{name: "no items", in: CreateInput{CustomerID: 1}, wantKind: apperror.KindValidation},
		{name: "zero quantity", in: CreateInput{CustomerID: 1, Items: []ItemInput{{ProductID: 1}}}, wantKind: apperror.KindValidation},
		{name: "missing product", in: CreateInput{CustomerID: 1, Items: []ItemInput{{Quantity: 2}}}, wantKind: apperror.KindValidation},
		{name: "negative price", in: CreateInput{CustomerID: 1, Items: []ItemInput{{ProductID: 1, Quantity: 2, Price: &neg}}}, wantKind: apperror.KindValidation},
		{name: "unknown status", in: CreateInput{CustomerID: 1, Status: &bogus, Items: []ItemInput{{ProductID: 1, Quantity: 1}}}, wantKind: apperror.KindInvalidStatus},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st, err := tc.in.Validate()
			if tc.wantKind != "" {
				assert.Equal(t, tc.wantKind, apperror.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, st)
		})
	}
}

func TestUpdateInputValidate(t *testing.T) {
	empty := []ItemInput{}
	st, err := UpdateInput{}.Validate()
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = UpdateInput{Items: &empty}.Validate()
	assert.True(t, apperror.Is(err, apperror.KindValidation))
}

func TestNewStats(t *testing.T) {
	s := NewStats([]StatusTotals{
		{Status: StatusPending, Count: 2, Amount: decimal.NewFromInt(40)},
		{Status: StatusCompleted, Count: 3, Amount: decimal.RequireFromString("120.50")},
		{Status: StatusCancelled, Count: 1, Amount: decimal.NewFromInt(60)},
	})
	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 2, s.Pending)
	assert.Equal(t, 3, s.Completed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Equal(t, "120.50", s.TotalRevenue.StringFixed(2))
}

func TestListFilterNormalize(t *testing.T) {
	f := ListFilter{Page: 0, PerPage: 500}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.PerPage)
	assert.Equal(t, 0, f.Offset())

	p := NewPage(nil, 21, ListFilter{Page: 3, PerPage: 10})
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 3, p.CurrentPage)
}
