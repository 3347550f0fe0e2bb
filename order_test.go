package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddItemAccumulates(t *testing.T) {
	c := testCatalog(t)
	o := NewOrder()

	require.NoError(t, o.AddItem(c, "burger", 2))
	require.NoError(t, o.AddItem(c, "fries", 1))
	require.NoError(t, o.AddItem(c, "burger", 1))

	require.Len(t, o.Lines, 2)
	assert.Equal(t, 3, o.Lines[0].Quantity)
	assert.Equal(t, "burger", o.Lines[0].ItemKey)
	// total always derived from the lines
	assert.Equal(t, int64(3*500+200), o.Total())
}

func TestAddItemUnknownKey(t *testing.T) {
	c := testCatalog(t)
	o := NewOrder()

	err := o.AddItem(c, "pizza", 1)
	var unknown *UnknownItemError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "pizza", unknown.Key)
	assert.Empty(t, o.Lines)
}

func TestRemoveItem(t *testing.T) {
	c := testCatalog(t)
	o := NewOrder()
	require.NoError(t, o.AddItem(c, "burger", 2))

	// removing more than present clamps and drops the line
	require.NoError(t, o.RemoveItem("burger", 5))
	assert.Empty(t, o.Lines)
	assert.Equal(t, int64(0), o.Total())

	assert.ErrorIs(t, o.RemoveItem("burger", 1), ErrNotInOrder)
}

func TestConfirmIncomplete(t *testing.T) {
	c := testCatalog(t)

	t.Run("no items", func(t *testing.T) {
		o := NewOrder()
		var inc *IncompleteOrderError
		require.ErrorAs(t, o.Confirm(), &inc)
		assert.Equal(t, "items", inc.Missing)
	})

	t.Run("no delivery", func(t *testing.T) {
		o := NewOrder()
		require.NoError(t, o.AddItem(c, "burger", 1))
		var inc *IncompleteOrderError
		require.ErrorAs(t, o.Confirm(), &inc)
		assert.Equal(t, "delivery", inc.Missing)
	})

	t.Run("delivery without address", func(t *testing.T) {
		o := NewOrder()
		require.NoError(t, o.AddItem(c, "burger", 1))
		require.NoError(t, o.SetDelivery(ModeDelivery, 300000))
		require.NoError(t, o.SetPayment(PaymentCash))
		var inc *IncompleteOrderError
		require.ErrorAs(t, o.Confirm(), &inc)
		assert.Equal(t, "address", inc.Missing)
		assert.Equal(t, StatusDraft, o.Status)
	})

	t.Run("no payment", func(t *testing.T) {
		o := NewOrder()
		require.NoError(t, o.AddItem(c, "burger", 1))
		require.NoError(t, o.SetDelivery(ModePickup, 300000))
		var inc *IncompleteOrderError
		require.ErrorAs(t, o.Confirm(), &inc)
		assert.Equal(t, "payment", inc.Missing)
	})
}

func TestConfirmHappyPath(t *testing.T) {
	c := testCatalog(t)
	o := NewOrder()
	require.NoError(t, o.AddItem(c, "burger", 2))
	require.NoError(t, o.SetDelivery(ModeDelivery, 300000))
	require.NoError(t, o.SetAddress("Av. Siempreviva 742"))
	require.NoError(t, o.SetPayment(PaymentTransfer))

	require.NoError(t, o.Confirm())
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, int64(1000), o.Total())
	assert.Equal(t, int64(1000+300000), o.GrandTotal())
}

func TestPickupClearsFeeAndAddress(t *testing.T) {
	c := testCatalog(t)
	o := NewOrder()
	require.NoError(t, o.AddItem(c, "fries", 1))
	require.NoError(t, o.SetDelivery(ModeDelivery, 300000))
	require.NoError(t, o.SetAddress("Calle Falsa 123"))

	require.NoError(t, o.SetDelivery(ModePickup, 300000))
	assert.Equal(t, int64(0), o.DeliveryFee)
	assert.Empty(t, o.Address)
	assert.Equal(t, o.Total(), o.GrandTotal())
}

func TestCancelIsTerminal(t *testing.T) {
	c := testCatalog(t)
	o := NewOrder()
	require.NoError(t, o.AddItem(c, "burger", 1))
	require.NoError(t, o.Cancel())
	assert.Equal(t, StatusCancelled, o.Status)

	// nothing mutates a cancelled order
	assert.ErrorIs(t, o.AddItem(c, "fries", 1), ErrOrderClosed)
	assert.ErrorIs(t, o.RemoveItem("burger", 1), ErrOrderClosed)
	assert.ErrorIs(t, o.SetDelivery(ModePickup, 0), ErrOrderClosed)
	assert.ErrorIs(t, o.SetPayment(PaymentCash), ErrOrderClosed)
	assert.ErrorIs(t, o.SetAddress("x"), ErrOrderClosed)
	assert.ErrorIs(t, o.Confirm(), ErrOrderClosed)
	assert.ErrorIs(t, o.Cancel(), ErrOrderClosed)
	assert.Error(t, o.ReopenForModification())
}

func TestReopenAndReconfirmKeepsTotal(t *testing.T) {
	c := testCatalog(t)
	o := NewOrder()
	require.NoError(t, o.AddItem(c, "burger", 2))
	require.NoError(t, o.SetDelivery(ModePickup, 0))
	require.NoError(t, o.SetPayment(PaymentCash))
	require.NoError(t, o.Confirm())
	before := o.Total()

	require.NoError(t, o.ReopenForModification())
	assert.Equal(t, StatusDraft, o.Status)
	require.NoError(t, o.Confirm())
	assert.Equal(t, before, o.Total())
	assert.Equal(t, StatusConfirmed, o.Status)
}

func TestReopenOnlyFromConfirmed(t *testing.T) {
	o := NewOrder()
	assert.Error(t, o.ReopenForModification())
}

func TestSetterValidation(t *testing.T) {
	o := NewOrder()
	assert.Error(t, o.SetDelivery("submarino", 0))
	assert.Error(t, o.SetPayment("trueque"))
	assert.Error(t, o.SetAddress("   "))
}

func TestAddNoteKeepsLastTen(t *testing.T) {
	o := NewOrder()
	for i := 0; i < 12; i++ {
		o.AddNote("sin cebolla")
	}
	assert.Len(t, o.Notes, 10)
	o.AddNote("")
	assert.Len(t, o.Notes, 10)
}
