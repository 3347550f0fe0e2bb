package main

import (
	"errors"
	"fmt"
)

type DeliveryMode string

const (
	DeliveryUnset DeliveryMode = ""
	ModePickup    DeliveryMode = "retiro"
	ModeDelivery  DeliveryMode = "envio"
)

type PaymentMethod string

const (
	PaymentUnset    PaymentMethod = ""
	PaymentCash     PaymentMethod = "efectivo"
	PaymentCard     PaymentMethod = "tarjeta"
	PaymentTransfer PaymentMethod = "transferencia"
)

type OrderStatus string

const (
	StatusDraft     OrderStatus = "DRAFT"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusCancelled OrderStatus = "CANCELLED"
)

type UnknownItemError struct {
	Key string
}

func (e *UnknownItemError) Error() string {
	return "unknown item: " + e.Key
}

// ErrNotInOrder is reported when removing an item that was never added.
// Callers treat it as a no-op with a corrective prompt, not a failure.
var ErrNotInOrder = errors.New("item not in order")

// ErrOrderClosed is returned by any mutation attempted after the order
// left DRAFT.
var ErrOrderClosed = errors.New("order is closed for changes")

// IncompleteOrderError names the first thing still blocking confirmation.
type IncompleteOrderError struct {
	Missing string // "items", "delivery", "address" or "payment"
}

func (e *IncompleteOrderError) Error() string {
	return "order incomplete: missing " + e.Missing
}

type OrderLine struct {
	ItemKey   string `json:"item_key"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price_cents"`
}

// Order is the draft under construction for one session. The total is
// always derived from the lines, never stored.
type Order struct {
	Lines       []OrderLine
	Delivery    DeliveryMode
	Address     string
	Payment     PaymentMethod
	Status      OrderStatus
	Notes       []string // free-text kitchen notes from the modification flow
	DeliveryFee int64    // cents, charged only when Delivery == ModeDelivery
}

func NewOrder() *Order {
	return &Order{Status: StatusDraft}
}

// AddItem appends a line, or accumulates quantity on the existing line for
// the same item. The unit price is snapshotted from the catalog at add
// time. Resolver output should always be a valid key, but the catalog is
// checked anyway.
func (o *Order) AddItem(cat *Catalog, key string, qty int) error {
	if o.Status != StatusDraft {
		return ErrOrderClosed
	}
	if qty < 1 {
		qty = 1
	}
	it, ok := cat.Item(key)
	if !ok {
		return &UnknownItemError{Key: key}
	}
	for i := range o.Lines {
		if o.Lines[i].ItemKey == key {
			o.Lines[i].Quantity += qty
			return nil
		}
	}
	o.Lines = append(o.Lines, OrderLine{ItemKey: key, Name: it.Name, Quantity: qty, UnitPrice: it.Price})
	return nil
}

// RemoveItem decrements a line, clamping at zero and dropping the line
// when it empties. Removing more than present is not an error.
func (o *Order) RemoveItem(key string, qty int) error {
	if o.Status != StatusDraft {
		return ErrOrderClosed
	}
	if qty < 1 {
		qty = 1
	}
	for i := range o.Lines {
		if o.Lines[i].ItemKey != key {
			continue
		}
		o.Lines[i].Quantity -= qty
		if o.Lines[i].Quantity <= 0 {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
		}
		return nil
	}
	return ErrNotInOrder
}

func (o *Order) SetDelivery(mode DeliveryMode, feeCents int64) error {
	if o.Status != StatusDraft {
		return ErrOrderClosed
	}
	if mode != ModePickup && mode != ModeDelivery {
		return fmt.Errorf("invalid delivery mode: %q", mode)
	}
	o.Delivery = mode
	if mode == ModeDelivery {
		o.DeliveryFee = feeCents
	} else {
		o.DeliveryFee = 0
		o.Address = ""
	}
	return nil
}

func (o *Order) SetPayment(method PaymentMethod) error {
	if o.Status != StatusDraft {
		return ErrOrderClosed
	}
	switch method {
	case PaymentCash, PaymentCard, PaymentTransfer:
		o.Payment = method
		return nil
	}
	return fmt.Errorf("invalid payment method: %q", method)
}

func (o *Order) SetAddress(text string) error {
	if o.Status != StatusDraft {
		return ErrOrderClosed
	}
	text = clipWords(text, 12)
	if text == "" {
		return errors.New("empty address")
	}
	o.Address = text
	return nil
}

// AddNote records a free-text kitchen note ("sin cebolla"). Only the last
// ten notes are kept on the comanda.
func (o *Order) AddNote(text string) {
	text = clipWords(text, 20)
	if text == "" {
		return
	}
	o.Notes = append(o.Notes, text)
	if len(o.Notes) > 10 {
		o.Notes = o.Notes[len(o.Notes)-10:]
	}
}

// Total is the sum of the line items, excluding the delivery fee.
func (o *Order) Total() int64 {
	var total int64
	for _, l := range o.Lines {
		total += int64(l.Quantity) * l.UnitPrice
	}
	return total
}

// GrandTotal adds the delivery fee when applicable.
func (o *Order) GrandTotal() int64 {
	return o.Total() + o.DeliveryFee
}

// Confirm validates completeness and moves the order to CONFIRMED. The
// caller hands the confirmed snapshot to the persistence sink.
func (o *Order) Confirm() error {
	if o.Status == StatusCancelled {
		return ErrOrderClosed
	}
	switch {
	case len(o.Lines) == 0:
		return &IncompleteOrderError{Missing: "items"}
	case o.Delivery == DeliveryUnset:
		return &IncompleteOrderError{Missing: "delivery"}
	case o.Delivery == ModeDelivery && o.Address == "":
		return &IncompleteOrderError{Missing: "address"}
	case o.Payment == PaymentUnset:
		return &IncompleteOrderError{Missing: "payment"}
	}
	o.Status = StatusConfirmed
	return nil
}

// ReopenForModification is the single entry point for post-confirmation
// edits. Only legal from CONFIRMED.
func (o *Order) ReopenForModification() error {
	if o.Status != StatusConfirmed {
		return fmt.Errorf("cannot reopen order in status %s", o.Status)
	}
	o.Status = StatusDraft
	return nil
}

// Cancel is terminal. Legal from DRAFT or CONFIRMED.
func (o *Order) Cancel() error {
	if o.Status == StatusCancelled {
		return ErrOrderClosed
	}
	o.Status = StatusCancelled
	return nil
}
