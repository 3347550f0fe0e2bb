package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Bot is the conversation orchestrator: one instance serves every
// customer, sessions hold the per-customer state.
type Bot struct {
	Catalog    *Catalog
	Classifier *Classifier
	Sessions   *SessionRegistry
	Sink       OrderSink
	Log        *slog.Logger

	DeliveryFee   int64 // cents
	ETAMinutes    int
	ConfirmedIdle time.Duration
}

// Inbound is one customer message from the transport.
type Inbound struct {
	CustomerID string
	Text       string
	Timestamp  time.Time
}

type Outbound struct {
	CustomerID string
	Text       string
}

// Handle processes one inbound message and produces the reply. Messages
// for the same customer are serialized on the session lock; different
// customers run in parallel.
func (b *Bot) Handle(ctx context.Context, in Inbound) (Outbound, error) {
	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	sess := b.Sessions.Get(in.CustomerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	// a cancelled order is terminal; the next contact starts over
	if sess.State == StateCancelled {
		sess.resetForNewOrder()
	}
	// confirmed and quiet past the window: archived, fresh start
	if sess.State == StateConfirmed && !sess.ConfirmedAt.IsZero() && ts.Sub(sess.ConfirmedAt) >= b.ConfirmedIdle {
		b.Log.Info("confirmed session expired, starting fresh", "customer", in.CustomerID, "order", sess.OrderNumber)
		sess.resetForNewOrder()
	}

	cls := b.Classifier.Classify(ctx, in.Text, sess.State)
	reply := b.transition(ctx, sess, cls, in.Text, ts)
	sess.LastActivity = ts

	return Outbound{CustomerID: in.CustomerID, Text: reply}, nil
}

func (b *Bot) transition(ctx context.Context, sess *Session, cls Classification, raw string, ts time.Time) string {
	// cancel wins from every non-terminal state
	if cls.Intent == IntentCancel {
		_ = sess.Order.Cancel()
		sess.State = StateCancelled
		return "❌ Pedido cancelado."
	}

	switch sess.State {
	case StateIdle, StateGreeted:
		return b.handleOpening(sess, cls, raw)

	case StateBuilding:
		switch cls.Intent {
		case IntentAddItem, IntentRemoveItem:
			return b.applyItems(sess, cls) + "\n¿Algo más? Cuando termines decí *listo*."
		case IntentConfirm:
			if len(sess.Order.Lines) == 0 {
				return "Tu pedido está vacío. Decime qué querés pedir."
			}
			sess.State = StateAwaitingDelivery
			return "📦 ¿Envío o retiro?"
		case IntentGreet:
			return b.menuMessage()
		}

	case StateAwaitingDelivery:
		switch cls.Intent {
		case IntentChooseDelivery:
			if err := sess.Order.SetDelivery(cls.Entities.Delivery, b.DeliveryFee); err != nil {
				return "📦 ¿Envío o retiro?"
			}
			if cls.Entities.Delivery == ModeDelivery {
				sess.State = StateAwaitingAddress
				return "📍 Perfecto. Decime la dirección por favor."
			}
			sess.State = StateAwaitingPayment
			return "💵 ¿Efectivo, tarjeta o transferencia?"
		case IntentAddItem:
			return b.applyItems(sess, cls) + "\n📦 ¿Envío o retiro?"
		}

	case StateAwaitingAddress:
		if cls.Intent == IntentProvideAddress {
			if err := sess.Order.SetAddress(cls.Entities.Address); err != nil {
				return "📍 Decime la dirección por favor."
			}
			sess.State = StateAwaitingPayment
			return "💵 ¿Efectivo, tarjeta o transferencia?"
		}

	case StateAwaitingPayment:
		switch cls.Intent {
		case IntentChoosePayment:
			if err := sess.Order.SetPayment(cls.Entities.Payment); err != nil {
				return "💵 ¿Efectivo, tarjeta o transferencia?"
			}
			sess.State = StateAwaitingConfirmation
			return b.orderSummary(sess.Order) + "\n¿Confirmás? (SI / NO)"
		case IntentAddItem:
			return b.applyItems(sess, cls) + "\n💵 ¿Efectivo, tarjeta o transferencia?"
		}

	case StateAwaitingConfirmation:
		switch cls.Intent {
		case IntentConfirm:
			return b.confirmOrder(ctx, sess, ts)
		case IntentAddItem, IntentRemoveItem:
			return b.applyItems(sess, cls) + "\n" + b.orderSummary(sess.Order) + "\n¿Confirmás? (SI / NO)"
		}

	case StateConfirmed:
		switch cls.Intent {
		case IntentModify:
			return b.reopen(sess, cls)
		case IntentAddItem, IntentRemoveItem:
			return b.reopen(sess, cls)
		case IntentConfirm, IntentGreet:
			return "👌 Tu pedido ya está confirmado y en preparación."
		}

	case StateModifying:
		switch cls.Intent {
		case IntentAddItem, IntentRemoveItem:
			return b.applyItems(sess, cls) + "\n" + b.orderSummary(sess.Order) + "\n¿Confirmás el pedido modificado? (SI / NO)"
		case IntentModify:
			sess.Order.AddNote(cls.Entities.Note)
			return "🧾 Anoté la modificación para la cocina.\n¿Confirmás el pedido modificado? (SI / NO)"
		case IntentConfirm:
			return b.confirmOrder(ctx, sess, ts)
		}
	}

	// a message is never silently dropped: list what works right now
	return b.clarification(sess.State)
}

// handleOpening covers IDLE and GREETED: either the first message already
// carries an order, or the customer gets the menu.
func (b *Bot) handleOpening(sess *Session, cls Classification, raw string) string {
	courtesy := ""
	if MentionsBeverage(raw) && !b.Catalog.HasBeverages() {
		courtesy = "🥤 Hoy no tenemos bebidas para ofrecerte.\n"
	}

	switch cls.Intent {
	case IntentAddItem:
		reply := b.applyItems(sess, cls)
		if len(sess.Order.Lines) > 0 {
			sess.State = StateBuilding
			return courtesy + reply + "\n¿Algo más? Cuando termines decí *listo*."
		}
		return courtesy + reply
	case IntentGreet:
		sess.State = StateGreeted
		return courtesy + b.menuMessage()
	}

	if sess.State == StateIdle {
		// first contact, whatever it says: greet with the menu
		sess.State = StateGreeted
		return courtesy + b.menuMessage()
	}
	return courtesy + b.clarification(sess.State)
}

// applyItems mutates the order with the extracted mentions. Ambiguous
// aliases are surfaced, never guessed.
func (b *Bot) applyItems(sess *Session, cls Classification) string {
	var parts []string

	for _, m := range cls.Entities.Items {
		if cls.Intent == IntentRemoveItem {
			err := sess.Order.RemoveItem(m.Key, m.Qty)
			if errors.Is(err, ErrNotInOrder) {
				it, _ := b.Catalog.Item(m.Key)
				parts = append(parts, fmt.Sprintf("%s no está en tu pedido.", it.Name))
				continue
			}
			if err == nil {
				it, _ := b.Catalog.Item(m.Key)
				parts = append(parts, fmt.Sprintf("Saqué %d x %s.", m.Qty, it.Name))
			}
			continue
		}
		if err := sess.Order.AddItem(b.Catalog, m.Key, m.Qty); err != nil {
			b.Log.Warn("add item failed", "key", m.Key, "err", err)
			continue
		}
		it, _ := b.Catalog.Item(m.Key)
		parts = append(parts, fmt.Sprintf("Anoté %d x %s.", m.Qty, it.Name))
	}

	if cls.Intent == IntentAddItem && cls.Entities.Note != "" && len(cls.Entities.Items) > 0 {
		sess.Order.AddNote(cls.Entities.Note)
		parts = append(parts, fmt.Sprintf("🧾 Anoté para la cocina: “%s”.", cls.Entities.Note))
	}

	for _, amb := range cls.Entities.Ambiguous {
		names := make([]string, 0, len(amb.Keys))
		for _, k := range amb.Keys {
			if it, ok := b.Catalog.Item(k); ok {
				names = append(names, it.Name)
			}
		}
		parts = append(parts, fmt.Sprintf("🤔 Con “%s”, ¿cuál quisiste decir: %s?", amb.Token, strings.Join(names, " o ")))
	}

	if len(parts) == 0 {
		return "No encontré eso en el menú."
	}
	return strings.Join(parts, "\n")
}

// reopen moves a CONFIRMED order back to draft for the modification flow.
func (b *Bot) reopen(sess *Session, cls Classification) string {
	if err := sess.Order.ReopenForModification(); err != nil {
		return b.clarification(sess.State)
	}
	sess.State = StateModifying
	sess.Modified = true

	var head string
	switch cls.Intent {
	case IntentAddItem, IntentRemoveItem:
		head = b.applyItems(sess, cls)
	case IntentModify:
		if cls.Entities.Note != "" {
			sess.Order.AddNote(cls.Entities.Note)
			head = fmt.Sprintf("🧾 Modificación para la cocina:\n“%s”", cls.Entities.Note)
		} else {
			head = "📝 Decime qué querés cambiar."
		}
	}
	return head + "\n" + b.orderSummary(sess.Order) + "\n¿Confirmás el pedido modificado? (SI / NO)"
}

// confirmOrder validates, confirms and hands the snapshot to the sink
// exactly once per confirmation event. A hand-off failure goes to the
// operator log; the customer still gets a confirmation and the order
// stays CONFIRMED pending an explicit operator retry.
func (b *Bot) confirmOrder(ctx context.Context, sess *Session, ts time.Time) string {
	if err := sess.Order.Confirm(); err != nil {
		var inc *IncompleteOrderError
		if errors.As(err, &inc) {
			switch inc.Missing {
			case "items":
				return "Tu pedido está vacío. Decime qué querés pedir."
			case "delivery":
				return "Antes de confirmar: 📦 ¿envío o retiro?"
			case "address":
				return "Me falta la dirección 📍. ¿A dónde lo mandamos?"
			case "payment":
				return "Antes de confirmar: 💵 ¿efectivo, tarjeta o transferencia?"
			}
		}
		return b.clarification(sess.State)
	}

	snap := b.snapshot(sess, ts)
	num, err := b.Sink.Archive(ctx, snap)
	if num != 0 {
		// keep a partially-assigned number so any retry targets the same
		// archived record
		sess.OrderNumber = num
	}
	if err != nil {
		b.Log.Error("order hand-off failed", "customer", sess.CustomerID, "err", err)
	}

	sess.State = StateConfirmed
	sess.ConfirmedAt = ts

	if sess.Modified {
		return "✅ Pedido modificado confirmado. Tu pedido está en preparación."
	}
	return fmt.Sprintf(
		"✅ Pedido confirmado. ¡Gracias!\n⏱️ Demora: %d min\n¿Querés agregar algo más, o modificar algún ingrediente? Escribí lo que quieras y se lo paso al cocinero.",
		b.ETAMinutes)
}

func (b *Bot) snapshot(sess *Session, ts time.Time) OrderSnapshot {
	o := sess.Order
	lines := make([]OrderLine, len(o.Lines))
	copy(lines, o.Lines)
	notes := make([]string, len(o.Notes))
	copy(notes, o.Notes)
	return OrderSnapshot{
		Number:      sess.OrderNumber,
		CustomerID:  sess.CustomerID,
		Lines:       lines,
		Total:       o.Total(),
		DeliveryFee: o.DeliveryFee,
		GrandTotal:  o.GrandTotal(),
		Delivery:    o.Delivery,
		Address:     o.Address,
		Payment:     o.Payment,
		Notes:       notes,
		Modified:    sess.Modified,
		ETAMinutes:  b.ETAMinutes,
		CreatedAt:   ts,
	}
}

// -------- outbound text --------

func (b *Bot) menuMessage() string {
	var lines []string
	lines = append(lines, "👋 *Hola!* Soy *Marietta*", "🧾 *Menú*")
	for _, it := range b.Catalog.Items() {
		lines = append(lines, fmt.Sprintf("🍽️ %s — %s", it.Name, formatMoney(it.Price)))
	}
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("🚚 Envío %s | ⏱️ %d min", formatMoney(b.DeliveryFee), b.ETAMinutes))
	lines = append(lines, "👉 Mandame tu pedido con cantidades (ej: “2 milanesas y 1 sanguche”)")
	return strings.Join(lines, "\n")
}

func (b *Bot) orderSummary(o *Order) string {
	var lines []string
	lines = append(lines, "🧾 Tu pedido:")
	for _, l := range o.Lines {
		lines = append(lines, fmt.Sprintf("• %d x %s", l.Quantity, l.Name))
	}
	switch o.Delivery {
	case ModeDelivery:
		lines = append(lines, "📍 Dirección: "+firstNonEmpty(o.Address, "-"))
		lines = append(lines, "🚚 Envío: "+formatMoney(o.DeliveryFee))
	case ModePickup:
		lines = append(lines, "🏃 Retiro en local")
	}
	if o.Payment != PaymentUnset {
		lines = append(lines, "💳 Pago: "+string(o.Payment))
	}
	lines = append(lines, "💰 Total: "+formatMoney(o.GrandTotal()))
	lines = append(lines, fmt.Sprintf("⏱️ Demora: %d min", b.ETAMinutes))
	return strings.Join(lines, "\n")
}

// clarification names the valid next actions for the current state.
func (b *Bot) clarification(state ConvState) string {
	switch state {
	case StateBuilding:
		return "No te entendí 🙏. Podés pedir más items del menú, decir *listo* para cerrar el pedido, o *cancelar*."
	case StateAwaitingDelivery:
		return "📦 ¿Envío o retiro?"
	case StateAwaitingAddress:
		return "📍 Decime la dirección por favor."
	case StateAwaitingPayment:
		return "💵 ¿Efectivo, tarjeta o transferencia?"
	case StateAwaitingConfirmation:
		return "¿Confirmás? (SI / NO) También podés *cancelar*."
	case StateConfirmed:
		return "👨‍🍳 Tu pedido está en preparación. Podés *agregar* items, mandarme una modificación para la cocina, o *cancelar*."
	case StateModifying:
		return "¿Confirmás el pedido modificado? (SI / NO)"
	}
	return "No te entendí 🙏. Mandame tu pedido con cantidades (ej: “2 milanesas”), o escribí *menú* para ver precios."
}
