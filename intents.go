package main

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

type Intent string

const (
	IntentGreet          Intent = "greet"
	IntentAddItem        Intent = "add_item"
	IntentRemoveItem     Intent = "remove_item"
	IntentConfirm        Intent = "confirm"
	IntentCancel         Intent = "cancel"
	IntentModify         Intent = "modify"
	IntentChooseDelivery Intent = "choose_delivery"
	IntentChoosePayment  Intent = "choose_payment"
	IntentProvideAddress Intent = "provide_address"
	IntentUnknown        Intent = "unknown"
)

// Entities carries the payload extracted alongside an intent. Only the
// fields relevant to the intent are set.
type Entities struct {
	Items     []ItemMention
	Ambiguous []AmbiguousMention
	Delivery  DeliveryMode
	Payment   PaymentMethod
	Address   string
	Note      string
}

type Classification struct {
	Intent   Intent
	Entities Entities
}

// -------- keyword rules (normalized text) --------

var (
	reYes    = regexp.MustCompile(`^(si|s|dale|ok|oka|okay|confirmo|confirmado|de una|deuna|listo|eso es todo|es todo|nada mas)$`)
	reNo     = regexp.MustCompile(`^(no|n|nop|negativo|no gracias)$`)
	reCancel = regexp.MustCompile(`\b(cancel|cancelar|cancelo|cancelalo|cancela|anul|anular|anulo|anulalo|anula)\b`)
	reModify = regexp.MustCompile(`\b(modificar|modifica|cambiar|cambia|cambio|agregar|agrega|sumar|suma)\b`)
	// explicit verbs only: "sin"/"menos" next to an item are an order
	// detail ("hamburguesa sin cebolla"), not a removal
	reRemove  = regexp.MustCompile(`\b(saca|sacame|sacale|quita|quitame|quitar|borra|borrame)\b`)
	reSinNote = regexp.MustCompile(`\bsin\s+(\w+(?:\s+\w+)?)`)
	reGreet  = regexp.MustCompile(`\b(hola|buenas|buen dia|que tal|menu|precio|precios|que hay|que tenes)\b`)

	rePayCash     = regexp.MustCompile(`\b(efectivo|cash|plata)\b`)
	rePayCard     = regexp.MustCompile(`\b(tarjeta|card|debito|credito|visa|mastercard)\b`)
	rePayTransfer = regexp.MustCompile(`\b(transferencia|transfer|transf|cbu|alias|mercado pago|mercadopago)\b`)
	reDelivSend   = regexp.MustCompile(`\b(envio|enviar|envialo|mandalo|a domicilio|domicilio|delivery)\b`)
	reDelivPickup = regexp.MustCompile(`\b(retiro|retirar|retira|paso|busco|buscar|voy|local)\b`)
)

func isYes(t string) bool    { return reYes.MatchString(t) }
func isNo(t string) bool     { return reNo.MatchString(t) }
func isCancel(t string) bool { return reCancel.MatchString(t) }

func detectPayment(t string) PaymentMethod {
	switch {
	case rePayCash.MatchString(t):
		return PaymentCash
	case rePayCard.MatchString(t):
		return PaymentCard
	case rePayTransfer.MatchString(t):
		return PaymentTransfer
	}
	return PaymentUnset
}

func detectDelivery(t string) DeliveryMode {
	switch {
	case reDelivSend.MatchString(t):
		return ModeDelivery
	case reDelivPickup.MatchString(t):
		return ModePickup
	}
	return DeliveryUnset
}

// -------- classifier --------

// Classifier turns an inbound message into an intent, using the current
// conversation state. Rules run in a fixed precedence order; the external
// completion service is consulted last and only advisorily.
type Classifier struct {
	Catalog         *Catalog
	Fallback        FallbackClassifier
	FallbackTimeout time.Duration
	Log             *slog.Logger
}

func (c *Classifier) Classify(ctx context.Context, text string, state ConvState) Classification {
	t := normText(text)

	// 1) explicit cancel/confirm always win, so the customer can bail
	// out or close the deal from anywhere.
	if isCancel(t) {
		return Classification{Intent: IntentCancel}
	}
	if isYes(t) {
		return Classification{Intent: IntentConfirm}
	}

	// 2) state-specific expected input.
	switch state {
	case StateAwaitingDelivery:
		if mode := detectDelivery(t); mode != DeliveryUnset {
			return Classification{Intent: IntentChooseDelivery, Entities: Entities{Delivery: mode}}
		}
	case StateAwaitingAddress:
		if t != "" {
			return Classification{Intent: IntentProvideAddress, Entities: Entities{Address: strings.TrimSpace(text)}}
		}
	case StateAwaitingPayment:
		if pm := detectPayment(t); pm != PaymentUnset {
			return Classification{Intent: IntentChoosePayment, Entities: Entities{Payment: pm}}
		}
	case StateAwaitingConfirmation:
		if isNo(t) {
			return Classification{Intent: IntentCancel}
		}
	}

	// 3) item mentions. "sin X" alongside an added item travels as a
	// kitchen note.
	if parsed := c.Catalog.ParseItems(text); !parsed.Empty() {
		ents := Entities{Items: parsed.Mentions, Ambiguous: parsed.Ambiguous}
		if reRemove.MatchString(t) {
			return Classification{Intent: IntentRemoveItem, Entities: ents}
		}
		if m := reSinNote.FindStringSubmatch(t); m != nil {
			ents.Note = clipWords("sin "+m[1], 20)
		}
		return Classification{Intent: IntentAddItem, Entities: ents}
	}

	// 4) greetings / menu requests.
	if reGreet.MatchString(t) {
		return Classification{Intent: IntentGreet}
	}

	// 5) post-confirmation free text is a modification note for the
	// kitchen, not noise.
	if state == StateConfirmed && t != "" && !isNo(t) {
		if reModify.MatchString(t) || len(strings.Fields(t)) >= 2 {
			return Classification{Intent: IntentModify, Entities: Entities{Note: clipWords(strings.TrimSpace(text), 20)}}
		}
	}

	// 6) completion-service fallback: advisory, bounded, degrades to
	// unknown on any failure.
	if guess, ok := c.consultFallback(ctx, text, state); ok {
		return guess
	}

	return Classification{Intent: IntentUnknown}
}

// consultFallback runs a single bounded attempt against the completion
// service and maps its guess back into the closed intent set. Guesses for
// order-mutating intents are only accepted when local extraction backs
// them up, so the service can never inject items or payment choices.
func (c *Classifier) consultFallback(ctx context.Context, text string, state ConvState) (Classification, bool) {
	if c.Fallback == nil {
		return Classification{}, false
	}
	timeout := c.FallbackTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	guess, err := c.Fallback.ClassifyFallback(ctx, text, state)
	if err != nil {
		if c.Log != nil {
			c.Log.Warn("completion fallback failed", "err", err)
		}
		return Classification{}, false
	}
	if guess.Confidence < 0.5 {
		return Classification{}, false
	}
	switch Intent(guess.Intent) {
	case IntentGreet:
		return Classification{Intent: IntentGreet}, true
	case IntentConfirm:
		return Classification{Intent: IntentConfirm}, true
	case IntentCancel:
		return Classification{Intent: IntentCancel}, true
	case IntentModify:
		if state == StateConfirmed || state == StateModifying {
			return Classification{Intent: IntentModify, Entities: Entities{Note: clipWords(strings.TrimSpace(text), 20)}}, true
		}
	}
	// Entity-bearing guesses (add_item, choose_*, provide_address) are
	// ignored: local rules already declined to extract those entities.
	return Classification{}, false
}
