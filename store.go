package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// OrderSnapshot is the finalized order record handed to the persistence/
// printing collaborator, exactly once per confirmation event.
type OrderSnapshot struct {
	Number      int64         `json:"number"` // zero on first hand-off; the sink assigns it
	HandoffID   string        `json:"handoff_id"`
	CustomerID  string        `json:"customer_id"`
	Lines       []OrderLine   `json:"lines"`
	Total       int64         `json:"total_cents"`
	DeliveryFee int64         `json:"delivery_fee_cents"`
	GrandTotal  int64         `json:"grand_total_cents"`
	Delivery    DeliveryMode  `json:"delivery"`
	Address     string        `json:"address,omitempty"`
	Payment     PaymentMethod `json:"payment"`
	Notes       []string      `json:"notes,omitempty"`
	Modified    bool          `json:"modified"`
	ETAMinutes  int           `json:"eta_minutes"`
	CreatedAt   time.Time     `json:"created_at"`
}

// OrderSink receives confirmed orders. Archive returns the order number
// (assigned on first hand-off, reused on re-confirmations of the same
// order). On failure the order stays CONFIRMED and nothing is re-sent
// automatically; when a number was already assigned it is returned with
// the error so a retry reuses it.
type OrderSink interface {
	Archive(ctx context.Context, snap OrderSnapshot) (int64, error)
}

// PersistenceHandoffError wraps a failed hand-off. It surfaces to the
// operator log, never to the customer.
type PersistenceHandoffError struct {
	Err error
}

func (e *PersistenceHandoffError) Error() string {
	return "order hand-off failed: " + e.Err.Error()
}

func (e *PersistenceHandoffError) Unwrap() error { return e.Err }

// NoopSink numbers orders in memory and drops them; keeps the bot usable
// without a database in local development.
type NoopSink struct {
	n atomic.Int64
}

func (s *NoopSink) Archive(ctx context.Context, snap OrderSnapshot) (int64, error) {
	if snap.Number != 0 {
		return snap.Number, nil
	}
	return s.n.Add(1), nil
}

// -------- sqlite archive + comanda printer --------

// SQLiteStore archives confirmed orders and rewrites the comanda file the
// kitchen printer watches. The AUTOINCREMENT primary key doubles as the
// order number.
type SQLiteStore struct {
	db          *sql.DB
	comandaPath string
}

func OpenStore(dbPath, comandaPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open order db: %w", err)
	}
	s := &SQLiteStore{db: db, comandaPath: comandaPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS orders (
		number INTEGER PRIMARY KEY AUTOINCREMENT,
		handoff_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		lines JSON NOT NULL,
		total_cents INTEGER NOT NULL,
		delivery_fee_cents INTEGER NOT NULL DEFAULT 0,
		delivery TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		payment TEXT NOT NULL,
		notes JSON,
		modified INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate orders: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Archive(ctx context.Context, snap OrderSnapshot) (int64, error) {
	if snap.HandoffID == "" {
		snap.HandoffID = uuid.NewString()
	}
	lines, err := json.Marshal(snap.Lines)
	if err != nil {
		return 0, &PersistenceHandoffError{Err: err}
	}
	notes, err := json.Marshal(snap.Notes)
	if err != nil {
		return 0, &PersistenceHandoffError{Err: err}
	}

	if snap.Number == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO orders (handoff_id, customer_id, lines, total_cents, delivery_fee_cents, delivery, address, payment, notes, modified, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.HandoffID, snap.CustomerID, string(lines), snap.Total, snap.DeliveryFee,
			string(snap.Delivery), snap.Address, string(snap.Payment), string(notes), snap.Modified, snap.CreatedAt)
		if err != nil {
			return 0, &PersistenceHandoffError{Err: err}
		}
		snap.Number, err = res.LastInsertId()
		if err != nil {
			return 0, &PersistenceHandoffError{Err: err}
		}
	} else {
		// re-confirmation of a modified order rewrites the same record
		_, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO orders (number, handoff_id, customer_id, lines, total_cents, delivery_fee_cents, delivery, address, payment, notes, modified, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.Number, snap.HandoffID, snap.CustomerID, string(lines), snap.Total, snap.DeliveryFee,
			string(snap.Delivery), snap.Address, string(snap.Payment), string(notes), snap.Modified, snap.CreatedAt)
		if err != nil {
			return 0, &PersistenceHandoffError{Err: err}
		}
	}

	// the row is already committed here: report the comanda failure with
	// the assigned number, so a retry rewrites the same record instead of
	// opening a duplicate ticket
	if s.comandaPath != "" {
		if err := os.WriteFile(s.comandaPath, []byte(renderComanda(snap)), 0o644); err != nil {
			return snap.Number, &PersistenceHandoffError{Err: err}
		}
	}
	return snap.Number, nil
}

// GetOrder reads an archived order back; used by the operator tooling and
// the tests.
func (s *SQLiteStore) GetOrder(ctx context.Context, number int64) (OrderSnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT number, handoff_id, customer_id, lines, total_cents, delivery_fee_cents, delivery, address, payment, notes, modified, created_at
		FROM orders WHERE number = ?`, number)

	var snap OrderSnapshot
	var lines, notes, delivery, payment string
	var modified int
	err := row.Scan(&snap.Number, &snap.HandoffID, &snap.CustomerID, &lines, &snap.Total,
		&snap.DeliveryFee, &delivery, &snap.Address, &payment, &notes, &modified, &snap.CreatedAt)
	if err != nil {
		return OrderSnapshot{}, err
	}
	if err := json.Unmarshal([]byte(lines), &snap.Lines); err != nil {
		return OrderSnapshot{}, err
	}
	if notes != "" && notes != "null" {
		if err := json.Unmarshal([]byte(notes), &snap.Notes); err != nil {
			return OrderSnapshot{}, err
		}
	}
	snap.Delivery = DeliveryMode(delivery)
	snap.Payment = PaymentMethod(payment)
	snap.Modified = modified != 0
	snap.GrandTotal = snap.Total + snap.DeliveryFee
	return snap, nil
}

// renderComanda formats the kitchen ticket.
func renderComanda(snap OrderSnapshot) string {
	title := "PEDIDO"
	if snap.Modified {
		title = "PEDIDO MODIFICADO"
	}

	var b strings.Builder
	fmt.Fprintln(&b, title)
	fmt.Fprintf(&b, "Fecha: %s\n", snap.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Pedido #%05d\n", snap.Number)
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "Cliente: %s\n", snap.CustomerID)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Items:")
	for _, l := range snap.Lines {
		fmt.Fprintf(&b, "- %d x %s  (%s c/u)\n", l.Quantity, l.Name, formatMoney(l.UnitPrice))
	}
	fmt.Fprintln(&b)
	if snap.Delivery == ModeDelivery {
		fmt.Fprintln(&b, "Entrega: ENVIO")
		fmt.Fprintf(&b, "Direccion: %s\n", snap.Address)
		fmt.Fprintf(&b, "Envio: %s\n", formatMoney(snap.DeliveryFee))
	} else {
		fmt.Fprintln(&b, "Entrega: RETIRO")
	}
	fmt.Fprintf(&b, "Pago: %s\n", snap.Payment)
	fmt.Fprintf(&b, "Total: %s\n", formatMoney(snap.GrandTotal))
	fmt.Fprintf(&b, "Demora: %d min\n", snap.ETAMinutes)

	if len(snap.Notes) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "MODIFICACIONES:")
		for _, n := range snap.Notes {
			fmt.Fprintf(&b, "* %s\n", n)
		}
	}
	return b.String()
}
