package main

import (
	"sync"
	"time"
)

type ConvState string

const (
	StateIdle                 ConvState = "IDLE"
	StateGreeted              ConvState = "GREETED"
	StateBuilding             ConvState = "BUILDING_ORDER"
	StateAwaitingDelivery     ConvState = "AWAITING_DELIVERY_CHOICE"
	StateAwaitingAddress      ConvState = "AWAITING_ADDRESS"
	StateAwaitingPayment      ConvState = "AWAITING_PAYMENT"
	StateAwaitingConfirmation ConvState = "AWAITING_CONFIRMATION"
	StateConfirmed            ConvState = "CONFIRMED"
	StateModifying            ConvState = "MODIFYING"
	StateCancelled            ConvState = "CANCELLED"
)

// Session is one customer's conversation. The mutex serializes message
// handling per customer; different customers never contend.
type Session struct {
	mu sync.Mutex

	CustomerID   string
	State        ConvState
	Order        *Order
	OrderNumber  int64 // assigned by the sink on first hand-off
	LastActivity time.Time
	ConfirmedAt  time.Time
	Modified     bool // order was reopened at least once since confirmation
}

func newSession(customerID string) *Session {
	return &Session{
		CustomerID: customerID,
		State:      StateIdle,
		Order:      NewOrder(),
	}
}

// resetForNewOrder starts a fresh order lifecycle in the same session.
func (s *Session) resetForNewOrder() {
	s.State = StateIdle
	s.Order = NewOrder()
	s.OrderNumber = 0
	s.ConfirmedAt = time.Time{}
	s.Modified = false
}

// SessionRegistry owns every live session, keyed by the channel-assigned
// customer id. Create-on-first-message; archived sessions are removed and
// the next contact starts over at IDLE.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: map[string]*Session{}}
}

func (r *SessionRegistry) Get(customerID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[customerID]
	if !ok {
		s = newSession(customerID)
		r.sessions[customerID] = s
	}
	return s
}

func (r *SessionRegistry) Remove(customerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, customerID)
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SweepConfirmed archives sessions that confirmed and then went quiet for
// the configured window. The order was already handed off at confirmation
// time, so archiving only closes the session; it never re-sends.
func (r *SessionRegistry) SweepConfirmed(now time.Time, idle time.Duration, archived func(*Session)) {
	r.mu.Lock()
	var expired []*Session
	for _, s := range r.sessions {
		expired = append(expired, s)
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.mu.Lock()
		done := s.State == StateConfirmed && !s.ConfirmedAt.IsZero() && now.Sub(s.ConfirmedAt) >= idle
		s.mu.Unlock()
		if done {
			r.Remove(s.CustomerID)
			if archived != nil {
				archived(s)
			}
		}
	}
}
