// Package balance tracks the quote-currency account balance with a
// lock/deduct flow so concurrent orders cannot overspend.
package balance

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"spot-trader/pkg/exchanges/common"
)

// BalanceSource fetches authoritative balances from the exchange.
type BalanceSource interface {
	GetBalances(ctx context.Context) ([]common.Balance, error)
}

// Snapshot is a point-in-time balance view.
type Snapshot struct {
	Total     float64
	Available float64
	Locked    float64
	LastSync  time.Time
}

// Manager manages the quote asset balance (e.g. USDT).
type Manager struct {
	source       BalanceSource
	quoteAsset   string
	syncInterval time.Duration

	mu        sync.RWMutex
	total     float64
	available float64
	locked    float64
	lastSync  time.Time
}

// NewManager creates a balance manager for one quote asset.
func NewManager(source BalanceSource, quoteAsset string, syncInterval time.Duration) *Manager {
	return &Manager{
		source:       source,
		quoteAsset:   quoteAsset,
		syncInterval: syncInterval,
	}
}

// Start begins periodic balance sync.
func (m *Manager) Start(ctx context.Context) {
	if err := m.Sync(ctx); err != nil {
		log.Printf("❌ Balance sync error: %v", err)
	}

	ticker := time.NewTicker(m.syncInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := m.Sync(ctx); err != nil {
					log.Printf("❌ Balance sync error: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Sync fetches the latest balance from the exchange. Locally locked
// amounts are preserved so in-flight orders keep their reservation.
func (m *Manager) Sync(ctx context.Context) error {
	if m.source == nil {
		// No exchange configured (mock mode).
		return nil
	}

	balances, err := m.source.GetBalances(ctx)
	if err != nil {
		return err
	}

	for _, b := range balances {
		if b.Asset != m.quoteAsset {
			continue
		}
		m.mu.Lock()
		m.total = b.Free + b.Locked
		m.available = b.Free - m.locked
		if m.available < 0 {
			m.available = 0
		}
		m.lastSync = time.Now()
		m.mu.Unlock()

		log.Printf("💰 Balance synced: total=%.2f available=%.2f locked=%.2f",
			b.Free+b.Locked, m.available, m.locked)
		return nil
	}
	return fmt.Errorf("balance sync: asset %s not found", m.quoteAsset)
}

// Available returns the spendable balance.
func (m *Manager) Available() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available
}

// Lock reserves balance for an order about to be submitted.
func (m *Manager) Lock(amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount > m.available {
		return fmt.Errorf("insufficient balance: need %.2f, have %.2f", amount, m.available)
	}

	m.available -= amount
	m.locked += amount
	return nil
}

// Unlock releases a reservation after a cancel or rejection.
func (m *Manager) Unlock(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.locked -= amount
	if m.locked < 0 {
		m.locked = 0
	}
	m.available += amount
}

// Deduct converts a reservation into spent funds after a buy fill.
func (m *Manager) Deduct(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.locked -= amount
	if m.locked < 0 {
		m.locked = 0
	}
	m.total -= amount
}

// Credit adds proceeds from a sell fill.
func (m *Manager) Credit(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total += amount
	m.available += amount
}

// Get returns the current balance snapshot.
func (m *Manager) Get() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Total:     m.total,
		Available: m.available,
		Locked:    m.locked,
		LastSync:  m.lastSync,
	}
}

// SetInitial seeds the balance when no exchange source is wired.
func (m *Manager) SetInitial(amount float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total = amount
	m.available = amount
	m.locked = 0

	log.Printf("💰 Initial balance set: %.2f", amount)
}
