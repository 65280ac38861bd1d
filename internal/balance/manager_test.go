package balance

import (
	"sync"
	"testing"
	"time"
)

func TestLockUnlockDeduct(t *testing.T) {
	m := NewManager(nil, "USDT", time.Minute)
	m.SetInitial(1000)

	if err := m.Lock(600); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if got := m.Available(); got != 400 {
		t.Errorf("available = %v, want 400", got)
	}

	// Over-lock must fail and leave state untouched.
	if err := m.Lock(500); err == nil {
		t.Error("expected insufficient balance error")
	}
	if got := m.Available(); got != 400 {
		t.Errorf("available after failed lock = %v, want 400", got)
	}

	m.Deduct(600)
	snap := m.Get()
	if snap.Total != 400 || snap.Locked != 0 {
		t.Errorf("after deduct: total=%v locked=%v, want 400/0", snap.Total, snap.Locked)
	}

	m.Credit(250)
	if got := m.Available(); got != 650 {
		t.Errorf("available after credit = %v, want 650", got)
	}
}

func TestUnlockRestoresAvailable(t *testing.T) {
	m := NewManager(nil, "USDT", time.Minute)
	m.SetInitial(100)

	if err := m.Lock(80); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	m.Unlock(80)

	snap := m.Get()
	if snap.Available != 100 || snap.Locked != 0 {
		t.Errorf("after unlock: available=%v locked=%v, want 100/0", snap.Available, snap.Locked)
	}
}

func TestConcurrentLocksNeverOverspend(t *testing.T) {
	m := NewManager(nil, "USDT", time.Minute)
	m.SetInitial(100)

	var wg sync.WaitGroup
	granted := make([]bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			granted[i] = m.Lock(30) == nil
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, g := range granted {
		if g {
			wins++
		}
	}
	if wins != 3 {
		t.Errorf("granted locks = %d, want 3 (30x3 <= 100 < 30x4)", wins)
	}
	if m.Available() != 10 {
		t.Errorf("available = %v, want 10", m.Available())
	}
}
