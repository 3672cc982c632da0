package economy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"orbvale/internal/room"
	"orbvale/internal/store"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.events...)
}

type fakeLedger struct {
	log     *eventLog
	mu      sync.Mutex
	balance map[string]int64
	fail    error
	wrote   chan struct{}
}

func newFakeLedger(log *eventLog) *fakeLedger {
	return &fakeLedger{log: log, balance: map[string]int64{}, wrote: make(chan struct{}, 16)}
}

func (f *fakeLedger) apply(playerID string, delta int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	nb := f.balance[playerID] + delta
	if nb < 0 {
		return 0, store.ErrInsufficientFunds
	}
	f.balance[playerID] = nb
	f.log.add("durable")
	select {
	case f.wrote <- struct{}{}:
	default:
	}
	return nb, nil
}

func (f *fakeLedger) Credit(_ context.Context, id string, amount int64, _, _, _ string) (int64, error) {
	return f.apply(id, amount)
}

func (f *fakeLedger) Debit(_ context.Context, id string, amount int64, _, _, _ string) (int64, error) {
	return f.apply(id, -amount)
}

type fakeBroadcaster struct {
	log *eventLog
	mu  sync.Mutex

	lastBalance int64
	lastReason  string
	evictions   []string
}

func (f *fakeBroadcaster) BalanceUpdated(_, _ string, balance int64, reason string) {
	f.mu.Lock()
	f.lastBalance, f.lastReason = balance, reason
	f.mu.Unlock()
	f.log.add("broadcast")
}

func (f *fakeBroadcaster) EvictBelowFloor(_, playerID string) {
	f.mu.Lock()
	f.evictions = append(f.evictions, playerID)
	f.mu.Unlock()
	f.log.add("evict")
}

func testWorld(t *testing.T, balance int64, floor int64) (*Authority, *room.Directory, *fakeLedger, *fakeBroadcaster) {
	t.Helper()
	log := &eventLog{}
	ledger := newFakeLedger(log)
	bc := &fakeBroadcaster{log: log}
	dir := room.NewDirectory([]string{"plaza"}, nil, nil)
	if _, err := dir.AddMember("plaza", &room.Player{ID: "p1", Name: "mira", X: 1, Balance: balance}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	ledger.balance["p1"] = balance
	return NewAuthority(dir, ledger, bc, floor), dir, ledger, bc
}

func TestApplyDurableWriteBeforeBroadcast(t *testing.T) {
	a, dir, ledger, bc := testWorld(t, 50000, 0)

	nb, err := a.Apply(context.Background(), "plaza", "p1", -10000, "table_bet", "table", "t1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if nb != 40000 {
		t.Fatalf("new balance = %d, want 40000", nb)
	}
	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 40000 {
		t.Fatalf("cached balance = %d, want 40000", bal)
	}
	if ledger.balance["p1"] != 40000 {
		t.Fatalf("durable balance = %d, want 40000", ledger.balance["p1"])
	}
	events := ledger.log.list()
	if len(events) != 2 || events[0] != "durable" || events[1] != "broadcast" {
		t.Fatalf("event order = %v, want durable before broadcast", events)
	}
	if bc.lastReason != "table_bet" {
		t.Fatalf("reason = %q", bc.lastReason)
	}
}

func TestApplyRejectsOverspend(t *testing.T) {
	a, dir, ledger, _ := testWorld(t, 5000, 0)

	if _, err := a.Apply(context.Background(), "plaza", "p1", -10000, "table_bet", "table", "t1"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want insufficient funds", err)
	}
	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 5000 {
		t.Fatalf("cached balance mutated on rejection: %d", bal)
	}
	if len(ledger.log.list()) != 0 {
		t.Fatalf("rejected spend must not touch the durable ledger: %v", ledger.log.list())
	}
}

func TestApplyDegradesToCacheWhenStoreUnreachable(t *testing.T) {
	a, dir, ledger, bc := testWorld(t, 50000, 0)
	ledger.fail = errors.New("pg down")

	// the store being down must not block gameplay
	nb, err := a.Apply(context.Background(), "plaza", "p1", -10000, "table_bet", "table", "t1")
	if err != nil {
		t.Fatalf("apply during outage: %v", err)
	}
	if nb != 40000 {
		t.Fatalf("new balance = %d, want 40000 from cache", nb)
	}
	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 40000 {
		t.Fatalf("cache = %d, want 40000", bal)
	}
	if bc.lastBalance != 40000 {
		t.Fatalf("broadcast balance = %d, want 40000", bc.lastBalance)
	}
	if ledger.balance["p1"] != 50000 {
		t.Fatalf("durable balance mutated during outage: %d", ledger.balance["p1"])
	}

	// next mutation after recovery replays the deferred delta
	ledger.mu.Lock()
	ledger.fail = nil
	ledger.mu.Unlock()
	if _, err := a.Apply(context.Background(), "plaza", "p1", -1000, "spin_bet", "machine", "m1"); err != nil {
		t.Fatalf("apply after recovery: %v", err)
	}
	if ledger.balance["p1"] != 39000 {
		t.Fatalf("durable balance = %d, want 39000 after replay", ledger.balance["p1"])
	}
	if bal, _ := rm.Balance("p1"); bal != 39000 {
		t.Fatalf("cache = %d, want 39000", bal)
	}
}

func TestApplyRollsBackCacheWhenDurableRowIsPoorer(t *testing.T) {
	a, dir, ledger, _ := testWorld(t, 50000, 0)
	// the cache is stale rich; the row of record only holds 5000
	ledger.balance["p1"] = 5000

	if _, err := a.Apply(context.Background(), "plaza", "p1", -10000, "table_bet", "table", "t1"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want insufficient funds from the durable row", err)
	}
	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 50000 {
		t.Fatalf("cache not rolled back: %d", bal)
	}
	if ledger.balance["p1"] != 5000 {
		t.Fatalf("durable balance mutated on refusal: %d", ledger.balance["p1"])
	}
}

func TestApplyStampsDurableValueOnDrift(t *testing.T) {
	a, dir, ledger, _ := testWorld(t, 50000, 0)
	// another session already credited the durable row
	ledger.balance["p1"] = 60000

	nb, err := a.Apply(context.Background(), "plaza", "p1", 1000, "shrine_reward", "object", "o1")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if nb != 61000 {
		t.Fatalf("new balance = %d, want durable 61000", nb)
	}
	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 61000 {
		t.Fatalf("cache = %d, want re-stamped durable value", bal)
	}
}

func TestFloorEvictionAfterBroadcast(t *testing.T) {
	a, _, ledger, bc := testWorld(t, 1500, 1000)

	if _, err := a.Apply(context.Background(), "plaza", "p1", -1000, "spin_bet", "machine", "m1"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	events := ledger.log.list()
	want := []string{"durable", "broadcast", "evict"}
	if len(events) != 3 {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("events = %v, want %v", events, want)
		}
	}
	if len(bc.evictions) != 1 || bc.evictions[0] != "p1" {
		t.Fatalf("evictions = %v", bc.evictions)
	}
}

func TestNoEvictionAtOrAboveFloor(t *testing.T) {
	a, _, _, bc := testWorld(t, 2000, 1000)
	if _, err := a.Apply(context.Background(), "plaza", "p1", -1000, "spin_bet", "machine", "m1"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(bc.evictions) != 0 {
		t.Fatalf("balance equal to floor must not evict: %v", bc.evictions)
	}
}

func TestApplyIdleBroadcastsBeforeDurable(t *testing.T) {
	a, dir, ledger, bc := testWorld(t, 50000, 0)

	a.ApplyIdle("plaza", "p1", 50, "idle_reward")

	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 50050 {
		t.Fatalf("cached balance = %d, want immediate 50050", bal)
	}
	if bc.lastReason != "idle_reward" || bc.lastBalance != 50050 {
		t.Fatalf("broadcast = %d %q", bc.lastBalance, bc.lastReason)
	}
	select {
	case <-ledger.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("background durable write never happened")
	}
	if ledger.balance["p1"] != 50050 {
		t.Fatalf("durable balance = %d, want 50050", ledger.balance["p1"])
	}
}

func TestConfirmIdleRestampsOnlyMatchingEcho(t *testing.T) {
	a, dir, _, _ := testWorld(t, 50000, 0)
	a.ApplyIdle("plaza", "p1", 50, "idle_reward")
	rm, _ := dir.Get("plaza")

	// an inflated echo must not touch the cache
	a.ConfirmIdle("plaza", "p1", 1_000_000)
	if bal, _ := rm.Balance("p1"); bal != 50050 {
		t.Fatalf("cache = %d after inflated echo, want 50050", bal)
	}

	a.ConfirmIdle("plaza", "p1", 50050)
	if bal, _ := rm.Balance("p1"); bal != 50050 {
		t.Fatalf("cache = %d, want re-stamped 50050", bal)
	}
	// a duplicate echo is a no-op, not another credit
	a.ConfirmIdle("plaza", "p1", 50050)
	if bal, _ := rm.Balance("p1"); bal != 50050 {
		t.Fatalf("cache = %d after duplicate echo, want 50050", bal)
	}
}

func TestConfirmIdleIgnoredWithoutPush(t *testing.T) {
	a, dir, _, _ := testWorld(t, 1000, 0)

	// no idle reward was ever pushed, so any echo is fabricated
	a.ConfirmIdle("plaza", "p1", 1_000_000_000)
	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 1000 {
		t.Fatalf("cache = %d, want untouched 1000", bal)
	}
}

func TestFabricatedIdleEchoCannotFundSpending(t *testing.T) {
	a, dir, ledger, _ := testWorld(t, 1000, 0)

	a.ConfirmIdle("plaza", "p1", 1_000_000_000)
	ledger.fail = errors.New("pg down")
	if _, err := a.Apply(context.Background(), "plaza", "p1", -500_000, "spin_bet", "machine", "m1"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("spend against fabricated echo = %v, want insufficient funds", err)
	}
	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 1000 {
		t.Fatalf("cache = %d, want untouched 1000", bal)
	}
}

func TestConfirmIdleStaleEchoAfterSpendIgnored(t *testing.T) {
	a, dir, ledger, _ := testWorld(t, 1000, 0)
	a.ApplyIdle("plaza", "p1", 50, "idle_reward")
	select {
	case <-ledger.wrote:
	case <-time.After(2 * time.Second):
		t.Fatal("idle durable write never happened")
	}

	// the spend supersedes the pushed value; a late ack must not revert it
	if _, err := a.Apply(context.Background(), "plaza", "p1", -100, "spin_bet", "machine", "m1"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	a.ConfirmIdle("plaza", "p1", 1050)
	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 950 {
		t.Fatalf("cache = %d, want 950 after stale echo", bal)
	}
}

func TestGuardRejectsOverlapAndCoolsDown(t *testing.T) {
	g := NewGuard(750 * time.Millisecond)
	var pending []func()
	g.afterFunc = func(_ time.Duration, fn func()) *time.Timer {
		pending = append(pending, fn)
		return nil
	}

	if err := g.Acquire("p1"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := g.Acquire("p1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("overlapping acquire = %v, want busy", err)
	}
	g.Release("p1")
	// still held during the cooldown window
	if err := g.Acquire("p1"); !errors.Is(err, ErrBusy) {
		t.Fatalf("acquire during cooldown = %v, want busy", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending cooldowns = %d, want 1", len(pending))
	}
	pending[0]()
	if err := g.Acquire("p1"); err != nil {
		t.Fatalf("acquire after cooldown: %v", err)
	}
	if err := g.Acquire("p2"); err != nil {
		t.Fatalf("other player must be independent: %v", err)
	}
}

func TestValidateBet(t *testing.T) {
	if err := ValidateBet(100, 100, 100000); err != nil {
		t.Fatalf("min bet: %v", err)
	}
	if err := ValidateBet(99, 100, 100000); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("below min = %v", err)
	}
	if err := ValidateBet(100001, 100, 100000); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("above max = %v", err)
	}
}

func TestSweeperGrantsToEveryResident(t *testing.T) {
	a, dir, _, bc := testWorld(t, 1000, 0)
	if _, err := dir.AddMember("plaza", &room.Player{ID: "p2", Name: "oren", X: 2, Balance: 500}); err != nil {
		t.Fatalf("add member: %v", err)
	}
	s := NewSweeper(dir, a, 50, time.Minute)
	s.sweep()

	rm, _ := dir.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 1050 {
		t.Fatalf("p1 balance = %d, want 1050", bal)
	}
	if bal, _ := rm.Balance("p2"); bal != 550 {
		t.Fatalf("p2 balance = %d, want 550", bal)
	}
	if bc.lastReason != "idle_reward" {
		t.Fatalf("reason = %q", bc.lastReason)
	}
}
