package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/breaker"
	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/oracle"
	"github.com/alanyoungcy/predictmarket/internal/resolution"
)

// --- fakes ---

type memMarketStore struct {
	mu      sync.Mutex
	markets map[string]domain.Market
	failPut bool
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{markets: map[string]domain.Market{}}
}

// cloneMarket returns a copy that shares no maps or slices with m, matching
// the independence of rows decoded from the database.
func cloneMarket(m domain.Market) domain.Market {
	c := m
	c.Outcomes = append([]string(nil), m.Outcomes...)
	c.Votes = copyMap(m.Votes)
	c.Stakes = copyMap(m.Stakes)
	c.Claimed = copyMap(m.Claimed)
	c.DisputeStakes = copyMap(m.DisputeStakes)
	c.DisputeLog = append([]domain.DisputeFiling(nil), m.DisputeLog...)
	c.Extensions = append([]domain.ExtensionRecord(nil), m.Extensions...)
	return c
}

func copyMap[V any](src map[string]V) map[string]V {
	if src == nil {
		return nil
	}
	dst := make(map[string]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func (s *memMarketStore) Create(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (s *memMarketStore) Get(_ context.Context, id string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

func (s *memMarketStore) Update(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return domain.ErrStorage
	}
	if _, ok := s.markets[m.ID]; !ok {
		return domain.ErrNotFound
	}
	s.markets[m.ID] = cloneMarket(m)
	return nil
}

func (s *memMarketStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markets, id)
	return nil
}

func (s *memMarketStore) List(_ context.Context, status domain.MarketStatus, _ domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for _, m := range s.markets {
		if status == "" || m.Status == status {
			out = append(out, cloneMarket(m))
		}
	}
	return out, nil
}

func (s *memMarketStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.markets)), nil
}

type transfer struct {
	from, to string
	amount   int64
}

type recordLedger struct {
	mu        sync.Mutex
	transfers []transfer
	balances  map[string]int64
	fail      bool
}

func (l *recordLedger) Transfer(_ context.Context, from, to string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("ledger down")
	}
	l.transfers = append(l.transfers, transfer{from, to, amount})
	return nil
}

func (l *recordLedger) Credit(_ context.Context, account string, amount int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return errors.New("ledger down")
	}
	if l.balances == nil {
		l.balances = map[string]int64{}
	}
	l.balances[account] += amount
	return nil
}

func (l *recordLedger) Balance(_ context.Context, account string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return 0, errors.New("ledger down")
	}
	return l.balances[account], nil
}

type nullCache struct{}

func (nullCache) Set(context.Context, domain.Market) error { return nil }
func (nullCache) Get(context.Context, string) (domain.Market, error) {
	return domain.Market{}, domain.ErrNotFound
}
func (nullCache) Invalidate(context.Context, string) error { return nil }

type localLocks struct{ mu sync.Mutex }

func (l *localLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

type nullBus struct{}

func (nullBus) Publish(context.Context, string, []byte) error { return nil }
func (nullBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}
func (nullBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (nullBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0).UTC()
}

func (c *fakeClock) advance(d int64) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

type adminListAuth struct{ admins map[string]bool }

func (a adminListAuth) RequireAdmin(_ context.Context, identity string) error {
	if !a.admins[identity] {
		return domain.ErrUnauthorized
	}
	return nil
}

type stubFeed struct {
	price int64
	err   error
}

func (f stubFeed) GetPrice(context.Context, string) (int64, error) { return f.price, f.err }
func (f stubFeed) Provider() domain.OracleProvider                 { return domain.ProviderChainlink }
func (f stubFeed) ContractID() string                              { return "" }
func (f stubFeed) IsHealthy(context.Context) bool                  { return f.err == nil }

type memBreakerStore struct {
	mu     sync.Mutex
	state  *domain.BreakerRecord
	config *domain.BreakerConfig
	events []domain.BreakerEvent
}

func (s *memBreakerStore) GetState(context.Context) (domain.BreakerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return domain.BreakerRecord{}, domain.ErrBreakerNotInitialized
	}
	return *s.state, nil
}

func (s *memBreakerStore) PutState(_ context.Context, rec domain.BreakerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &rec
	return nil
}

func (s *memBreakerStore) GetConfig(context.Context) (domain.BreakerConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return domain.BreakerConfig{}, domain.ErrBreakerNotInitialized
	}
	return *s.config, nil
}

func (s *memBreakerStore) PutConfig(_ context.Context, cfg domain.BreakerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = &cfg
	return nil
}

func (s *memBreakerStore) AppendEvent(_ context.Context, ev domain.BreakerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	if len(s.events) > domain.BreakerEventLimit {
		s.events = s.events[len(s.events)-domain.BreakerEventLimit:]
	}
	return nil
}

func (s *memBreakerStore) ListEvents(_ context.Context, limit int) ([]domain.BreakerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.BreakerEvent, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

type stubArchiver struct {
	paths []string
	err   error
}

func (a *stubArchiver) ArchiveMarket(_ context.Context, m domain.Market) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	p := "markets/" + m.ID + ".json"
	a.paths = append(a.paths, p)
	return p, nil
}

// --- harness ---

type env struct {
	svc      *MarketService
	disputes *DisputeService
	accounts *AccountService
	store    *memMarketStore
	ledger   *recordLedger
	clock    *fakeClock
	feed     *stubFeed
	audit    *memAudit
	archiver *stubArchiver
	breaker  *breaker.Breaker
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &fakeClock{now: 1_700_000_000}
	store := newMemMarketStore()
	ledger := &recordLedger{}
	audit := &memAudit{}
	feed := &stubFeed{price: 120}
	archiver := &stubArchiver{}

	brk := breaker.New(&memBreakerStore{}, clock, logger)
	if err := brk.Init(context.Background(), "root", domain.BreakerConfig{
		MaxErrorRate:        90,
		MaxLatencyMS:        1000,
		MinLiquidity:        1,
		FailureThreshold:    100,
		RecoveryTimeoutSecs: 60,
		HalfOpenMaxRequests: 2,
		AutoRecoveryEnabled: true,
	}); err != nil {
		t.Fatalf("breaker init: %v", err)
	}

	engine := resolution.NewEngine(nil, logger)
	auth := adminListAuth{admins: map[string]bool{"root": true}}
	params := Params{
		MinVoteStake:          100,
		MinDisputeStake:       500,
		DisputeExtensionHours: 24,
		FeePercent:            2,
		MaxDurationDays:       365,
	}
	feeds := func(domain.OracleProvider) (oracle.PriceFeed, error) { return feed, nil }

	svc := NewMarketService(store, nullCache{}, &localLocks{}, nullBus{}, audit,
		ledger, clock, auth, feeds, engine, brk, archiver, params, logger)
	disputes := NewDisputeService(svc, audit, ledger, clock, auth, engine, brk, params, logger)
	accounts := NewAccountService(ledger, audit, auth, logger)

	return &env{
		svc: svc, disputes: disputes, accounts: accounts, store: store, ledger: ledger,
		clock: clock, feed: feed, audit: audit, archiver: archiver, breaker: brk,
	}
}

func (e *env) createMarket(t *testing.T) string {
	t.Helper()
	id, err := e.svc.CreateMarket(context.Background(), "root", "BTC above 100 by Friday?",
		[]string{"yes", "no"}, 7, domain.OracleConfig{
			Provider:   domain.ProviderChainlink,
			FeedID:     "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419",
			Threshold:  100,
			Comparison: domain.CompareGT,
		})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return id
}

func (e *env) pastEnd(t *testing.T, id string) {
	t.Helper()
	m, err := e.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get market: %v", err)
	}
	e.clock.advance(m.EndTime - e.clock.now + 1)
}

// --- tests ---

func TestCreateMarketValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	goodOracle := domain.OracleConfig{
		Provider: domain.ProviderChainlink, FeedID: "feed",
		Threshold: 100, Comparison: domain.CompareGT,
	}

	cases := []struct {
		name     string
		admin    string
		question string
		outcomes []string
		days     int64
		oracle   domain.OracleConfig
		want     error
	}{
		{"not admin", "mallory", "q?", []string{"yes", "no"}, 7, goodOracle, domain.ErrUnauthorized},
		{"empty question", "root", "   ", []string{"yes", "no"}, 7, goodOracle, domain.ErrInvalidQuestion},
		{"one outcome", "root", "q?", []string{"yes"}, 7, goodOracle, domain.ErrInvalidOutcomes},
		{"duplicate outcomes", "root", "q?", []string{"yes", "yes"}, 7, goodOracle, domain.ErrInvalidOutcomes},
		{"zero duration", "root", "q?", []string{"yes", "no"}, 0, goodOracle, domain.ErrInvalidDuration},
		{"bad threshold", "root", "q?", []string{"yes", "no"}, 7,
			domain.OracleConfig{Provider: domain.ProviderChainlink, FeedID: "f", Comparison: domain.CompareGT},
			domain.ErrInvalidThreshold},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.svc.CreateMarket(ctx, tc.admin, tc.question, tc.outcomes, tc.days, tc.oracle)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}

	id := e.createMarket(t)
	m, err := e.store.Get(ctx, id)
	if err != nil {
		t.Fatalf("stored market: %v", err)
	}
	if m.Status != domain.MarketStatusActive {
		t.Errorf("status = %q, want active", m.Status)
	}
	if got, want := m.EndTime, e.clock.now+7*86400; got != want {
		t.Errorf("end_time = %d, want %d", got, want)
	}
}

func TestVote(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	if err := e.svc.Vote(ctx, "alice", id, "yes", 1000); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if err := e.svc.Vote(ctx, "alice", id, "no", 1000); !errors.Is(err, domain.ErrAlreadyVoted) {
		t.Errorf("double vote: got %v, want ErrAlreadyVoted", err)
	}
	if err := e.svc.Vote(ctx, "bob", id, "maybe", 1000); !errors.Is(err, domain.ErrInvalidOutcome) {
		t.Errorf("foreign outcome: got %v, want ErrInvalidOutcome", err)
	}
	if err := e.svc.Vote(ctx, "bob", id, "no", 50); !errors.Is(err, domain.ErrInsufficientStake) {
		t.Errorf("tiny stake: got %v, want ErrInsufficientStake", err)
	}

	got := e.ledger.transfers
	if len(got) != 1 || got[0] != (transfer{"alice", domain.EscrowAccount(id), 1000}) {
		t.Errorf("transfers = %+v, want single alice escrow of 1000", got)
	}

	m, _ := e.store.Get(ctx, id)
	if m.TotalStaked != 1000 || m.Votes["alice"] != "yes" || m.Stakes["alice"] != 1000 {
		t.Errorf("market after vote = %+v", m)
	}

	// One second before the deadline voting is still open; at the deadline
	// itself it is not.
	e.clock.advance(m.EndTime - e.clock.now - 1)
	if err := e.svc.Vote(ctx, "carol", id, "no", 1000); err != nil {
		t.Errorf("vote at end_time-1: %v", err)
	}
	e.clock.advance(1)
	if err := e.svc.Vote(ctx, "bob", id, "no", 1000); !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("vote at end_time: got %v, want ErrMarketClosed", err)
	}
}

func TestVoteLeavesNoTraceOnStoreFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	e.store.failPut = true
	if err := e.svc.Vote(ctx, "alice", id, "yes", 1000); !errors.Is(err, domain.ErrStorage) {
		t.Fatalf("got %v, want ErrStorage", err)
	}

	// Escrow followed by the compensating refund.
	got := e.ledger.transfers
	if len(got) != 2 {
		t.Fatalf("transfers = %+v, want escrow then refund", got)
	}
	if got[1] != (transfer{domain.EscrowAccount(id), "alice", 1000}) {
		t.Errorf("refund = %+v", got[1])
	}

	e.store.failPut = false
	m, _ := e.store.Get(ctx, id)
	if m.TotalStaked != 0 || len(m.Votes) != 0 {
		t.Errorf("market mutated despite failed write: %+v", m)
	}
}

func TestFetchOracleResult(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	if _, err := e.svc.FetchOracleResult(ctx, id); !errors.Is(err, domain.ErrMarketClosed) {
		t.Fatalf("fetch before end: got %v, want ErrMarketClosed", err)
	}

	e.pastEnd(t, id)
	e.feed.price = 120 // above threshold 100, gt -> first label
	got, err := e.svc.FetchOracleResult(ctx, id)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != "yes" {
		t.Errorf("outcome = %q, want yes", got)
	}

	if _, err := e.svc.FetchOracleResult(ctx, id); !errors.Is(err, domain.ErrMarketAlreadyResolved) {
		t.Errorf("second fetch: got %v, want ErrMarketAlreadyResolved", err)
	}

	m, _ := e.store.Get(ctx, id)
	if m.OracleResult == nil || *m.OracleResult != "yes" {
		t.Errorf("stored oracle result = %v", m.OracleResult)
	}
	if m.Status != domain.MarketStatusEnded {
		t.Errorf("status = %q, want ended", m.Status)
	}
}

func TestFetchOracleResultFeedFailure(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.pastEnd(t, id)

	e.feed.err = fmt.Errorf("%w: rpc timeout", domain.ErrOracleUnavailable)
	if _, err := e.svc.FetchOracleResult(ctx, id); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("got %v, want ErrOracleUnavailable", err)
	}

	m, _ := e.store.Get(ctx, id)
	if m.OracleResult != nil {
		t.Errorf("oracle result set despite feed failure")
	}
}

func TestResolveAndClaim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	// Two voters agree with the eventual oracle result, one dissents.
	if err := e.svc.Vote(ctx, "alice", id, "yes", 6_000_000); err != nil {
		t.Fatal(err)
	}
	if err := e.svc.Vote(ctx, "bob", id, "yes", 2_000_000); err != nil {
		t.Fatal(err)
	}
	if err := e.svc.Vote(ctx, "carol", id, "no", 2_000_000); err != nil {
		t.Fatal(err)
	}

	if _, err := e.svc.ResolveMarket(ctx, id); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("resolve without oracle: got %v, want ErrOracleUnavailable", err)
	}

	e.pastEnd(t, id)
	if _, err := e.svc.FetchOracleResult(ctx, id); err != nil {
		t.Fatal(err)
	}
	outcome, err := e.svc.ResolveMarket(ctx, id)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if outcome != "yes" {
		t.Errorf("outcome = %q, want yes (agreement)", outcome)
	}
	if _, err := e.svc.ResolveMarket(ctx, id); !errors.Is(err, domain.ErrMarketAlreadyResolved) {
		t.Errorf("second resolve: got %v, want ErrMarketAlreadyResolved", err)
	}

	// pool 10_000_000, winning pool 8_000_000, fee 2%.
	// alice: ((6_000_000*98)/100)*10_000_000/8_000_000 = 7_350_000
	got, err := e.svc.ClaimWinnings(ctx, "alice", id)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if want := int64(7_350_000); got != want {
		t.Errorf("alice payout = %d, want %d", got, want)
	}

	if _, err := e.svc.ClaimWinnings(ctx, "alice", id); !errors.Is(err, domain.ErrAlreadyClaimed) {
		t.Errorf("double claim: got %v, want ErrAlreadyClaimed", err)
	}
	if _, err := e.svc.ClaimWinnings(ctx, "carol", id); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Errorf("losing claim: got %v, want ErrNothingToClaim", err)
	}
	if _, err := e.svc.ClaimWinnings(ctx, "dave", id); !errors.Is(err, domain.ErrNothingToClaim) {
		t.Errorf("non-voter claim: got %v, want ErrNothingToClaim", err)
	}
}

func TestCollectFees(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	if err := e.svc.Vote(ctx, "alice", id, "yes", 1_000_000); err != nil {
		t.Fatal(err)
	}

	if _, err := e.svc.CollectFees(ctx, "root", id); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("collect before resolve: got %v, want ErrMarketNotResolved", err)
	}

	e.pastEnd(t, id)
	if _, err := e.svc.FetchOracleResult(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.ResolveMarket(ctx, id); err != nil {
		t.Fatal(err)
	}

	fee, err := e.svc.CollectFees(ctx, "root", id)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if want := int64(20_000); fee != want {
		t.Errorf("fee = %d, want %d", fee, want)
	}
	if _, err := e.svc.CollectFees(ctx, "root", id); !errors.Is(err, domain.ErrFeeAlreadyCollected) {
		t.Errorf("second collect: got %v, want ErrFeeAlreadyCollected", err)
	}
	if _, err := e.svc.CollectFees(ctx, "mallory", id); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("non-admin collect: got %v, want ErrUnauthorized", err)
	}
}

func TestCancelMarket(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	staked := e.createMarket(t)
	if err := e.svc.Vote(ctx, "alice", staked, "yes", 1000); err != nil {
		t.Fatal(err)
	}
	empty := e.createMarket(t)

	if err := e.svc.CancelMarket(ctx, empty); !errors.Is(err, domain.ErrMarketNotCancellable) {
		t.Fatalf("cancel before end: got %v, want ErrMarketNotCancellable", err)
	}

	e.pastEnd(t, empty)
	if err := e.svc.CancelMarket(ctx, staked); !errors.Is(err, domain.ErrMarketNotCancellable) {
		t.Errorf("cancel with stake: got %v, want ErrMarketNotCancellable", err)
	}
	if err := e.svc.CancelMarket(ctx, empty); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	m, _ := e.store.Get(ctx, empty)
	if m.Status != domain.MarketStatusCancelled {
		t.Errorf("status = %q, want cancelled", m.Status)
	}
}

func TestCloseMarketArchives(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	if err := e.svc.CloseMarket(ctx, "root", id); !errors.Is(err, domain.ErrMarketNotResolved) {
		t.Fatalf("close active market: got %v, want ErrMarketNotResolved", err)
	}

	if err := e.svc.Vote(ctx, "alice", id, "yes", 1000); err != nil {
		t.Fatal(err)
	}
	e.pastEnd(t, id)
	if _, err := e.svc.FetchOracleResult(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.ResolveMarket(ctx, id); err != nil {
		t.Fatal(err)
	}

	if err := e.svc.CloseMarket(ctx, "root", id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(e.archiver.paths) != 1 || e.archiver.paths[0] != "markets/"+id+".json" {
		t.Errorf("archive paths = %v", e.archiver.paths)
	}
	m, _ := e.store.Get(ctx, id)
	if m.Status != domain.MarketStatusClosed {
		t.Errorf("status = %q, want closed", m.Status)
	}
}

func TestCloseMarketArchiveFailureKeepsRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	e.pastEnd(t, id)
	if err := e.svc.CancelMarket(ctx, id); err != nil {
		t.Fatal(err)
	}

	e.archiver.err = errors.New("bucket gone")
	if err := e.svc.CloseMarket(ctx, "root", id); err == nil {
		t.Fatal("close succeeded despite archive failure")
	}
	m, _ := e.store.Get(ctx, id)
	if m.Status != domain.MarketStatusCancelled {
		t.Errorf("status = %q, want cancelled (unchanged)", m.Status)
	}
}

func TestFileDispute(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	if err := e.svc.Vote(ctx, "alice", id, "yes", 10_000); err != nil {
		t.Fatal(err)
	}

	if err := e.disputes.FileDispute(ctx, "bob", id, 1000, ""); !errors.Is(err, domain.ErrMarketStillActive) {
		t.Fatalf("dispute before end: got %v, want ErrMarketStillActive", err)
	}

	e.pastEnd(t, id)
	if err := e.disputes.FileDispute(ctx, "bob", id, 1000, ""); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("dispute before oracle: got %v, want ErrOracleUnavailable", err)
	}

	if _, err := e.svc.FetchOracleResult(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := e.disputes.FileDispute(ctx, "bob", id, 100, "fishy"); !errors.Is(err, domain.ErrInsufficientStake) {
		t.Fatalf("tiny dispute stake: got %v, want ErrInsufficientStake", err)
	}

	before, _ := e.store.Get(ctx, id)
	if err := e.disputes.FileDispute(ctx, "bob", id, 1000, "fishy"); err != nil {
		t.Fatalf("dispute: %v", err)
	}
	after, _ := e.store.Get(ctx, id)

	if after.Status != domain.MarketStatusDisputed {
		t.Errorf("status = %q, want disputed", after.Status)
	}
	if after.DisputeStakes["bob"] != 1000 {
		t.Errorf("dispute stake = %d, want 1000", after.DisputeStakes["bob"])
	}
	if after.EndTime <= before.EndTime {
		t.Errorf("end_time not extended: %d -> %d", before.EndTime, after.EndTime)
	}
	if want := e.clock.now + 24*3600; after.EndTime != want {
		t.Errorf("end_time = %d, want %d", after.EndTime, want)
	}
	if after.ExtensionCount != 1 || len(after.Extensions) != 1 {
		t.Errorf("extension history = %d/%d, want 1/1", after.ExtensionCount, len(after.Extensions))
	}
	if len(after.DisputeLog) != 1 {
		t.Fatalf("dispute log entries = %d, want 1", len(after.DisputeLog))
	}
	if f := after.DisputeLog[0]; f.Voter != "bob" || f.Stake != 1000 || f.Reason != "fishy" || f.Timestamp != e.clock.now {
		t.Errorf("dispute filing = %+v", f)
	}
	disputes, err := e.disputes.Disputes(ctx, id)
	if err != nil {
		t.Fatalf("list disputes: %v", err)
	}
	if len(disputes) != 1 {
		t.Fatalf("disputes = %d, want 1", len(disputes))
	}
	if d := disputes[0]; d.Reason != "fishy" || d.Timestamp != e.clock.now {
		t.Errorf("dispute projection = %+v, want reason and filing time carried", d)
	}

	// A second filing by the same voter is additive and, while still inside
	// the extended window, does not move the deadline again.
	if err := e.disputes.FileDispute(ctx, "bob", id, 2000, ""); err != nil {
		t.Fatalf("repeat dispute: %v", err)
	}
	m, _ := e.store.Get(ctx, id)
	if m.DisputeStakes["bob"] != 3000 {
		t.Errorf("accumulated stake = %d, want 3000", m.DisputeStakes["bob"])
	}
	if len(m.DisputeLog) != 2 {
		t.Errorf("dispute log entries = %d, want one per filing", len(m.DisputeLog))
	}
	if m.EndTime != after.EndTime {
		t.Errorf("end_time moved on repeat filing inside window: %d -> %d", after.EndTime, m.EndTime)
	}

	// The window closes at exactly the extended deadline.
	e.clock.advance(m.EndTime - e.clock.now)
	if err := e.disputes.FileDispute(ctx, "carol", id, 1000, ""); !errors.Is(err, domain.ErrMarketClosed) {
		t.Errorf("dispute at extended deadline: got %v, want ErrMarketClosed", err)
	}
}

func TestResolveDisputeOverride(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	// Strong community consensus for "no"; oracle will say "yes".
	voters := []string{"v1", "v2", "v3", "v4", "v5", "v6"}
	for _, v := range voters {
		if err := e.svc.Vote(ctx, v, id, "no", 1_000_000); err != nil {
			t.Fatal(err)
		}
	}
	e.pastEnd(t, id)
	if _, err := e.svc.FetchOracleResult(ctx, id); err != nil {
		t.Fatal(err)
	}

	if _, err := e.disputes.ResolveDispute(ctx, "root", id); !errors.Is(err, domain.ErrMarketNotDisputed) {
		t.Fatalf("resolve without disputes: got %v, want ErrMarketNotDisputed", err)
	}

	// Dispute impact 3_000_000/6_000_000 = 0.5 > 0.30, confidence 100 > 70:
	// deterministic community override.
	if err := e.disputes.FileDispute(ctx, "bob", id, 3_000_000, "oracle is wrong"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.disputes.ResolveDispute(ctx, "mallory", id); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin resolve: got %v, want ErrUnauthorized", err)
	}

	outcome, err := e.disputes.ResolveDispute(ctx, "root", id)
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if outcome != "no" {
		t.Errorf("outcome = %q, want community override to no", outcome)
	}
}

func TestDisputeAnalytics(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)
	for _, v := range []string{"a", "b", "c", "d"} {
		if err := e.svc.Vote(ctx, v, id, "yes", 1000); err != nil {
			t.Fatal(err)
		}
	}
	e.pastEnd(t, id)
	if _, err := e.svc.FetchOracleResult(ctx, id); err != nil {
		t.Fatal(err)
	}
	if err := e.disputes.FileDispute(ctx, "a", id, 700, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.disputes.FileDispute(ctx, "b", id, 500, ""); err != nil {
		t.Fatal(err)
	}

	a, err := e.disputes.Analytics(ctx, id)
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	if a.TotalStake != 1200 || a.Disputers != 2 {
		t.Errorf("analytics = %+v", a)
	}
	if a.ParticipationRate != 0.5 {
		t.Errorf("participation = %v, want 0.5", a.ParticipationRate)
	}
}

func TestAccountDeposit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if err := e.accounts.Deposit(ctx, "mallory", "alice", 1000); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-admin deposit: got %v, want ErrUnauthorized", err)
	}
	if err := e.accounts.Deposit(ctx, "root", "alice", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("zero deposit: got %v, want ErrInvalidAmount", err)
	}
	if err := e.accounts.Deposit(ctx, "root", "", 1000); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("empty account: got %v, want ErrInvalidAmount", err)
	}

	if err := e.accounts.Deposit(ctx, "root", "alice", 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := e.accounts.Deposit(ctx, "root", "alice", 500); err != nil {
		t.Fatalf("second deposit: %v", err)
	}

	balance, err := e.accounts.Balance(ctx, "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 1500 {
		t.Errorf("balance = %d, want 1500", balance)
	}

	// Unknown accounts read zero rather than erroring.
	balance, err = e.accounts.Balance(ctx, "nobody")
	if err != nil || balance != 0 {
		t.Errorf("unknown account balance = %d, %v; want 0, nil", balance, err)
	}
}

func TestBreakerBlocksEntryPoints(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	if err := e.breaker.EmergencyPause(ctx, "root", "incident"); err != nil {
		t.Fatal(err)
	}
	if err := e.svc.Vote(ctx, "alice", id, "yes", 1000); !errors.Is(err, domain.ErrBreakerOpen) {
		t.Errorf("vote under open breaker: got %v, want ErrBreakerOpen", err)
	}
	if _, err := e.svc.CreateMarket(ctx, "root", "q?", []string{"yes", "no"}, 7, domain.OracleConfig{
		Provider: domain.ProviderChainlink, FeedID: "f", Threshold: 1, Comparison: domain.CompareGT,
	}); !errors.Is(err, domain.ErrBreakerOpen) {
		t.Errorf("create under open breaker: got %v, want ErrBreakerOpen", err)
	}

	if err := e.breaker.Recover(ctx, "root", "resolved"); err != nil {
		t.Fatal(err)
	}
	if err := e.svc.Vote(ctx, "alice", id, "yes", 1000); err != nil {
		t.Errorf("vote after recovery: %v", err)
	}
}

func TestGetMarketBackfillsCache(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	id := e.createMarket(t)

	if _, err := e.svc.GetMarket(ctx, id); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := e.svc.GetMarket(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing market: got %v, want ErrNotFound", err)
	}
}
