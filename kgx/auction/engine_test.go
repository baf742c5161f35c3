package auction

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/soundofhorizon/kgx-go/kgx/database/models"
)

type memStore struct {
	mu       sync.Mutex
	nextID   int64
	auctions map[int64]*models.Auction
	getErr   map[int64]error
}

func newMemStore() *memStore {
	return &memStore{auctions: make(map[int64]*models.Auction), getErr: make(map[int64]error)}
}

func (s *memStore) CreateAuction(_ context.Context, a *models.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	a.ID = s.nextID
	stored := *a
	s.auctions[a.ID] = &stored
	return nil
}

func (s *memStore) GetAuction(_ context.Context, id int64) (*models.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[id]; err != nil {
		return nil, err
	}
	a, ok := s.auctions[id]
	if !ok {
		return nil, ErrNotFound
	}
	snapshot := *a
	snapshot.Bids = append([]*models.AuctionBid(nil), a.Bids...)
	return &snapshot, nil
}

func (s *memStore) AppendBid(_ context.Context, auctionID int64, bidderID string, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[auctionID]
	if !ok {
		return ErrNotFound
	}
	if len(a.Bids) == 0 {
		if price < a.StartPrice {
			return ErrBidConflict
		}
	} else if price <= a.Bids[len(a.Bids)-1].Price {
		return ErrBidConflict
	}
	a.Bids = append(a.Bids, &models.AuctionBid{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Price:     price,
		CreatedAt: time.Now(),
	})
	return nil
}

type memRegistry struct {
	mu       sync.Mutex
	bindings map[string]int64
}

func newMemRegistry() *memRegistry {
	return &memRegistry{bindings: make(map[string]int64)}
}

func (r *memRegistry) Bind(_ context.Context, channelID string, auctionID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, bound := r.bindings[channelID]; bound {
		return ErrAlreadyBound
	}
	r.bindings[channelID] = auctionID
	return nil
}

func (r *memRegistry) Lookup(_ context.Context, channelID string) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, bound := r.bindings[channelID]
	return id, bound, nil
}

func (r *memRegistry) Release(_ context.Context, channelID string, auctionID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, bound := r.bindings[channelID]; !bound || id != auctionID {
		return false, nil
	}
	delete(r.bindings, channelID)
	return true, nil
}

func (r *memRegistry) ListActive(_ context.Context) ([]ActiveBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := make([]ActiveBinding, 0, len(r.bindings))
	for channelID, auctionID := range r.bindings {
		active = append(active, ActiveBinding{ChannelID: channelID, AuctionID: auctionID})
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ChannelID < active[j].ChannelID })
	return active, nil
}

type finalization struct {
	channelID string
	winner    *Winner
}

type recordNotifier struct {
	mu        sync.Mutex
	bids      []Winner
	finalized []finalization
}

func (n *recordNotifier) NotifyBid(_ string, bidderID string, price int64, _ bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bids = append(n.bids, Winner{BidderID: bidderID, Price: price})
}

func (n *recordNotifier) NotifyFinalized(channelID string, winner *Winner) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finalized = append(n.finalized, finalization{channelID: channelID, winner: winner})
}

func (n *recordNotifier) finalizations() []finalization {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]finalization(nil), n.finalized...)
}

func newTestEngine() (*Engine, *memStore, *memRegistry, *recordNotifier) {
	store := newMemStore()
	registry := newMemRegistry()
	notifier := &recordNotifier{}
	return NewEngine(store, registry, notifier), store, registry, notifier
}

func mustCreate(t *testing.T, e *Engine, params CreateParams) *models.Auction {
	t.Helper()
	a, err := e.CreateAuction(context.Background(), params)
	if err != nil {
		t.Fatalf("CreateAuction() error = %v", err)
	}
	return a
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateAuction(t *testing.T) {
	tests := []struct {
		name    string
		params  CreateParams
		wantErr error
	}{
		{
			name: "valid",
			params: CreateParams{
				ChannelID: "c1", OwnerID: "o", Item: "diamond block",
				StartPrice: 100, Duration: time.Hour,
			},
		},
		{
			name: "start price zero",
			params: CreateParams{
				ChannelID: "c1", OwnerID: "o", Item: "dirt",
				StartPrice: 0, Duration: time.Hour,
			},
			wantErr: ErrStartPriceTooLow,
		},
		{
			name: "instant-win below start",
			params: CreateParams{
				ChannelID: "c1", OwnerID: "o", Item: "dirt",
				StartPrice: 100, BinPrice: int64Ptr(50), Duration: time.Hour,
			},
			wantErr: ErrBinBelowStart,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _, _, _ := newTestEngine()
			_, err := e.CreateAuction(context.Background(), tt.params)
			if err != tt.wantErr {
				t.Errorf("CreateAuction() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateAuction_ChannelAlreadyBound(t *testing.T) {
	e, _, _, _ := newTestEngine()
	mustCreate(t, e, CreateParams{
		ChannelID: "c1", OwnerID: "o", Item: "first",
		StartPrice: 100, Duration: time.Hour,
	})

	_, err := e.CreateAuction(context.Background(), CreateParams{
		ChannelID: "c1", OwnerID: "o2", Item: "second",
		StartPrice: 100, Duration: time.Hour,
	})
	if err != ErrAlreadyBound {
		t.Errorf("CreateAuction() error = %v, want %v", err, ErrAlreadyBound)
	}

	// A different channel is unaffected.
	mustCreate(t, e, CreateParams{
		ChannelID: "c2", OwnerID: "o2", Item: "second",
		StartPrice: 100, Duration: time.Hour,
	})
}

func TestSubmitBid_ValidationSequence(t *testing.T) {
	e, _, _, _ := newTestEngine()
	mustCreate(t, e, CreateParams{
		ChannelID: "c1", OwnerID: "owner", Item: "item",
		StartPrice: 100, Duration: time.Hour,
	})

	steps := []struct {
		bidder string
		price  int64
		want   BidOutcome
	}{
		{"u1", 50, BidOutcome{Reason: RejectBelowStartPrice}},
		{"u1", 99, BidOutcome{Reason: RejectBelowStartPrice}},
		{"u1", 100, BidOutcome{Accepted: true}},
		{"u2", 100, BidOutcome{Reason: RejectNotAboveLast}},
		{"u2", 50, BidOutcome{Reason: RejectNotAboveLast}},
		{"u1", 150, BidOutcome{Reason: RejectSameBidder}},
		{"u2", 150, BidOutcome{Accepted: true}},
	}

	for i, step := range steps {
		got, err := e.SubmitBid(context.Background(), "c1", step.bidder, step.price)
		if err != nil {
			t.Fatalf("step %d: SubmitBid() error = %v", i, err)
		}
		if got != step.want {
			t.Errorf("step %d: SubmitBid(%s, %d) = %+v, want %+v", i, step.bidder, step.price, got, step.want)
		}
	}
}

func TestSubmitBid_ByOwner(t *testing.T) {
	e, _, _, _ := newTestEngine()
	mustCreate(t, e, CreateParams{
		ChannelID: "c1", OwnerID: "owner", Item: "item",
		StartPrice: 100, BinPrice: int64Ptr(500), Duration: time.Hour,
	})

	// Rejected regardless of price, even at the instant-win threshold.
	for _, price := range []int64{100, 200, 500} {
		got, err := e.SubmitBid(context.Background(), "c1", "owner", price)
		if err != nil {
			t.Fatalf("SubmitBid() error = %v", err)
		}
		if got.Accepted || got.Reason != RejectByOwner {
			t.Errorf("SubmitBid(owner, %d) = %+v, want rejection ByOwner", price, got)
		}
	}
}

func TestSubmitBid_NoActiveAuction(t *testing.T) {
	e, _, _, _ := newTestEngine()
	got, err := e.SubmitBid(context.Background(), "c1", "u1", 100)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if got.Reason != RejectNoActiveAuction {
		t.Errorf("SubmitBid() = %+v, want rejection NoActiveAuction", got)
	}
}

func TestSubmitBid_InstantWin(t *testing.T) {
	e, _, registry, notifier := newTestEngine()
	a := mustCreate(t, e, CreateParams{
		ChannelID: "c1", OwnerID: "owner", Item: "item",
		StartPrice: 100, BinPrice: int64Ptr(500), Duration: time.Hour,
	})

	got, err := e.SubmitBid(context.Background(), "c1", "u1", 500)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if !got.Accepted || !got.EndsAuction {
		t.Fatalf("SubmitBid(500) = %+v, want accepted instant-win", got)
	}

	if _, bound, _ := registry.Lookup(context.Background(), "c1"); bound {
		t.Error("channel still bound after instant-win")
	}

	finals := notifier.finalizations()
	if len(finals) != 1 {
		t.Fatalf("got %d finalizations, want 1", len(finals))
	}
	if finals[0].winner == nil || finals[0].winner.BidderID != "u1" || finals[0].winner.Price != 500 {
		t.Errorf("finalization winner = %+v, want u1 at 500", finals[0].winner)
	}

	// The auction is closed; any further bid is rejected.
	got, err = e.SubmitBid(context.Background(), "c1", "u2", 600)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if got.Reason != RejectNoActiveAuction {
		t.Errorf("SubmitBid after instant-win = %+v, want rejection NoActiveAuction", got)
	}
	_ = a
}

func TestSubmitBid_InstantWinBySameBidder(t *testing.T) {
	e, _, _, _ := newTestEngine()
	mustCreate(t, e, CreateParams{
		ChannelID: "c1", OwnerID: "owner", Item: "item",
		StartPrice: 100, BinPrice: int64Ptr(500), Duration: time.Hour,
	})

	if got, _ := e.SubmitBid(context.Background(), "c1", "u1", 100); !got.Accepted {
		t.Fatalf("SubmitBid(100) = %+v, want accepted", got)
	}

	// The terminal bid is exempt from the same-bidder rule.
	got, err := e.SubmitBid(context.Background(), "c1", "u1", 500)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if !got.Accepted || !got.EndsAuction {
		t.Errorf("SubmitBid(same bidder, instant-win) = %+v, want accepted instant-win", got)
	}
}

// conflictStore loses every append, as if a concurrent bid committed
// between the engine's read and its write.
type conflictStore struct {
	*memStore
	appends int
}

func (s *conflictStore) AppendBid(_ context.Context, _ int64, _ string, _ int64) error {
	s.appends++
	return ErrBidConflict
}

func TestSubmitBid_AppendConflictRejectsAsNotAboveLast(t *testing.T) {
	store := &conflictStore{memStore: newMemStore()}
	registry := newMemRegistry()
	notifier := &recordNotifier{}
	e := NewEngine(store, registry, notifier)

	mustCreate(t, e, CreateParams{
		ChannelID: "c1", OwnerID: "owner", Item: "item",
		StartPrice: 100, Duration: time.Hour,
	})

	// The bid passes every pre-check; only the append itself fails.
	got, err := e.SubmitBid(context.Background(), "c1", "u1", 200)
	if err != nil {
		t.Fatalf("SubmitBid() error = %v", err)
	}
	if store.appends != 1 {
		t.Fatalf("AppendBid called %d times, want 1", store.appends)
	}
	if got.Accepted || got.Reason != RejectNotAboveLast {
		t.Errorf("SubmitBid() = %+v, want rejection NotAboveLast", got)
	}
	if len(notifier.bids) != 0 {
		t.Errorf("got %d bid announcements, want 0", len(notifier.bids))
	}
}

func TestFinalizationHappensExactlyOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		e, store, registry, notifier := newTestEngine()
		a := mustCreate(t, e, CreateParams{
			ChannelID: "c1", OwnerID: "owner", Item: "item",
			StartPrice: 100, BinPrice: int64Ptr(500), Duration: -time.Minute,
		})

		clock := newFakeClock(time.Now())
		sweeper := NewSweeper(store, registry, notifier, clock)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			sweeper.Sweep(context.Background())
		}()
		go func() {
			defer wg.Done()
			if _, err := e.SubmitBid(context.Background(), "c1", "u1", 500); err != nil {
				t.Errorf("SubmitBid() error = %v", err)
			}
		}()
		wg.Wait()

		finals := notifier.finalizations()
		if len(finals) != 1 {
			t.Fatalf("iteration %d: got %d finalizations, want exactly 1", i, len(finals))
		}
		if _, bound, _ := registry.Lookup(context.Background(), "c1"); bound {
			t.Errorf("iteration %d: channel still bound after finalization", i)
		}
		_ = a
	}
}

func TestBidHistoryStaysStrictlyIncreasing(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	e, store, _, _ := newTestEngine()
	a := mustCreate(t, e, CreateParams{
		ChannelID: "c1", OwnerID: "owner", Item: "item",
		StartPrice: 100, Duration: time.Hour,
	})

	for i := 0; i < 500; i++ {
		bidder := fmt.Sprintf("u%d", rng.Intn(5))
		price := int64(rng.Intn(2000))
		if _, err := e.SubmitBid(context.Background(), "c1", bidder, price); err != nil {
			t.Fatalf("SubmitBid() error = %v", err)
		}
	}

	committed, err := store.GetAuction(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("GetAuction() error = %v", err)
	}
	for i, bid := range committed.Bids {
		if i == 0 {
			if bid.Price < committed.StartPrice {
				t.Errorf("first bid %d below start price %d", bid.Price, committed.StartPrice)
			}
			continue
		}
		prev := committed.Bids[i-1]
		if bid.Price <= prev.Price {
			t.Errorf("bid %d (%d) not above previous (%d)", i, bid.Price, prev.Price)
		}
		if bid.BidderID == prev.BidderID {
			t.Errorf("bid %d placed by same bidder %s as previous", i, bid.BidderID)
		}
		if bid.BidderID == committed.OwnerID {
			t.Errorf("bid %d placed by owner", i)
		}
	}
}
