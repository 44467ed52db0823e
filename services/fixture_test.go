package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/iinsaf-marketplace-go/cache"
	"github.com/phillip/iinsaf-marketplace-go/metrics"
	models "github.com/phillip/iinsaf-marketplace-go/models"
	"github.com/phillip/iinsaf-marketplace-go/store/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeMedia struct{}

func (fakeMedia) Upload(_ context.Context, _ io.Reader, filename, folder string) (string, error) {
	return fmt.Sprintf("https://media.test/%s/%s", folder, filename), nil
}

// brokenMedia fails every upload after the first ok and records deletions.
type brokenMedia struct {
	mu      sync.Mutex
	ok      int
	deleted []string
}

func (m *brokenMedia) Upload(ctx context.Context, r io.Reader, filename, folder string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ok == 0 {
		return "", errors.New("connection reset")
	}
	m.ok--
	return fakeMedia{}.Upload(ctx, r, filename, folder)
}

func (m *brokenMedia) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, url)
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]models.GatewayPayment
}

func (g *fakeGateway) CreateOrder(_ context.Context, _ decimal.Decimal, _, receipt string) (string, error) {
	return "order_" + receipt, nil
}

func (g *fakeGateway) FetchPayment(_ context.Context, id string) (models.GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payments[id]
	if !ok {
		return models.GatewayPayment{}, errors.New("payment not found")
	}
	return p, nil
}

func (g *fakeGateway) add(p models.GatewayPayment) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.payments[p.ID] = p
}

type fakeViews struct {
	views int64
	err   error
}

func (v *fakeViews) Views(context.Context, string, string) (int64, error) {
	return v.views, v.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, msg models.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *fakeNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Kind == kind {
			c++
		}
	}
	return c
}

// failingCredits fails the next n credits whose correlation id contains match.
type failingCredits struct {
	*memstore.Store
	match string
	n     atomic.Int32
}

func (s *failingCredits) Credit(ctx context.Context, userID primitive.ObjectID, userType string, tx models.WalletTransaction) (models.Wallet, error) {
	if strings.Contains(tx.CorrelationID, s.match) && s.n.Add(-1) >= 0 {
		return models.Wallet{}, errors.New("transient write failure")
	}
	return s.Store.Credit(ctx, userID, userType, tx)
}

// failingPending refuses to create assignment rows.
type failingPending struct {
	*memstore.Store
}

func (failingPending) EnsurePending(context.Context, models.AssignmentKind, primitive.ObjectID, string, []models.User, time.Time) (int, error) {
	return 0, errors.New("write conflict")
}

type fixture struct {
	svc      *Service
	store    *memstore.Store
	clock    *fakeClock
	gateway  *fakeGateway
	views    *fakeViews
	notifier *fakeNotifier
	admin    Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    memstore.New(),
		clock:    &fakeClock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)},
		gateway:  &fakeGateway{payments: make(map[string]models.GatewayPayment)},
		views:    &fakeViews{},
		notifier: &fakeNotifier{},
		admin:    Actor{ID: primitive.NewObjectID(), Role: models.RoleAdmin, Verified: true},
	}
	f.svc = New(Deps{
		Store:        f.store,
		Media:        fakeMedia{},
		Gateway:      f.gateway,
		Views:        f.views,
		Notifier:     f.notifier,
		Idempotency:  cache.NewMemoryIdempotencyStore(),
		PricingCache: cache.NewMemoryPricingCache(),
		Clock:        f.clock,
		Metrics:      metrics.New(),
	})
	_, err := f.svc.SetPricing(context.Background(), testPricing())
	require.NoError(t, err)
	return f
}

// testPricing gives 200 per reporter for a video ad and 300 per
// conference reporter with no GST or surcharges.
func testPricing() models.PricingConfig {
	return models.PricingConfig{
		AdTypes:                          []models.AdTypePrice{{Type: "video", Price: decimal.NewFromInt(200)}},
		ChannelTypes:                     []string{"news"},
		Platforms:                        []string{"youtube", "facebook"},
		GSTRate:                          decimal.Zero,
		PerDayPrice:                      decimal.Zero,
		PerSecPrice:                      decimal.Zero,
		PerCityPrice:                     decimal.Zero,
		BaseView:                         1000,
		AdCommission:                     decimal.NewFromInt(70),
		ReporterPrice:                    decimal.NewFromInt(300),
		PaidConferenceCommission:         decimal.NewFromInt(10),
		ReporterAcceptTimeInHours:        24,
		MinimumWithdrawAmountForReporter: decimal.NewFromInt(100),
		MinAdLength:                      5,
		MaxAdLength:                      60,
	}
}

func (f *fixture) user(t *testing.T, role, state, city string) Actor {
	t.Helper()
	u := models.User{
		Role:     role,
		Verified: true,
		Name:     role,
		Email:    role + "@example.com",
		State:    state,
		City:     city,
		IinsafID: "IIN-" + primitive.NewObjectID().Hex()[18:],
	}
	require.NoError(t, f.store.CreateUser(context.Background(), &u))
	return Actor{ID: u.ID, Role: role, Verified: true}
}

func (f *fixture) reporters(t *testing.T, n int) []Actor {
	t.Helper()
	out := make([]Actor, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, f.user(t, models.RoleReporter, "Punjab", "Ludhiana"))
	}
	return out
}

func (f *fixture) fund(t *testing.T, a Actor, amount int64) {
	t.Helper()
	_, err := f.svc.Credit(context.Background(), LedgerEntry{
		UserID:        a.ID,
		UserType:      a.Role,
		Amount:        decimal.NewFromInt(amount),
		Description:   "seed",
		CorrelationID: "seed:" + primitive.NewObjectID().Hex(),
	})
	require.NoError(t, err)
}

func screenshot() *Upload {
	return &Upload{File: bytes.NewBufferString("png"), Filename: "proof.png"}
}

func proofInput() ProofInput {
	return ProofInput{
		Screenshot:  screenshot(),
		ChannelName: "Punjab Live",
		Platform:    "youtube",
		VideoLink:   "https://youtube.com/watch?v=abc123",
		Duration:    "45s",
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func conferenceInput() ConferenceInput {
	return ConferenceInput{
		Topic:    "Flood relief briefing",
		Purpose:  "Brief the press about the district flood relief work and the new helpline numbers",
		Date:     time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Time:     "11:00",
		Location: models.Location{State: "Punjab", City: "Ludhiana", Place: "Civil Lines"},
		UserType: models.RoleReporter,
	}
}
