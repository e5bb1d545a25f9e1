package billing

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tableops/tableops/app/models"
	"github.com/tableops/tableops/app/repository"
	"gorm.io/gorm"
)

type memSubscriptions struct {
	mu     sync.Mutex
	nextID uint
	rows   map[uint]models.Subscription
	// failUpdate makes UpdateStatus fail for the given row ids.
	failUpdate map[uint]error
}

func newMemSubscriptions() *memSubscriptions {
	return &memSubscriptions{rows: map[uint]models.Subscription{}, failUpdate: map[uint]error{}}
}

func (m *memSubscriptions) GetByID(ctx context.Context, id uint) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (m *memSubscriptions) GetByStripeSubscriptionID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.StripeSubscriptionID == stripeID {
			r := row
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memSubscriptions) GetLatestByStripeCustomerID(ctx context.Context, customerID string) (*models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *models.Subscription
	for _, row := range m.rows {
		if row.StripeCustomerID != customerID {
			continue
		}
		if latest == nil || row.ID > latest.ID {
			r := row
			latest = &r
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return latest, nil
}

func (m *memSubscriptions) Upsert(ctx context.Context, sub *models.Subscription) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, row := range m.rows {
		if row.StripeSubscriptionID == sub.StripeSubscriptionID {
			sub.ID = id
			sub.OwnerID = row.OwnerID
			sub.CreatedAt = row.CreatedAt
			m.rows[id] = *sub
			return nil
		}
	}
	m.nextID++
	sub.ID = m.nextID
	sub.CreatedAt = time.Now()
	m.rows[sub.ID] = *sub
	return nil
}

func (m *memSubscriptions) UpdateStatus(ctx context.Context, id uint, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpdate[id]; err != nil {
		return err
	}
	row, ok := m.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	row.Status = status
	m.rows[id] = row
	return nil
}

func (m *memSubscriptions) ListByStatusAndPeriodEnd(ctx context.Context, status string, from, to time.Time) ([]models.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Subscription
	for _, row := range m.rows {
		if row.Status != status || row.CurrentPeriodEnd == nil {
			continue
		}
		end := *row.CurrentPeriodEnd
		if end.Before(from) || end.After(to) {
			continue
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// seed stores sub as is and returns its id.
func (m *memSubscriptions) seed(sub models.Subscription) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub.ID = m.nextID
	m.rows[sub.ID] = sub
	return sub.ID
}

func (m *memSubscriptions) status(stripeID string) string {
	sub, err := m.GetByStripeSubscriptionID(context.Background(), stripeID)
	if err != nil {
		return ""
	}
	return sub.Status
}

type memRestaurants struct {
	mu     sync.Mutex
	nextID uint
	rows   []models.Restaurant
	// failOwner makes deactivation fail for the given owner ids.
	failOwner map[uint]error
}

func newMemRestaurants() *memRestaurants {
	return &memRestaurants{failOwner: map[uint]error{}}
}

func (m *memRestaurants) add(ownerID uint, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		m.nextID++
		m.rows = append(m.rows, models.Restaurant{
			ID:        m.nextID,
			OwnerID:   ownerID,
			Name:      "Restaurant",
			IsActive:  true,
			CreatedAt: base.Add(time.Duration(m.nextID) * time.Hour),
		})
	}
}

func (m *memRestaurants) CountActiveByOwner(ctx context.Context, ownerID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.rows {
		if r.OwnerID == ownerID && r.IsActive {
			n++
		}
	}
	return n, nil
}

func (m *memRestaurants) DeactivateAllByOwner(ctx context.Context, ownerID uint) (int64, error) {
	return m.DeactivateExcess(ctx, ownerID, 0)
}

func (m *memRestaurants) DeactivateExcess(ctx context.Context, ownerID uint, keep int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOwner[ownerID]; err != nil {
		return 0, err
	}
	var n int64
	kept := 0
	for i := range m.rows {
		r := &m.rows[i]
		if r.OwnerID != ownerID || !r.IsActive {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		r.IsActive = false
		n++
	}
	return n, nil
}

func (m *memRestaurants) activeIDs(ownerID uint) []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uint
	for _, r := range m.rows {
		if r.OwnerID == ownerID && r.IsActive {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

type memOwners struct {
	rows map[uint]models.Owner
}

func newMemOwners(owners ...models.Owner) *memOwners {
	m := &memOwners{rows: map[uint]models.Owner{}}
	for _, o := range owners {
		m.rows[o.ID] = o
	}
	return m
}

func (m *memOwners) GetByID(ctx context.Context, id uint) (*models.Owner, error) {
	o, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &o, nil
}

func (m *memOwners) GetByEmail(ctx context.Context, email string) (*models.Owner, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, o := range m.rows {
		if strings.ToLower(o.Email) == email {
			owner := o
			return &owner, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type staticCustomers map[string]string

func (c staticCustomers) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	email, ok := c[customerID]
	if !ok {
		return "", errors.New("no such customer")
	}
	return email, nil
}

type sentNotice struct {
	kind string
	to   string
	arg  string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotice
	// fail makes sends of the given kind fail.
	fail map[string]error
	// panicOn makes sends of the given kind panic.
	panicOn string
}

func (n *recordingNotifier) record(kind, to, arg string) error {
	if kind == n.panicOn {
		panic("notifier exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.fail[kind]; err != nil {
		return err
	}
	n.sent = append(n.sent, sentNotice{kind: kind, to: to, arg: arg})
	return nil
}

func (n *recordingNotifier) SendSubscriptionConfirmed(ctx context.Context, to, name, planName string) error {
	return n.record("confirmed", to, planName)
}

func (n *recordingNotifier) SendSubscriptionCancelled(ctx context.Context, to, name string) error {
	return n.record("cancelled", to, "")
}

func (n *recordingNotifier) SendPaymentFailed(ctx context.Context, to, name, amount string) error {
	return n.record("payment_failed", to, amount)
}

func (n *recordingNotifier) SendTrialEnding(ctx context.Context, to, name, endDate string) error {
	return n.record("trial_ending", to, endDate)
}

func (n *recordingNotifier) SendTrialExpired(ctx context.Context, to, name string) error {
	return n.record("trial_expired", to, "")
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.kind)
	}
	return out
}

func (n *recordingNotifier) count(kind string) int {
	c := 0
	for _, k := range n.kinds() {
		if k == kind {
			c++
		}
	}
	return c
}

// harness wires the billing core over in-memory repositories.
type harness struct {
	subs        *memSubscriptions
	restaurants *memRestaurants
	owners      *memOwners
	notifier    *recordingNotifier
	reconciler  *Reconciler
	dispatcher  *Dispatcher
}

func newHarness(customers CustomerDirectory, owners ...models.Owner) *harness {
	h := &harness{
		subs:        newMemSubscriptions(),
		restaurants: newMemRestaurants(),
		owners:      newMemOwners(owners...),
		notifier:    &recordingNotifier{fail: map[string]error{}},
	}
	repos := &repository.Repositories{
		Subscription: h.subs,
		Restaurant:   h.restaurants,
		Owner:        h.owners,
	}
	h.reconciler = NewReconciler(repos, customers, nil)
	h.dispatcher = NewDispatcher(repos, h.notifier, nil)
	return h
}

func ptrTime(t time.Time) *time.Time {
	return &t
}
