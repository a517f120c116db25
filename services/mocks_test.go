package services

import (
	"context"
	"sync"
	"time"

	"payments-service/models"
	"payments-service/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// In-memory repositories enforcing the same uniqueness constraints as the
// Postgres schema, so concurrency tests exercise the real duplicate-key
// paths.

type memOrderRepo struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]*models.Order
	byExternal map[string]*models.Order
	byNumber   map[string]*models.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{
		byID:       make(map[uuid.UUID]*models.Order),
		byExternal: make(map[string]*models.Order),
		byNumber:   make(map[string]*models.Order),
	}
}

func (r *memOrderRepo) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byExternal[order.ExternalObjectID]; exists {
		return gorm.ErrDuplicatedKey
	}
	if _, exists := r.byNumber[order.OrderNumber]; exists {
		return gorm.ErrDuplicatedKey
	}
	cp := *order
	r.byID[cp.ID] = &cp
	r.byExternal[cp.ExternalObjectID] = &cp
	r.byNumber[cp.OrderNumber] = &cp
	return nil
}

func (r *memOrderRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.byID[id]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memOrderRepo) FindByExternalObjectID(_ context.Context, externalObjectID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.byExternal[externalObjectID]; ok {
		cp := *o
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memOrderRepo) FindByMerchant(_ context.Context, merchantID uuid.UUID, _, _ int) ([]models.Order, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.byID {
		if o.MerchantID == merchantID {
			out = append(out, *o)
		}
	}
	return out, int64(len(out)), nil
}

func (r *memOrderRepo) CountForMerchantSince(_ context.Context, merchantID uuid.UUID, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, o := range r.byID {
		if o.MerchantID == merchantID && !o.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *memOrderRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.byID[id]
	if !ok || o.Status != from {
		return repository.ErrInvalidTransition
	}
	o.Status = to
	return nil
}

func (r *memOrderRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type memCustomerRepo struct {
	mu      sync.Mutex
	byPhone map[string]*models.Customer
}

func newMemCustomerRepo() *memCustomerRepo {
	return &memCustomerRepo{byPhone: make(map[string]*models.Customer)}
}

func (r *memCustomerRepo) FindByPhone(_ context.Context, phone string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.byPhone[phone]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memCustomerRepo) FindByEmail(_ context.Context, email string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.byPhone {
		if c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memCustomerRepo) Create(_ context.Context, customer *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byPhone[customer.Phone]; exists {
		return gorm.ErrDuplicatedKey
	}
	cp := *customer
	r.byPhone[cp.Phone] = &cp
	return nil
}

func (r *memCustomerRepo) Update(_ context.Context, customer *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *customer
	r.byPhone[cp.Phone] = &cp
	return nil
}

type memMerchantRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.MerchantAccount
}

func newMemMerchantRepo(merchants ...*models.MerchantAccount) *memMerchantRepo {
	r := &memMerchantRepo{byID: make(map[uuid.UUID]*models.MerchantAccount)}
	for _, m := range merchants {
		cp := *m
		r.byID[cp.ID] = &cp
	}
	return r
}

func (r *memMerchantRepo) FindByID(_ context.Context, id uuid.UUID) (*models.MerchantAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.byID[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memMerchantRepo) UpdateTier(_ context.Context, id uuid.UUID, tier string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.Tier = tier
	m.TierExpiresAt = expiresAt
	return nil
}

func (r *memMerchantRepo) SetPayoutAccount(_ context.Context, id uuid.UUID, payoutAccountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.PayoutAccountID = &payoutAccountID
	m.PayoutAccountReady = false
	return nil
}

func (r *memMerchantRepo) SetPayoutReady(_ context.Context, id uuid.UUID, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	m.PayoutAccountReady = ready
	return nil
}

type memTransferRepo struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*models.TransferRecord
	byOrder map[uuid.UUID]*models.TransferRecord
}

func newMemTransferRepo() *memTransferRepo {
	return &memTransferRepo{
		byID:    make(map[uuid.UUID]*models.TransferRecord),
		byOrder: make(map[uuid.UUID]*models.TransferRecord),
	}
}

func (r *memTransferRepo) Create(_ context.Context, record *models.TransferRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byOrder[record.OrderID]; exists {
		return gorm.ErrDuplicatedKey
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	cp := *record
	r.byID[cp.ID] = &cp
	r.byOrder[cp.OrderID] = &cp
	return nil
}

func (r *memTransferRepo) FindByOrderID(_ context.Context, orderID uuid.UUID) (*models.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byOrder[orderID]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memTransferRepo) Update(_ context.Context, id uuid.UUID, updates map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := updates["state"]; ok {
		rec.State = v.(string)
	}
	if v, ok := updates["attempt_count"]; ok {
		rec.AttemptCount = v.(int)
	}
	if v, ok := updates["last_error"]; ok {
		rec.LastError = v.(string)
	}
	if v, ok := updates["transfer_id"]; ok {
		rec.TransferID = v.(string)
	}
	return nil
}

func (r *memTransferRepo) FindRetryable(_ context.Context, limit int) ([]models.TransferRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.TransferRecord
	for _, rec := range r.byOrder {
		if rec.State == models.TransferPending || rec.State == models.TransferFailedRetryable {
			out = append(out, *rec)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *memTransferRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOrder)
}

// faultyOrderRepo injects a lookup failure over the in-memory repo, for
// database-outage paths.
type faultyOrderRepo struct {
	*memOrderRepo
	findErr error
}

func (r *faultyOrderRepo) FindByExternalObjectID(ctx context.Context, externalObjectID string) (*models.Order, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	return r.memOrderRepo.FindByExternalObjectID(ctx, externalObjectID)
}

// Fake transfer collaborators.

type fakePayments struct {
	captured bool
	err      error
}

func (f *fakePayments) PaymentCaptured(string) (bool, error) {
	return f.captured, f.err
}

type fakeAccounts struct {
	ready   bool
	missing []string
	err     error
}

func (f *fakeAccounts) CheckPayoutAccountReady(string) (bool, []string, error) {
	return f.ready, f.missing, f.err
}

// fakeTransfer panics when panicOnCall is set; the orchestrator must never
// reach the transfer API while a precondition is unmet.
type fakeTransfer struct {
	mu          sync.Mutex
	panicOnCall bool
	err         error
	failures    int // fail this many calls before succeeding
	calls       int
	keys        []string
}

func (f *fakeTransfer) TransferFunds(_ string, _ int64, _, idempotencyKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnCall {
		panic("transfer collaborator invoked while precondition unmet")
	}
	f.calls++
	f.keys = append(f.keys, idempotencyKey)
	if f.err != nil {
		return "", f.err
	}
	if f.failures >= f.calls {
		return "", errTransient
	}
	return "tr_test_1", nil
}

type mockNotifier struct {
	mu            sync.Mutex
	orderCreated  int
	merchantCalls int
	err           error
}

func (n *mockNotifier) NotifyOrderCreated(context.Context, *models.Order, *models.Customer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orderCreated++
	return n.err
}

func (n *mockNotifier) NotifyMerchant(context.Context, *models.Order, *models.MerchantAccount) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.merchantCalls++
	return n.err
}
