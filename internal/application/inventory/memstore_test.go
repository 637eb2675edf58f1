package inventory_test

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jhoicas/stockledger-api/internal/domain"
	"github.com/jhoicas/stockledger-api/internal/domain/entity"
	"github.com/jhoicas/stockledger-api/internal/domain/repository"
)

// ──────────────────────────────────────────────────────────────────────────────
// memStore: almacenamiento en memoria con tx serializadas y Rollback por snapshot.
// ──────────────────────────────────────────────────────────────────────────────

type memStore struct {
	mu            sync.Mutex
	txMu          sync.Mutex
	products      map[string]*entity.Product
	batches       map[string]*entity.Batch
	transactions  map[string]*entity.Transaction
	suppliers     map[string]*entity.Supplier
	users         []*entity.User
	notifications map[string]*entity.Notification
	notifOrder    []string

	// failDecrements simula que otra tx consumió el lote entre la lectura y el descuento.
	failDecrements int
	// failRecompute hace fallar las próximas lecturas con bloqueo de producto.
	failRecompute  int
	decrementCalls int
	// decrementErrs errores devueltos, en orden, por los próximos descuentos.
	decrementErrs []error
	// writeOrder lotes escritos por descuentos e incrementos, en el orden en que se tocaron.
	writeOrder []string
}

func newMemStore() *memStore {
	return &memStore{
		products:      map[string]*entity.Product{},
		batches:       map[string]*entity.Batch{},
		transactions:  map[string]*entity.Transaction{},
		suppliers:     map[string]*entity.Supplier{},
		notifications: map[string]*entity.Notification{},
	}
}

func (s *memStore) addProduct(p *entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Status == "" {
		p.Status = entity.ProductStatusActive
	}
	s.products[p.ID] = p
}

func (s *memStore) addBatch(b *entity.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Status == "" {
		b.Status = entity.BatchStatusActive
	}
	if b.Condition == "" {
		b.Condition = entity.BatchConditionGood
	}
	if b.BatchNumber == "" {
		b.BatchNumber = "BN-" + b.ID
	}
	s.batches[b.ID] = b
}

func (s *memStore) batch(id string) entity.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.batches[id]
}

func (s *memStore) product(id string) entity.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.products[id]
}

func (s *memStore) notificationsOfType(t string) []*entity.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Notification
	for _, id := range s.notifOrder {
		if n, ok := s.notifications[id]; ok && n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

func (s *memStore) sumRemaining(productID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, b := range s.batches {
		if b.ProductID == productID {
			total += b.RemainingStock
		}
	}
	return total
}

type snapshot struct {
	products     map[string]entity.Product
	batches      map[string]entity.Batch
	transactions map[string]*entity.Transaction
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		products:     make(map[string]entity.Product, len(s.products)),
		batches:      make(map[string]entity.Batch, len(s.batches)),
		transactions: make(map[string]*entity.Transaction, len(s.transactions)),
	}
	for k, v := range s.products {
		snap.products[k] = *v
	}
	for k, v := range s.batches {
		snap.batches[k] = *v
	}
	for k, v := range s.transactions {
		snap.transactions[k] = v
	}
	return snap
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = make(map[string]*entity.Product, len(snap.products))
	for k, v := range snap.products {
		p := v
		s.products[k] = &p
	}
	s.batches = make(map[string]*entity.Batch, len(snap.batches))
	for k, v := range snap.batches {
		b := v
		s.batches[k] = &b
	}
	s.transactions = snap.transactions
}

// Run implementa TxRunner.
func (s *memStore) Run(ctx context.Context, fn func(
	batchRepo repository.BatchRepository,
	txRepo repository.TransactionRepository,
	productRepo repository.ProductRepository,
) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	snap := s.snapshot()
	if err := fn(memBatches{s}, memTransactions{s}, memProducts{s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Lotes
// ──────────────────────────────────────────────────────────────────────────────

type memBatches struct{ s *memStore }

func (r memBatches) Create(_ context.Context, b *entity.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.batches {
		if other.BatchNumber == b.BatchNumber {
			return domain.ErrConcurrencyConflict
		}
	}
	c := *b
	r.s.batches[b.ID] = &c
	return nil
}

func (r memBatches) GetByID(_ context.Context, id string) (*entity.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (r memBatches) list(filter func(*entity.Batch) bool) []*entity.Batch {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.Batch, 0)
	for _, b := range r.s.batches {
		if filter(b) {
			c := *b
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memBatches) ListEligible(_ context.Context, productID string, now time.Time) ([]*entity.Batch, error) {
	return r.list(func(b *entity.Batch) bool { return b.ProductID == productID && b.IsEligibleAt(now) }), nil
}

func (r memBatches) ListRestockable(_ context.Context, productID string, now time.Time) ([]*entity.Batch, error) {
	return r.list(func(b *entity.Batch) bool {
		return b.ProductID == productID && b.Status == entity.BatchStatusActive &&
			b.Condition == entity.BatchConditionGood && b.ExpiryDate.After(now)
	}), nil
}

func (r memBatches) ListByProduct(_ context.Context, productID string) ([]*entity.Batch, error) {
	return r.list(func(b *entity.Batch) bool { return b.ProductID == productID }), nil
}

func (r memBatches) ListByTransaction(_ context.Context, transactionID string) ([]*entity.Batch, error) {
	return r.list(func(b *entity.Batch) bool { return b.TransactionID == transactionID }), nil
}

func (r memBatches) ConditionalDecrement(_ context.Context, batchID string, qty int, now time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.decrementCalls++
	if len(r.s.decrementErrs) > 0 {
		err := r.s.decrementErrs[0]
		r.s.decrementErrs = r.s.decrementErrs[1:]
		return false, err
	}
	if r.s.failDecrements > 0 {
		r.s.failDecrements--
		return false, nil
	}
	b, ok := r.s.batches[batchID]
	if !ok || b.RemainingStock < qty || !b.IsEligibleAt(now) {
		return false, nil
	}
	b.RemainingStock -= qty
	r.s.writeOrder = append(r.s.writeOrder, batchID)
	return true, nil
}

func (r memBatches) Increment(_ context.Context, batchID string, qty int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[batchID]
	if !ok || b.RemainingStock+qty > b.Stock {
		return false, nil
	}
	b.RemainingStock += qty
	r.s.writeOrder = append(r.s.writeOrder, batchID)
	return true, nil
}

func (r memBatches) ForceDecrement(_ context.Context, batchID string, qty int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[batchID]
	if !ok || b.RemainingStock < qty {
		return false, nil
	}
	b.RemainingStock -= qty
	return true, nil
}

func (r memBatches) SumRemaining(_ context.Context, productID string) (int, error) {
	return r.s.sumRemaining(productID), nil
}

func (r memBatches) ExpireDue(_ context.Context, productID string, now time.Time) ([]*entity.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Batch
	for _, b := range r.s.batches {
		if productID != "" && b.ProductID != productID {
			continue
		}
		if b.Condition == entity.BatchConditionGood && b.IsExpiredAt(now) {
			b.Condition = entity.BatchConditionExpired
			b.Status = entity.BatchStatusInactive
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r memBatches) SetStatus(_ context.Context, batchID, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[batchID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	return nil
}

func (r memBatches) DeleteByTransaction(_ context.Context, transactionID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, b := range r.s.batches {
		if b.TransactionID == transactionID {
			delete(r.s.batches, id)
		}
	}
	return nil
}

func (r memBatches) NextSequence(_ context.Context, productID string, day time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prefix := "-" + day.Format("20060102") + "-"
	n := 0
	for _, b := range r.s.batches {
		if b.ProductID == productID && strings.Contains(b.BatchNumber, prefix) {
			n++
		}
	}
	return n + 1, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Transacciones
// ──────────────────────────────────────────────────────────────────────────────

type memTransactions struct{ s *memStore }

func cloneTxn(t *entity.Transaction) *entity.Transaction {
	c := *t
	c.Items = slices.Clone(t.Items)
	c.BatchesUsed = slices.Clone(t.BatchesUsed)
	return &c
}

func (r memTransactions) Create(_ context.Context, t *entity.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, other := range r.s.transactions {
		if other.OrderNumber == t.OrderNumber {
			return domain.ErrDuplicate
		}
	}
	r.s.transactions[t.ID] = cloneTxn(t)
	return nil
}

func (r memTransactions) GetByID(_ context.Context, id string) (*entity.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transactions[id]
	if !ok {
		return nil, nil
	}
	return cloneTxn(t), nil
}

func (r memTransactions) GetForUpdate(ctx context.Context, id string) (*entity.Transaction, error) {
	return r.GetByID(ctx, id)
}

func (r memTransactions) Update(_ context.Context, t *entity.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transactions[t.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.transactions[t.ID] = cloneTxn(t)
	return nil
}

func (r memTransactions) List(_ context.Context, f repository.TransactionFilter) ([]*entity.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.Transaction, 0)
	for _, t := range r.s.transactions {
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.From != nil && t.TransactionDate.Before(*f.From) {
			continue
		}
		if f.To != nil && t.TransactionDate.After(*f.To) {
			continue
		}
		out = append(out, cloneTxn(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionDate.After(out[j].TransactionDate) })
	if f.Offset >= len(out) {
		return []*entity.Transaction{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r memTransactions) ExistsOrderNumber(_ context.Context, orderNumber string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.transactions {
		if t.OrderNumber == orderNumber {
			return true, nil
		}
	}
	return false, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Productos, proveedores, usuarios
// ──────────────────────────────────────────────────────────────────────────────

type memProducts struct{ s *memStore }

func (r memProducts) GetByID(_ context.Context, id string) (*entity.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r memProducts) GetForUpdate(ctx context.Context, id string) (*entity.Product, error) {
	r.s.mu.Lock()
	if r.s.failRecompute > 0 {
		r.s.failRecompute--
		r.s.mu.Unlock()
		return nil, domain.NewPersistenceError("get product for update", context.DeadlineExceeded)
	}
	r.s.mu.Unlock()
	return r.GetByID(ctx, id)
}

func (r memProducts) ListActive(_ context.Context) ([]*entity.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*entity.Product, 0)
	for _, p := range r.s.products {
		if p.IsActive() {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memProducts) UpdateTotalStock(_ context.Context, id string, total int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.products[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.TotalStock = total
	return nil
}

type memSuppliers struct{ s *memStore }

func (r memSuppliers) GetByID(_ context.Context, id string) (*entity.Supplier, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sup, ok := r.s.suppliers[id]
	if !ok {
		return nil, nil
	}
	c := *sup
	return &c, nil
}

type memUsers struct{ s *memStore }

func (r memUsers) ListIDsByRoles(_ context.Context, roles []string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for _, u := range r.s.users {
		if u.Active && slices.Contains(roles, u.Role) {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Notificaciones
// ──────────────────────────────────────────────────────────────────────────────

type memNotifications struct{ s *memStore }

func cloneNotif(n *entity.Notification) *entity.Notification {
	c := *n
	c.Recipients = slices.Clone(n.Recipients)
	c.ReadBy = slices.Clone(n.ReadBy)
	return &c
}

func (r memNotifications) Create(_ context.Context, n *entity.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.notifications[n.ID] = cloneNotif(n)
	r.s.notifOrder = append(r.s.notifOrder, n.ID)
	return nil
}

func (r memNotifications) GetByID(_ context.Context, id string) (*entity.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[id]
	if !ok {
		return nil, nil
	}
	return cloneNotif(n), nil
}

func (r memNotifications) AddRead(_ context.Context, notificationID, userID string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n, ok := r.s.notifications[notificationID]
	if !ok {
		return false, domain.ErrNotFound
	}
	n.MarkRead(userID, at)
	return n.IsRead, nil
}

func (r memNotifications) ListForUser(_ context.Context, userID string, unreadOnly bool, limit, offset int) ([]*entity.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Notification
	for i := len(r.s.notifOrder) - 1; i >= 0; i-- {
		n, ok := r.s.notifications[r.s.notifOrder[i]]
		if !ok || !n.IsRecipient(userID) {
			continue
		}
		if unreadOnly && n.HasRead(userID) {
			continue
		}
		out = append(out, cloneNotif(n))
	}
	if offset >= len(out) {
		return []*entity.Notification{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r memNotifications) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, notif := range r.s.notifications {
		if notif.CreatedAt.Before(cutoff) {
			delete(r.s.notifications, id)
			n++
		}
	}
	return n, nil
}
