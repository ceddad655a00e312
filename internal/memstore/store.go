// Package memstore is an in-memory implementation of the inventory, credit and
// sales repositories. A transaction holds the store mutex for its whole
// callback and restores a snapshot when the callback fails, which gives the
// same all-or-nothing and serialised behaviour as row locks in PostgreSQL.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/credit"
	"github.com/odyssey-erp/odyssey-pos/internal/inventory"
	"github.com/odyssey-erp/odyssey-pos/internal/sales"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

type state struct {
	customers    map[int64]bool
	products     map[int64]inventory.Product
	movements    []inventory.Movement
	sales        map[int64]sales.Sale
	lines        []sales.Line
	credits      map[int64]credit.Credit
	installments map[int64]credit.Installment
	payments     []credit.Payment
	allocations  []credit.Allocation
	keys         map[string]bool
	series       map[int]int64
	ids          map[string]int64
}

func newState() *state {
	return &state{
		customers:    make(map[int64]bool),
		products:     make(map[int64]inventory.Product),
		sales:        make(map[int64]sales.Sale),
		credits:      make(map[int64]credit.Credit),
		installments: make(map[int64]credit.Installment),
		keys:         make(map[string]bool),
		series:       make(map[int]int64),
		ids:          make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.customers {
		c.customers[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.credits {
		c.credits[k] = v
	}
	for k, v := range s.installments {
		c.installments[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	for k, v := range s.series {
		c.series[k] = v
	}
	for k, v := range s.ids {
		c.ids[k] = v
	}
	c.movements = append([]inventory.Movement(nil), s.movements...)
	c.lines = append([]sales.Line(nil), s.lines...)
	c.payments = append([]credit.Payment(nil), s.payments...)
	c.allocations = append([]credit.Allocation(nil), s.allocations...)
	return c
}

func (s *state) next(seq string) int64 {
	s.ids[seq]++
	return s.ids[seq]
}

// Store holds all tables behind one mutex.
type Store struct {
	mu    sync.Mutex
	st    *state
	fails map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), fails: make(map[string]error)}
}

// AddCustomer registers a customer id.
func (s *Store) AddCustomer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.customers[id] = true
}

// AddProduct inserts or replaces a product.
func (s *Store) AddProduct(p inventory.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// FailOn makes every call to the named Tx method return err. A nil err clears it.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fails, method)
		return
	}
	s.fails[method] = err
}

// Product returns the current product row.
func (s *Store) Product(id int64) inventory.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.products[id]
}

// Movements returns every movement in insertion order.
func (s *Store) Movements() []inventory.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Movement(nil), s.st.movements...)
}

// SaleCount returns the number of persisted sales.
func (s *Store) SaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.sales)
}

// CreditCount returns the number of persisted credits.
func (s *Store) CreditCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.credits)
}

// Payments returns every payment in insertion order.
func (s *Store) Payments() []credit.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]credit.Payment(nil), s.st.payments...)
}

// Allocations returns every allocation in insertion order.
func (s *Store) Allocations() []credit.Allocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]credit.Allocation(nil), s.st.allocations...)
}

// SetInstallmentDueDate moves a due date, for overdue scenarios.
func (s *Store) SetInstallmentDueDate(id int64, due time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.st.installments[id]
	if !ok {
		return
	}
	inst.DueDate = due
	s.st.installments[id] = inst
}

func (s *Store) withTx(ctx context.Context, fn func(*Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	if err := fn(&Tx{store: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// Inventory returns the store as an inventory repository.
func (s *Store) Inventory() inventory.RepositoryPort { return inventoryRepo{s} }

// Credit returns the store as a credit repository.
func (s *Store) Credit() credit.RepositoryPort { return creditRepo{s} }

// Sales returns the store as a sales repository.
func (s *Store) Sales() sales.RepositoryPort { return salesRepo{s} }

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return r.s.withTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r inventoryRepo) ListMovements(ctx context.Context, filter inventory.MovementFilter) ([]inventory.Movement, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []inventory.Movement{}
	for _, m := range r.s.st.movements {
		if m.ProductID != filter.ProductID {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type creditRepo struct{ s *Store }

func (r creditRepo) WithTx(ctx context.Context, fn func(context.Context, credit.TxRepository) error) error {
	return r.s.withTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r creditRepo) GetCredit(ctx context.Context, creditID int64) (credit.Detail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.credits[creditID]
	if !ok {
		return credit.Detail{}, credit.ErrCreditNotFound
	}
	return credit.Detail{Credit: c, Installments: r.s.st.schedule(creditID)}, nil
}

func (r creditRepo) ListAllocations(ctx context.Context, paymentID int64) ([]credit.Allocation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []credit.Allocation{}
	for _, a := range r.s.st.allocations {
		if a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r creditRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, inst := range r.s.st.installments {
		if r.s.st.credits[inst.CreditID].Status != credit.StatusActive {
			continue
		}
		if inst.Status == credit.InstallmentPending && inst.AmountRemaining.IsPositive() && inst.DueDate.Before(asOf) {
			inst.Status = credit.InstallmentOverdue
			r.s.st.installments[id] = inst
			n++
		}
	}
	return n, nil
}

type salesRepo struct{ s *Store }

func (r salesRepo) WithTx(ctx context.Context, fn func(context.Context, sales.TxRepository) error) error {
	return r.s.withTx(ctx, func(tx *Tx) error { return fn(ctx, tx) })
}

func (r salesRepo) GetSale(ctx context.Context, saleID int64) (sales.Sale, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sale, ok := r.s.st.sales[saleID]
	if !ok {
		return sales.Sale{}, sales.ErrSaleNotFound
	}
	sale.Lines = r.s.st.saleLines(saleID)
	for _, p := range r.s.st.payments {
		if p.SaleID == saleID {
			sale.Payments = append(sale.Payments, p)
		}
	}
	for _, c := range r.s.st.credits {
		if c.SaleID == saleID {
			id := c.ID
			sale.CreditID = &id
		}
	}
	return sale, nil
}

func (s *state) schedule(creditID int64) []credit.Installment {
	out := []credit.Installment{}
	for _, inst := range s.installments {
		if inst.CreditID == creditID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

func (s *state) saleLines(saleID int64) []sales.Line {
	out := []sales.Line{}
	for _, l := range s.lines {
		if l.SaleID == saleID {
			out = append(out, l)
		}
	}
	return out
}

// Tx implements every package's TxRepository against the locked store.
type Tx struct {
	store *Store
}

func (tx *Tx) fail(method string) error {
	return tx.store.fails[method]
}

func (tx *Tx) GetProductForUpdate(ctx context.Context, productID int64) (inventory.Product, error) {
	if err := tx.fail("GetProductForUpdate"); err != nil {
		return inventory.Product{}, err
	}
	p, ok := tx.store.st.products[productID]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (tx *Tx) UpdateProductStock(ctx context.Context, productID int64, stock int64) error {
	if err := tx.fail("UpdateProductStock"); err != nil {
		return err
	}
	p, ok := tx.store.st.products[productID]
	if !ok {
		return inventory.ErrProductNotFound
	}
	if stock < 0 {
		return errors.New("memstore: stock_on_hand check constraint violated")
	}
	p.StockOnHand = stock
	tx.store.st.products[productID] = p
	return nil
}

func (tx *Tx) InsertMovement(ctx context.Context, m inventory.Movement) (int64, error) {
	if err := tx.fail("InsertMovement"); err != nil {
		return 0, err
	}
	m.ID = tx.store.st.next("movements")
	tx.store.st.movements = append(tx.store.st.movements, m)
	return m.ID, nil
}

func (tx *Tx) InsertCredit(ctx context.Context, c credit.Credit) (int64, error) {
	if err := tx.fail("InsertCredit"); err != nil {
		return 0, err
	}
	c.ID = tx.store.st.next("credits")
	tx.store.st.credits[c.ID] = c
	return c.ID, nil
}

func (tx *Tx) InsertInstallment(ctx context.Context, inst credit.Installment) (int64, error) {
	if err := tx.fail("InsertInstallment"); err != nil {
		return 0, err
	}
	inst.ID = tx.store.st.next("installments")
	tx.store.st.installments[inst.ID] = inst
	return inst.ID, nil
}

func (tx *Tx) GetCreditForUpdate(ctx context.Context, creditID int64) (credit.Credit, error) {
	c, ok := tx.store.st.credits[creditID]
	if !ok {
		return credit.Credit{}, credit.ErrCreditNotFound
	}
	return c, nil
}

func (tx *Tx) GetCreditBySaleForUpdate(ctx context.Context, saleID int64) (credit.Credit, error) {
	for _, c := range tx.store.st.credits {
		if c.SaleID == saleID {
			return c, nil
		}
	}
	return credit.Credit{}, credit.ErrCreditNotFound
}

func (tx *Tx) ListInstallmentsForUpdate(ctx context.Context, creditID int64) ([]credit.Installment, error) {
	return tx.store.st.schedule(creditID), nil
}

func (tx *Tx) UpdateInstallment(ctx context.Context, inst credit.Installment) error {
	if err := tx.fail("UpdateInstallment"); err != nil {
		return err
	}
	if _, ok := tx.store.st.installments[inst.ID]; !ok {
		return errors.New("memstore: installment not found")
	}
	tx.store.st.installments[inst.ID] = inst
	return nil
}

func (tx *Tx) UpdateCredit(ctx context.Context, c credit.Credit) error {
	if err := tx.fail("UpdateCredit"); err != nil {
		return err
	}
	current, ok := tx.store.st.credits[c.ID]
	if !ok {
		return credit.ErrCreditNotFound
	}
	current.RemainingAmount = c.RemainingAmount
	current.Status = c.Status
	current.UpdatedAt = c.UpdatedAt
	tx.store.st.credits[c.ID] = current
	return nil
}

func (tx *Tx) InsertPayment(ctx context.Context, p credit.Payment) (int64, error) {
	if err := tx.fail("InsertPayment"); err != nil {
		return 0, err
	}
	p.ID = tx.store.st.next("payments")
	tx.store.st.payments = append(tx.store.st.payments, p)
	return p.ID, nil
}

func (tx *Tx) InsertAllocation(ctx context.Context, a credit.Allocation) (int64, error) {
	if err := tx.fail("InsertAllocation"); err != nil {
		return 0, err
	}
	a.ID = tx.store.st.next("allocations")
	tx.store.st.allocations = append(tx.store.st.allocations, a)
	return a.ID, nil
}

func (tx *Tx) ClaimIdempotencyKey(ctx context.Context, key string) error {
	if tx.store.st.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	tx.store.st.keys[key] = true
	return nil
}

func (tx *Tx) CustomerExists(ctx context.Context, customerID int64) (bool, error) {
	return tx.store.st.customers[customerID], nil
}

func (tx *Tx) NextSaleID(ctx context.Context) (int64, error) {
	return tx.store.st.next("sales"), nil
}

func (tx *Tx) NextSaleNumber(ctx context.Context, year int) (int64, error) {
	tx.store.st.series[year]++
	return tx.store.st.series[year], nil
}

func (tx *Tx) InsertSale(ctx context.Context, sale sales.Sale) error {
	if err := tx.fail("InsertSale"); err != nil {
		return err
	}
	if _, dup := tx.store.st.sales[sale.ID]; dup {
		return errors.New("memstore: duplicate sale id")
	}
	sale.Lines = nil
	sale.Payments = nil
	tx.store.st.sales[sale.ID] = sale
	return nil
}

func (tx *Tx) InsertSaleLine(ctx context.Context, line sales.Line) (int64, error) {
	if err := tx.fail("InsertSaleLine"); err != nil {
		return 0, err
	}
	line.ID = tx.store.st.next("sale_lines")
	tx.store.st.lines = append(tx.store.st.lines, line)
	return line.ID, nil
}

func (tx *Tx) GetSaleForUpdate(ctx context.Context, saleID int64) (sales.Sale, error) {
	sale, ok := tx.store.st.sales[saleID]
	if !ok {
		return sales.Sale{}, sales.ErrSaleNotFound
	}
	sale.Lines = tx.store.st.saleLines(saleID)
	return sale, nil
}

func (tx *Tx) MarkSaleVoided(ctx context.Context, saleID, actorID int64, at time.Time) error {
	if err := tx.fail("MarkSaleVoided"); err != nil {
		return err
	}
	sale, ok := tx.store.st.sales[saleID]
	if !ok {
		return sales.ErrSaleNotFound
	}
	sale.Status = sales.StatusVoided
	sale.VoidedAt = &at
	sale.VoidedBy = &actorID
	tx.store.st.sales[saleID] = sale
	return nil
}
