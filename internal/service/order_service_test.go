package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mzziin/PrimeCart/internal/apperror"
	"github.com/mzziin/PrimeCart/internal/domain"
	"github.com/mzziin/PrimeCart/internal/repository"
	outboxDomain "github.com/mzziin/PrimeCart/pkg/outbox/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeTx stands in for a pgx transaction. Only Commit and Rollback are
// exercised; anything else panics via the nil embedded interface.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	txs      []*fakeTx
	beginErr error
}

func (b *fakeBeginner) Begin(_ context.Context) (pgx.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func (b *fakeBeginner) lastTx() *fakeTx {
	if len(b.txs) == 0 {
		return nil
	}
	return b.txs[len(b.txs)-1]
}

type fakeCustomerRepo struct {
	existing map[string]bool
	err      error
}

func (r *fakeCustomerRepo) Exists(_ context.Context, id string) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	return r.existing[id], nil
}

type fakeProductRepo struct {
	products       map[string]domain.Product
	failDecreaseOn string
	increased      map[string]int32
}

func (r *fakeProductRepo) ResolveProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	resolved := make(map[string]domain.Product)
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			resolved[id] = p
		}
	}
	return resolved, nil
}

func (r *fakeProductRepo) DecreaseStock(_ context.Context, _ pgx.Tx, id string, quantity int32) (int64, error) {
	if id == r.failDecreaseOn {
		return 0, repository.ErrInsufficientStock
	}

	p, ok := r.products[id]
	if !ok {
		return 0, repository.ErrInsufficientStock
	}
	if p.Stock < quantity {
		return 0, repository.ErrInsufficientStock
	}

	p.Stock -= quantity
	r.products[id] = p
	return p.Price, nil
}

func (r *fakeProductRepo) IncreaseStock(_ context.Context, _ pgx.Tx, id string, quantity int32) error {
	if r.increased == nil {
		r.increased = make(map[string]int32)
	}
	r.increased[id] += quantity

	p, ok := r.products[id]
	if !ok {
		return repository.ErrProductNotFound
	}
	p.Stock += quantity
	r.products[id] = p
	return nil
}

type fakeOrderRepo struct {
	orders    map[string]*domain.Order
	items     map[string]*domain.OrderItem
	createErr error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders: make(map[string]*domain.Order),
		items:  make(map[string]*domain.OrderItem),
	}
}

func (r *fakeOrderRepo) CreateOrder(_ context.Context, _ pgx.Tx, order *domain.Order) error {
	if r.createErr != nil {
		return r.createErr
	}

	r.orders[order.ID] = order
	for i := range order.Items {
		item := order.Items[i]
		r.items[item.ID] = &item
	}
	return nil
}

func (r *fakeOrderRepo) GetOrderByID(_ context.Context, orderID string) (*domain.Order, error) {
	order, ok := r.orders[orderID]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return order, nil
}

func (r *fakeOrderRepo) GetOrdersByCustomer(_ context.Context, customerID string) ([]domain.Order, error) {
	var orders []domain.Order
	for _, o := range r.orders {
		if o.CustomerID == customerID {
			orders = append(orders, *o)
		}
	}
	return orders, nil
}

func (r *fakeOrderRepo) GetOrderItemForUpdate(_ context.Context, _ pgx.Tx, itemID string) (*domain.OrderItem, error) {
	item, ok := r.items[itemID]
	if !ok {
		return nil, repository.ErrOrderItemNotFound
	}
	copied := *item
	return &copied, nil
}

func (r *fakeOrderRepo) UpdateOrderItemStatus(_ context.Context, _ pgx.Tx, itemID string, status domain.OrderItemStatus, deliveredAt *time.Time) error {
	item, ok := r.items[itemID]
	if !ok {
		return repository.ErrOrderItemNotFound
	}
	item.Status = status
	if deliveredAt != nil {
		item.DeliveredAt = deliveredAt
	}
	return nil
}

type fakeOutboxRepo struct {
	saved []*outboxDomain.OutboxEvent
	err   error
}

func (r *fakeOutboxRepo) SaveOutboxEvent(_ context.Context, _ pgx.Tx, event *outboxDomain.OutboxEvent) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, event)
	return nil
}

func (r *fakeOutboxRepo) GetUnpublishedEvents(_ context.Context, _ pgx.Tx, _ int) ([]*outboxDomain.OutboxEvent, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkEventPublished(_ context.Context, _ pgx.Tx, _ int64) error {
	return nil
}

func (r *fakeOutboxRepo) MarkEventFailed(_ context.Context, _ pgx.Tx, _ int64, _ string) error {
	return nil
}

type serviceFixture struct {
	svc       OrderService
	beginner  *fakeBeginner
	orders    *fakeOrderRepo
	products  *fakeProductRepo
	customers *fakeCustomerRepo
	outbox    *fakeOutboxRepo
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		beginner: &fakeBeginner{},
		orders:   newFakeOrderRepo(),
		products: &fakeProductRepo{
			products: map[string]domain.Product{
				"p-widget": {ID: "p-widget", Name: "Widget", Price: 1500, Stock: 10},
				"p-gadget": {ID: "p-gadget", Name: "Gadget", Price: 250, Stock: 3},
			},
		},
		customers: &fakeCustomerRepo{
			existing: map[string]bool{"c-1": true},
		},
		outbox: &fakeOutboxRepo{},
	}

	f.svc = NewOrderService(f.beginner, f.orders, f.products, f.customers, f.outbox, zap.NewNop())
	return f
}

func (f *serviceFixture) seedItem(item domain.OrderItem) {
	copied := item
	f.orders.items[item.ID] = &copied
}

func TestPlaceOrderEmptyItems(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "c-1",
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
	assert.Empty(t, f.beginner.txs, "no transaction should be opened")
}

func TestPlaceOrderNonPositiveQuantity(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "c-1",
		Items: []PlaceOrderItemInput{
			{ProductID: "p-widget", Quantity: 0},
		},
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
}

func TestPlaceOrderUnknownCustomer(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "c-ghost",
		Items: []PlaceOrderItemInput{
			{ProductID: "p-widget", Quantity: 1},
		},
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "c-ghost")
}

func TestPlaceOrderMissingProductsListed(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "c-1",
		Items: []PlaceOrderItemInput{
			{ProductID: "p-widget", Quantity: 1},
			{ProductID: "p-missing-1", Quantity: 1},
			{ProductID: "p-missing-2", Quantity: 1},
		},
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "p-missing-1")
	assert.Contains(t, err.Error(), "p-missing-2")
}

func TestPlaceOrderInsufficientStockListsAllOffenders(t *testing.T) {
	f := newFixture()

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "c-1",
		Items: []PlaceOrderItemInput{
			{ProductID: "p-widget", Quantity: 100},
			{ProductID: "p-gadget", Quantity: 5},
		},
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "Widget")
	assert.Contains(t, err.Error(), "Gadget")
	assert.Contains(t, err.Error(), "available 10")
	assert.Contains(t, err.Error(), "available 3")
	assert.Empty(t, f.beginner.txs, "offender enumeration must not reserve stock")
}

func TestPlaceOrderSuccess(t *testing.T) {
	f := newFixture()

	order, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "c-1",
		Items: []PlaceOrderItemInput{
			{ProductID: "p-widget", Quantity: 2},
			{ProductID: "p-gadget", Quantity: 3},
		},
	})

	require.NoError(t, err)
	require.NotNil(t, order)
	require.Len(t, order.Items, 2)

	assert.Equal(t, "c-1", order.CustomerID)
	assert.NotEmpty(t, order.ID)

	for _, item := range order.Items {
		assert.Equal(t, domain.StatusPending, item.Status)
		assert.Equal(t, order.ID, item.OrderID)
		assert.NotEmpty(t, item.ID)
	}

	// Price snapshots come from the catalog at placement time.
	assert.Equal(t, int64(1500), order.Items[0].UnitPrice)
	assert.Equal(t, int64(250), order.Items[1].UnitPrice)
	assert.Equal(t, int64(2*1500+3*250), order.TotalAmount())

	// Stock actually reserved.
	assert.Equal(t, int32(8), f.products.products["p-widget"].Stock)
	assert.Equal(t, int32(0), f.products.products["p-gadget"].Stock)

	require.Len(t, f.outbox.saved, 1)
	assert.Equal(t, "OrderPlaced", f.outbox.saved[0].EventType)
	assert.Equal(t, order.ID, f.outbox.saved[0].AggregateID)

	tx := f.beginner.lastTx()
	require.NotNil(t, tx)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestPlaceOrderRolledBackOnPersistFailure(t *testing.T) {
	f := newFixture()
	f.orders.createErr = errors.New("disk on fire")

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "c-1",
		Items: []PlaceOrderItemInput{
			{ProductID: "p-widget", Quantity: 1},
		},
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(err))

	tx := f.beginner.lastTx()
	require.NotNil(t, tx)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack, "failed placement must roll back")
}

func TestPlaceOrderConcurrentShortfallAborts(t *testing.T) {
	f := newFixture()
	// Precheck passes, but the guarded decrement loses the race on the second
	// item.
	f.products.failDecreaseOn = "p-gadget"

	_, err := f.svc.PlaceOrder(context.Background(), PlaceOrderInput{
		CustomerID: "c-1",
		Items: []PlaceOrderItemInput{
			{ProductID: "p-widget", Quantity: 2},
			{ProductID: "p-gadget", Quantity: 1},
		},
	})

	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "Gadget")

	tx := f.beginner.lastTx()
	require.NotNil(t, tx)
	assert.False(t, tx.committed, "partial reservation must never commit")
	assert.True(t, tx.rolledBack)
	assert.Empty(t, f.outbox.saved)
}

func TestUpdateStatusNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.UpdateOrderItemStatus(context.Background(), "missing", domain.StatusPacked)

	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestUpdateStatusHappyPath(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-widget",
		Status: domain.StatusPending, Quantity: 1, UnitPrice: 1500,
	})

	item, err := f.svc.UpdateOrderItemStatus(context.Background(), "item-1", domain.StatusPacked)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusPacked, item.Status)
	assert.Nil(t, item.DeliveredAt)
	assert.Equal(t, domain.StatusPacked, f.orders.items["item-1"].Status)

	require.Len(t, f.outbox.saved, 1)
	assert.Equal(t, "OrderItemStatusChanged", f.outbox.saved[0].EventType)
	assert.True(t, f.beginner.lastTx().committed)
}

func TestUpdateStatusSkippingStepsAllowed(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-widget",
		Status: domain.StatusPending, Quantity: 1,
	})

	item, err := f.svc.UpdateOrderItemStatus(context.Background(), "item-1", domain.StatusDelivered)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, item.Status)
	require.NotNil(t, item.DeliveredAt)
}

func TestUpdateStatusIdempotentNoOp(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-widget",
		Status: domain.StatusShipped, Quantity: 1,
	})

	item, err := f.svc.UpdateOrderItemStatus(context.Background(), "item-1", domain.StatusShipped)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusShipped, item.Status)
	assert.Empty(t, f.outbox.saved, "a no-op must not publish")
	assert.False(t, f.beginner.lastTx().committed)
}

func TestUpdateStatusDeliveredIsFinal(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-widget",
		Status: domain.StatusDelivered, Quantity: 1,
	})

	for _, target := range []domain.OrderItemStatus{
		domain.StatusPending, domain.StatusPacked, domain.StatusShipped, domain.StatusCancelled,
	} {
		_, err := f.svc.UpdateOrderItemStatus(context.Background(), "item-1", target)
		require.Error(t, err, "delivered -> %s must fail", target)
		assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	}

	assert.Equal(t, domain.StatusDelivered, f.orders.items["item-1"].Status)
}

func TestUpdateStatusCancelledIsFinal(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-widget",
		Status: domain.StatusCancelled, Quantity: 1,
	})

	_, err := f.svc.UpdateOrderItemStatus(context.Background(), "item-1", domain.StatusShipped)

	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestUpdateStatusToCancelledRestocks(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-widget",
		Status: domain.StatusPacked, Quantity: 4,
	})

	item, err := f.svc.UpdateOrderItemStatus(context.Background(), "item-1", domain.StatusCancelled)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, item.Status)
	assert.Equal(t, int32(4), f.products.increased["p-widget"])

	require.Len(t, f.outbox.saved, 1)
	assert.Equal(t, "OrderItemCancelled", f.outbox.saved[0].EventType)
	assert.True(t, f.beginner.lastTx().committed)
}

func TestDeliveredAtStampedOnce(t *testing.T) {
	f := newFixture()
	stamped := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-widget",
		Status: domain.StatusDelivered, Quantity: 1, DeliveredAt: &stamped,
	})

	item, err := f.svc.UpdateOrderItemStatus(context.Background(), "item-1", domain.StatusDelivered)

	require.NoError(t, err)
	require.NotNil(t, item.DeliveredAt)
	assert.Equal(t, stamped, *item.DeliveredAt, "repeat delivery must not re-stamp")
}

func TestCancelOrderItemSuccess(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-gadget",
		Status: domain.StatusPending, Quantity: 2,
	})

	item, err := f.svc.CancelOrderItem(context.Background(), "item-1")

	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, item.Status)
	assert.Equal(t, int32(2), f.products.increased["p-gadget"])
	assert.Equal(t, int32(5), f.products.products["p-gadget"].Stock)
	assert.True(t, f.beginner.lastTx().committed)
}

func TestCancelOrderItemAlreadyCancelled(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-gadget",
		Status: domain.StatusCancelled, Quantity: 2,
	})

	_, err := f.svc.CancelOrderItem(context.Background(), "item-1")

	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
	assert.Empty(t, f.products.increased, "double cancel must not restock twice")
}

func TestCancelOrderItemDelivered(t *testing.T) {
	f := newFixture()
	f.seedItem(domain.OrderItem{
		ID: "item-1", OrderID: "order-1", ProductID: "p-gadget",
		Status: domain.StatusDelivered, Quantity: 2,
	})

	_, err := f.svc.CancelOrderItem(context.Background(), "item-1")

	require.Error(t, err)
	assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
}

func TestCancelOrderItemNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CancelOrderItem(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestGetOrderByIDNotFound(t *testing.T) {
	f := newFixture()

	_, err := f.svc.GetOrderByID(context.Background(), "missing")

	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestGetOrdersByCustomerUnknown(t *testing.T) {
	f := newFixture()

	_, err := f.svc.GetOrdersByCustomer(context.Background(), "c-ghost")

	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestGetOrdersByCustomerEmpty(t *testing.T) {
	f := newFixture()

	orders, err := f.svc.GetOrdersByCustomer(context.Background(), "c-1")

	require.NoError(t, err)
	assert.Empty(t, orders)
}
