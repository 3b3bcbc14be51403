package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/inventory"
	"storefront/internal/models"
	"storefront/internal/payment"
	"storefront/internal/pricing"
)

/* =========================
   FAKE COLLABORATORS
========================= */

type fakeUsers struct {
	users map[primitive.ObjectID]models.User
}

func (f *fakeUsers) GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	user, ok := f.users[id]
	if !ok {
		return models.User{}, NotFoundError{Resource: "user", Key: id.Hex()}
	}
	return user, nil
}

type fakeProducts struct {
	products      map[primitive.ObjectID]*models.Product
	failIncrement map[primitive.ObjectID]bool
	noStock       map[primitive.ObjectID]bool
	missDecrement map[primitive.ObjectID]bool
}

func (f *fakeProducts) GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	product, ok := f.products[id]
	if !ok || product.IsDeleted {
		return models.Product{}, NotFoundError{Resource: "product", Key: id.Hex()}
	}
	return *product, nil
}

func (f *fakeProducts) HasStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	if f.noStock[id] {
		return false, nil
	}
	product, ok := f.products[id]
	return ok && product.Stock >= qty, nil
}

func (f *fakeProducts) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	if f.missDecrement[id] {
		return false, nil
	}
	product, ok := f.products[id]
	if !ok || product.IsDeleted || product.Stock < qty {
		return false, nil
	}
	product.Stock -= qty
	return true, nil
}

func (f *fakeProducts) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	if f.failIncrement[id] {
		return errors.New("simulated restock failure")
	}
	product, ok := f.products[id]
	if !ok {
		return NotFoundError{Resource: "product", Key: id.Hex()}
	}
	product.Stock += qty
	return nil
}

type fakeCarts struct {
	items   map[primitive.ObjectID][]models.CartItem
	cleared map[primitive.ObjectID]bool
}

func (f *fakeCarts) GetLines(ctx context.Context, userID primitive.ObjectID) ([]models.CartItem, error) {
	return f.items[userID], nil
}

func (f *fakeCarts) IsEmpty(ctx context.Context, userID primitive.ObjectID) (bool, error) {
	return len(f.items[userID]) == 0, nil
}

func (f *fakeCarts) Clear(ctx context.Context, userID primitive.ObjectID) error {
	f.items[userID] = nil
	f.cleared[userID] = true
	return nil
}

type fakeRepo struct {
	byID      map[primitive.ObjectID]models.Order
	conflicts int
}

func (r *fakeRepo) Insert(ctx context.Context, order *models.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	order.ID = primitive.NewObjectID()
	r.byID[order.ID] = *order
	return nil
}

func (r *fakeRepo) Load(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	order, ok := r.byID[id]
	if !ok {
		return models.Order{}, NotFoundError{Resource: "order", Key: id.Hex()}
	}
	return order, nil
}

func (r *fakeRepo) LoadByNumber(ctx context.Context, orderNumber string) (models.Order, error) {
	for _, order := range r.byID {
		if order.OrderNumber == orderNumber {
			return order, nil
		}
	}
	return models.Order{}, NotFoundError{Resource: "order", Key: orderNumber}
}

func (r *fakeRepo) Save(ctx context.Context, order *models.Order) error {
	if r.conflicts > 0 {
		r.conflicts--
		return ErrVersionConflict
	}
	stored, ok := r.byID[order.ID]
	if !ok {
		return NotFoundError{Resource: "order", Key: order.ID.Hex()}
	}
	if stored.Version != order.Version {
		return ErrVersionConflict
	}
	order.Version++
	r.byID[order.ID] = *order
	return nil
}

func (r *fakeRepo) List(ctx context.Context, filter ListFilter, page, limit int64) ([]models.Order, int64, error) {
	var result []models.Order
	for _, order := range r.byID {
		if filter.UserID != nil && order.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		result = append(result, order)
	}
	return result, int64(len(result)), nil
}

func (r *fakeRepo) CountByStatus(ctx context.Context, status models.OrderStatus) (int64, error) {
	var count int64
	for _, order := range r.byID {
		if order.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) RevenueBetween(ctx context.Context, from, to time.Time) (models.Money, error) {
	total := models.ZeroMoney()
	for _, order := range r.byID {
		if order.PaymentStatus != models.PaymentStatusPaid {
			continue
		}
		if order.CreatedAt.Before(from) || !order.CreatedAt.Before(to) {
			continue
		}
		total = total.Add(order.TotalAmount)
	}
	return total, nil
}

type fakeGateway struct {
	failCharge  bool
	chargeCalls int
	initCalls   int
}

func (g *fakeGateway) Initialize(ctx context.Context, orderNumber string) (string, error) {
	g.initCalls++
	return "PAY-TEST-" + orderNumber, nil
}

func (g *fakeGateway) Charge(ctx context.Context, handle string, amount models.Money) (string, error) {
	g.chargeCalls++
	if g.failCharge {
		return "", payment.ErrChargeDeclined
	}
	return "TXN-TEST", nil
}

func (g *fakeGateway) Verify(ctx context.Context, transactionID string) error {
	return nil
}

/* =========================
   FIXTURE
========================= */

type fixture struct {
	userID   primitive.ObjectID
	productA primitive.ObjectID // stock 5, price 10.00
	productB primitive.ObjectID // stock 0, price 5.00
	productC primitive.ObjectID // stock 10, price 100.00

	users    *fakeUsers
	products *fakeProducts
	carts    *fakeCarts
	repo     *fakeRepo
	gateway  *fakeGateway
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		userID:   primitive.NewObjectID(),
		productA: primitive.NewObjectID(),
		productB: primitive.NewObjectID(),
		productC: primitive.NewObjectID(),
	}

	f.users = &fakeUsers{users: map[primitive.ObjectID]models.User{
		f.userID: {ID: f.userID, Email: "alex@example.com", IsActive: true},
	}}
	f.products = &fakeProducts{
		products: map[primitive.ObjectID]*models.Product{
			f.productA: {ID: f.productA, Name: "Product A", Price: models.MustMoney("10.00"), Stock: 5, IsActive: true},
			f.productB: {ID: f.productB, Name: "Product B", Price: models.MustMoney("5.00"), Stock: 0, IsActive: true},
			f.productC: {ID: f.productC, Name: "Product C", Price: models.MustMoney("100.00"), Stock: 10, IsActive: true},
		},
		failIncrement: map[primitive.ObjectID]bool{},
		noStock:       map[primitive.ObjectID]bool{},
		missDecrement: map[primitive.ObjectID]bool{},
	}
	f.carts = &fakeCarts{
		items:   map[primitive.ObjectID][]models.CartItem{},
		cleared: map[primitive.ObjectID]bool{},
	}
	f.repo = &fakeRepo{byID: map[primitive.ObjectID]models.Order{}}
	f.gateway = &fakeGateway{}

	f.svc = NewService(
		f.users,
		f.products,
		f.carts,
		f.repo,
		inventory.NewCoordinator(f.products),
		f.gateway,
		pricing.DefaultRules(),
		DefaultLimits(),
	)
	return f
}

func (f *fixture) createRequest(items ...LineRequest) CreateRequest {
	return CreateRequest{
		Items: items,
		Shipping: models.ShippingInfo{
			Name:    "Alex Example",
			Address: "1 Main St",
			City:    "Bursa",
			Region:  "Bursa",
		},
		PaymentMethod: "card",
	}
}

func checkTotalInvariant(t *testing.T, order models.Order) {
	t.Helper()
	want := order.Subtotal.Add(order.TaxAmount).Add(order.ShippingAmount).Sub(order.DiscountAmount)
	if !order.TotalAmount.Equal(want) {
		t.Fatalf("total invariant broken: total=%s subtotal=%s tax=%s shipping=%s discount=%s",
			order.TotalAmount, order.Subtotal, order.TaxAmount, order.ShippingAmount, order.DiscountAmount)
	}
	for _, amount := range []models.Money{order.Subtotal, order.TaxAmount, order.ShippingAmount, order.DiscountAmount, order.TotalAmount} {
		if amount.IsNegative() {
			t.Fatalf("negative amount on order: %s", amount)
		}
	}
}

/* =========================
   CREATE
========================= */

func TestCreateOrderComputesPricingAndReservesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, f.userID, f.createRequest(LineRequest{ProductID: f.productA, Quantity: 2}))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if order.Status != models.OrderStatusPending || order.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("expected PENDING/PENDING, got %s/%s", order.Status, order.PaymentStatus)
	}
	if order.OrderNumber == "" {
		t.Fatal("expected order number to be generated")
	}
	if order.Subtotal.String() != "20.00" {
		t.Fatalf("expected subtotal 20.00, got %s", order.Subtotal)
	}
	if order.ShippingAmount.String() != "15.00" {
		t.Fatalf("expected flat shipping below threshold, got %s", order.ShippingAmount)
	}
	checkTotalInvariant(t, order)

	if f.products.products[f.productA].Stock != 3 {
		t.Fatalf("expected stock 3 after reservation, got %d", f.products.products[f.productA].Stock)
	}
	if _, err := f.repo.Load(ctx, order.ID); err != nil {
		t.Fatalf("expected order persisted: %v", err)
	}

	line := order.Items[0]
	if line.Name != "Product A" {
		t.Fatalf("expected frozen product name, got %q", line.Name)
	}
	if !line.TotalPrice.Equal(line.UnitPrice.MulInt(line.Quantity)) {
		t.Fatal("line total invariant broken")
	}
}

func TestCreateOrderFreeShippingAboveThreshold(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.Create(context.Background(), f.userID,
		f.createRequest(LineRequest{ProductID: f.productC, Quantity: 2}))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !order.ShippingAmount.IsZero() {
		t.Fatalf("expected free shipping for subtotal %s, got %s", order.Subtotal, order.ShippingAmount)
	}
	checkTotalInvariant(t, order)
}

func TestCreateOrderRejectsInactiveUser(t *testing.T) {
	f := newFixture(t)
	inactive := primitive.NewObjectID()
	f.users.users[inactive] = models.User{ID: inactive, IsActive: false}

	_, err := f.svc.Create(context.Background(), inactive,
		f.createRequest(LineRequest{ProductID: f.productA, Quantity: 1}))

	var reqErr InvalidRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected InvalidRequestError for inactive user, got %v", err)
	}
	if len(f.repo.byID) != 0 {
		t.Fatal("nothing should be persisted for a rejected creation")
	}
}

func TestCreateOrderRejectsUnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Create(context.Background(), primitive.NewObjectID(),
		f.createRequest(LineRequest{ProductID: f.productA, Quantity: 1}))

	var notFound NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCreateOrderRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)
	f.products.products[f.productA].IsActive = false

	_, err := f.svc.Create(context.Background(), f.userID,
		f.createRequest(LineRequest{ProductID: f.productA, Quantity: 1}))

	var reqErr InvalidRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected InvalidRequestError for inactive product, got %v", err)
	}
}

func TestCreateOrderLimits(t *testing.T) {
	f := newFixture(t)
	f.svc.limits = Limits{
		MaxLinesPerOrder:   2,
		MaxQuantityPerLine: 3,
		MaxOrderAmount:     models.MustMoney("150.00"),
	}
	ctx := context.Background()

	tests := []struct {
		name  string
		items []LineRequest
	}{
		{
			"line count",
			[]LineRequest{
				{ProductID: f.productA, Quantity: 1},
				{ProductID: f.productA, Quantity: 1},
				{ProductID: f.productA, Quantity: 1},
			},
		},
		{
			"line quantity",
			[]LineRequest{{ProductID: f.productA, Quantity: 4}},
		},
		{
			"order amount",
			[]LineRequest{{ProductID: f.productC, Quantity: 2}},
		},
	}
	for _, tt := range tests {
		_, err := f.svc.Create(ctx, f.userID, f.createRequest(tt.items...))

		var limitErr LimitExceededError
		if !errors.As(err, &limitErr) {
			t.Fatalf("%s: expected LimitExceededError, got %v", tt.name, err)
		}
		if len(f.repo.byID) != 0 {
			t.Fatalf("%s: nothing should be persisted", tt.name)
		}
	}
}

func TestCreateFromCartInsufficientStock(t *testing.T) {
	f := newFixture(t)
	f.carts.items[f.userID] = []models.CartItem{
		{ProductID: f.productA, Quantity: 2},
		{ProductID: f.productB, Quantity: 1},
	}

	_, err := f.svc.CreateFromCart(context.Background(), f.userID, f.createRequest())

	var stockErr inventory.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.ProductID != f.productB || stockErr.Requested != 1 || stockErr.Available != 0 {
		t.Fatalf("error should name product B with requested 1, available 0: %+v", stockErr)
	}
	if len(f.repo.byID) != 0 {
		t.Fatal("no order should be persisted")
	}
	if f.carts.cleared[f.userID] {
		t.Fatal("cart must stay untouched on failure")
	}
	if f.products.products[f.productA].Stock != 5 {
		t.Fatal("stock must stay untouched on failure")
	}
}

func TestCreateFromCartPricesAtCurrentPriceAndClearsCart(t *testing.T) {
	f := newFixture(t)
	f.carts.items[f.userID] = []models.CartItem{{ProductID: f.productA, Quantity: 2}}
	// Catalog price changed after the item went into the cart.
	f.products.products[f.productA].Price = models.MustMoney("12.50")

	order, err := f.svc.CreateFromCart(context.Background(), f.userID, f.createRequest())
	if err != nil {
		t.Fatalf("create from cart failed: %v", err)
	}

	if order.Items[0].UnitPrice.String() != "12.50" {
		t.Fatalf("expected current catalog price 12.50, got %s", order.Items[0].UnitPrice)
	}
	if !f.carts.cleared[f.userID] {
		t.Fatal("cart should be cleared after a successful order")
	}
}

func TestCreateChecksStockThroughStore(t *testing.T) {
	f := newFixture(t)
	// The snapshot says 5 in stock but the store reports none; the store
	// answer wins.
	f.products.noStock[f.productA] = true

	_, err := f.svc.Create(context.Background(), f.userID,
		f.createRequest(LineRequest{ProductID: f.productA, Quantity: 1}))

	var stockErr inventory.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(f.repo.byID) != 0 {
		t.Fatal("nothing should be persisted when the stock check fails")
	}
}

func TestCreateFromCartReturnsPersistedOrderOnReservationFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.carts.items[f.userID] = []models.CartItem{{ProductID: f.productA, Quantity: 2}}
	// Stock disappears between the pre-check and the reservation.
	f.products.missDecrement[f.productA] = true

	order, err := f.svc.CreateFromCart(ctx, f.userID, f.createRequest())

	var stockErr inventory.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if order.ID.IsZero() {
		t.Fatal("the persisted order must be returned so the caller can cancel it")
	}
	stored, loadErr := f.repo.Load(ctx, order.ID)
	if loadErr != nil {
		t.Fatalf("expected the order persisted: %v", loadErr)
	}
	if stored.Status != models.OrderStatusPending {
		t.Fatalf("expected the stranded order to stay PENDING, got %s", stored.Status)
	}
	if f.carts.cleared[f.userID] {
		t.Fatal("cart must stay untouched on failure")
	}
}

func TestCreateFromCartEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateFromCart(context.Background(), f.userID, f.createRequest())

	var reqErr InvalidRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected InvalidRequestError for empty cart, got %v", err)
	}
}

func TestCreateHonorsPriceOverrideOnlyWhenAllowed(t *testing.T) {
	f := newFixture(t)
	override := models.MustMoney("1.00")

	req := f.createRequest(LineRequest{ProductID: f.productA, Quantity: 1, UnitPrice: &override})
	order, err := f.svc.Create(context.Background(), f.userID, req)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if order.Items[0].UnitPrice.String() != "10.00" {
		t.Fatalf("override must be ignored without permission, got %s", order.Items[0].UnitPrice)
	}

	req = f.createRequest(LineRequest{ProductID: f.productA, Quantity: 1, UnitPrice: &override})
	req.AllowPriceOverride = true
	order, err = f.svc.Create(context.Background(), f.userID, req)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if order.Items[0].UnitPrice.String() != "1.00" {
		t.Fatalf("expected override price 1.00, got %s", order.Items[0].UnitPrice)
	}
}

/* =========================
   LIFECYCLE
========================= */

func (f *fixture) mustCreate(t *testing.T, items ...LineRequest) models.Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), f.userID, f.createRequest(items...))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return order
}

func TestCancelReleasesStock(t *testing.T) {
	f := newFixture(t)
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 2})

	if f.products.products[f.productA].Stock != 3 {
		t.Fatalf("expected stock 3 after reservation, got %d", f.products.products[f.productA].Stock)
	}

	cancelled, err := f.svc.Cancel(context.Background(), order.ID, "changed my mind")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != models.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Fatal("expected cancelledAt to be set")
	}
	if f.products.products[f.productA].Stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", f.products.products[f.productA].Stock)
	}
	checkTotalInvariant(t, cancelled)
}

func TestCancelWithoutReasonFails(t *testing.T) {
	f := newFixture(t)
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	_, err := f.svc.Cancel(context.Background(), order.ID, "")
	var reqErr InvalidRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected InvalidRequestError, got %v", err)
	}

	stored, _ := f.repo.Load(context.Background(), order.ID)
	if stored.Status != models.OrderStatusPending {
		t.Fatalf("order must stay PENDING, got %s", stored.Status)
	}
	if f.products.products[f.productA].Stock != 4 {
		t.Fatal("reservation must stay in place when cancellation is rejected")
	}
}

func TestCancelSwallowsReleaseFailures(t *testing.T) {
	f := newFixture(t)
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})
	f.products.failIncrement[f.productA] = true

	cancelled, err := f.svc.Cancel(context.Background(), order.ID, "warehouse offline")
	if err != nil {
		t.Fatalf("cancel must not fail on release errors: %v", err)
	}
	if cancelled.Status != models.OrderStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}
}

func TestCancelForUserHidesForeignOrders(t *testing.T) {
	f := newFixture(t)
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	stranger := primitive.NewObjectID()
	_, err := f.svc.CancelForUser(context.Background(), stranger, order.ID, "not mine")

	var notFound NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("foreign order must look like not-found, got %v", err)
	}

	if _, err := f.svc.CancelForUser(context.Background(), f.userID, order.ID, "mine"); err != nil {
		t.Fatalf("owner cancel failed: %v", err)
	}
}

func TestFullLifecycleHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	paid, err := f.svc.ProcessPayment(ctx, order.ID, ProcessPaymentRequest{Handle: "PAY-TEST"})
	if err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	if paid.Status != models.OrderStatusConfirmed {
		t.Fatalf("expected CONFIRMED after payment, got %s", paid.Status)
	}

	processing, err := f.svc.Process(ctx, order.ID)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if processing.Status != models.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", processing.Status)
	}

	shipped, err := f.svc.Ship(ctx, order.ID, "TRACK42")
	if err != nil {
		t.Fatalf("ship failed: %v", err)
	}
	if shipped.TrackingNumber != "TRACK42" || shipped.ShippedAt == nil {
		t.Fatal("expected tracking number and shippedAt")
	}

	delivered, err := f.svc.Deliver(ctx, order.ID)
	if err != nil {
		t.Fatalf("deliver failed: %v", err)
	}
	if delivered.Status != models.OrderStatusDelivered || delivered.DeliveredAt == nil {
		t.Fatal("expected DELIVERED with deliveredAt")
	}
	checkTotalInvariant(t, delivered)
}

func TestShipPendingOrderRejected(t *testing.T) {
	f := newFixture(t)
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	_, err := f.svc.Ship(context.Background(), order.ID, "TRACK1")
	var transitionErr InvalidTransitionError
	if !errors.As(err, &transitionErr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}

	stored, _ := f.repo.Load(context.Background(), order.ID)
	if stored.Status != models.OrderStatusPending {
		t.Fatal("order must be unchanged after a rejected transition")
	}
}

func TestTransitionRetriesOnVersionConflict(t *testing.T) {
	f := newFixture(t)
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})
	if _, err := f.svc.ProcessPayment(context.Background(), order.ID, ProcessPaymentRequest{}); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	f.repo.conflicts = 1
	processing, err := f.svc.Process(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("expected retry to succeed after one conflict: %v", err)
	}
	if processing.Status != models.OrderStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", processing.Status)
	}
}

/* =========================
   PAYMENTS
========================= */

func TestInitializePaymentRequiresPendingStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	handle, err := f.svc.InitializePayment(ctx, order.ID)
	if err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if handle == "" {
		t.Fatal("expected a payment handle")
	}

	if _, err := f.svc.ProcessPayment(ctx, order.ID, ProcessPaymentRequest{Handle: handle}); err != nil {
		t.Fatalf("payment failed: %v", err)
	}

	_, err = f.svc.InitializePayment(ctx, order.ID)
	var reqErr InvalidRequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected InvalidRequestError after payment, got %v", err)
	}
}

func TestProcessPaymentFailureIsDurablyRecorded(t *testing.T) {
	f := newFixture(t)
	f.gateway.failCharge = true
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	_, err := f.svc.ProcessPayment(ctx, order.ID, ProcessPaymentRequest{})
	var paymentErr PaymentFailureError
	if !errors.As(err, &paymentErr) {
		t.Fatalf("expected PaymentFailureError, got %v", err)
	}

	stored, _ := f.repo.Load(ctx, order.ID)
	if stored.PaymentStatus != models.PaymentStatusFailed {
		t.Fatalf("expected FAILED recorded, got %s", stored.PaymentStatus)
	}
	if stored.Status != models.OrderStatusPending {
		t.Fatalf("order status must be unchanged on payment failure, got %s", stored.Status)
	}
}

func TestHandlePaymentCallbackCompletedIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	if err := f.svc.HandlePaymentCallback(ctx, order.OrderNumber, "TXN1", "COMPLETED"); err != nil {
		t.Fatalf("callback failed: %v", err)
	}

	first, _ := f.repo.Load(ctx, order.ID)
	if first.PaymentStatus != models.PaymentStatusPaid {
		t.Fatalf("expected PAID, got %s", first.PaymentStatus)
	}
	if first.Status != models.OrderStatusConfirmed {
		t.Fatalf("expected auto-advance to CONFIRMED, got %s", first.Status)
	}
	if first.TransactionID != "TXN1" || first.PaidAt == nil {
		t.Fatal("expected transaction id and paidAt recorded")
	}

	if err := f.svc.HandlePaymentCallback(ctx, order.OrderNumber, "TXN1", "COMPLETED"); err != nil {
		t.Fatalf("repeated callback must not fail: %v", err)
	}
	second, _ := f.repo.Load(ctx, order.ID)
	if second.PaymentStatus != first.PaymentStatus || second.Status != first.Status ||
		!second.PaidAt.Equal(*first.PaidAt) || second.Version != first.Version {
		t.Fatal("repeated callback must leave the order unchanged")
	}
}

func TestHandlePaymentCallbackUnknownStatusIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	if err := f.svc.HandlePaymentCallback(ctx, order.OrderNumber, "TXN1", "SOMETHING_ELSE"); err != nil {
		t.Fatalf("unknown status must be ignored, got %v", err)
	}

	stored, _ := f.repo.Load(ctx, order.ID)
	if stored.PaymentStatus != models.PaymentStatusPending {
		t.Fatalf("payment status must be unchanged, got %s", stored.PaymentStatus)
	}
}

func TestHandlePaymentCallbackFailedAndProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	if err := f.svc.HandlePaymentCallback(ctx, order.OrderNumber, "TXN1", "PROCESSING"); err != nil {
		t.Fatalf("processing callback failed: %v", err)
	}
	stored, _ := f.repo.Load(ctx, order.ID)
	if stored.PaymentStatus != models.PaymentStatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", stored.PaymentStatus)
	}

	if err := f.svc.HandlePaymentCallback(ctx, order.OrderNumber, "TXN1", "DECLINED"); err != nil {
		t.Fatalf("declined callback failed: %v", err)
	}
	stored, _ = f.repo.Load(ctx, order.ID)
	if stored.PaymentStatus != models.PaymentStatusFailed {
		t.Fatalf("expected FAILED, got %s", stored.PaymentStatus)
	}
	if stored.Status != models.OrderStatusPending {
		t.Fatalf("order status must be unchanged, got %s", stored.Status)
	}
}

func TestHandlePaymentCallbackIgnoresPaidForCancelledOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})
	if _, err := f.svc.Cancel(ctx, order.ID, "abandoned"); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	if err := f.svc.HandlePaymentCallback(ctx, order.OrderNumber, "TXN1", "SUCCESS"); err != nil {
		t.Fatalf("late callback must be ignored, got %v", err)
	}
	stored, _ := f.repo.Load(ctx, order.ID)
	if stored.PaymentStatus == models.PaymentStatusPaid {
		t.Fatal("PAID must not be set after CANCELLED")
	}
}

/* =========================
   DISCOUNTS
========================= */

func TestApplyDiscountSave10(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productC, Quantity: 2})
	if order.Subtotal.String() != "200.00" {
		t.Fatalf("fixture expects subtotal 200.00, got %s", order.Subtotal)
	}

	discounted, err := f.svc.ApplyDiscount(ctx, order.ID, "SAVE10")
	if err != nil {
		t.Fatalf("discount failed: %v", err)
	}
	if discounted.DiscountAmount.String() != "20.00" {
		t.Fatalf("expected discount 20.00, got %s", discounted.DiscountAmount)
	}
	checkTotalInvariant(t, discounted)
}

func TestApplyDiscountUnknownCodeIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	result, err := f.svc.ApplyDiscount(ctx, order.ID, "NOPE")
	if err != nil {
		t.Fatalf("unknown code must not fail: %v", err)
	}
	if !result.DiscountAmount.IsZero() {
		t.Fatalf("expected zero discount, got %s", result.DiscountAmount)
	}
	if !result.TotalAmount.Equal(order.TotalAmount) {
		t.Fatal("total must be unchanged for an unknown code")
	}
}

func TestApplyDiscountFlatCodeCappedAtSubtotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})
	// Subtotal 10.00; the 50.00 flat code must be capped.

	discounted, err := f.svc.ApplyDiscount(ctx, order.ID, "FLAT50")
	if err != nil {
		t.Fatalf("discount failed: %v", err)
	}
	if !discounted.DiscountAmount.Equal(order.Subtotal) {
		t.Fatalf("expected discount capped at subtotal %s, got %s", order.Subtotal, discounted.DiscountAmount)
	}
	checkTotalInvariant(t, discounted)
	if discounted.TotalAmount.IsNegative() {
		t.Fatal("total must never be negative")
	}
}

/* =========================
   QUERIES
========================= */

func TestGetForUserHidesForeignOrders(t *testing.T) {
	f := newFixture(t)
	order := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	if _, err := f.svc.GetForUser(context.Background(), f.userID, order.ID); err != nil {
		t.Fatalf("owner lookup failed: %v", err)
	}

	_, err := f.svc.GetForUser(context.Background(), primitive.NewObjectID(), order.ID)
	var notFound NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected NotFoundError for foreign order, got %v", err)
	}
}

func TestRevenueBetweenCountsOnlyPaidOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	paid := f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})
	if _, err := f.svc.ProcessPayment(ctx, paid.ID, ProcessPaymentRequest{}); err != nil {
		t.Fatalf("payment failed: %v", err)
	}
	f.mustCreate(t, LineRequest{ProductID: f.productA, Quantity: 1})

	paidStored, _ := f.repo.Load(ctx, paid.ID)
	revenue, err := f.svc.RevenueBetween(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("revenue query failed: %v", err)
	}
	if !revenue.Equal(paidStored.TotalAmount) {
		t.Fatalf("expected revenue %s, got %s", paidStored.TotalAmount, revenue)
	}
}
