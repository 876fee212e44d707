package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/cod-backoffice/internal/commission"
	"github.com/mmeshcher/cod-backoffice/internal/currency"
	"github.com/mmeshcher/cod-backoffice/internal/model"
	"github.com/mmeshcher/cod-backoffice/internal/notify"
	"github.com/mmeshcher/cod-backoffice/internal/repository"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *stubPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *stubPublisher) Close() error { return nil }

func (p *stubPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	res := make([]string, 0, len(p.events))
	for _, e := range p.events {
		res = append(res, e.Type)
	}
	return res
}

type fixture struct {
	svc   *Service
	pub   *stubPublisher
	owner Actor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	rates, err := currency.NewTable("SAR", "AED", currency.DefaultRates())
	require.NoError(t, err)
	settlement, err := currency.NewTable("PKR", "AED", currency.DefaultSettlementRates())
	require.NoError(t, err)

	pub := &stubPublisher{}
	engine := commission.NewEngine(decimal.RequireFromString("0.12"), settlement)
	svc := NewService(repository.NewMemoryRepository(), currency.NewProvider(rates), engine, pub, opts...)
	t.Cleanup(func() { _ = svc.Close() })

	return &fixture{svc: svc, pub: pub, owner: Actor{ID: uuid.New(), Role: model.RoleOwner}}
}

func (f *fixture) party(t *testing.T, in CreatePartyInput) Actor {
	t.Helper()
	p, err := f.svc.CreateParty(context.Background(), f.owner, in)
	require.NoError(t, err)
	return Actor{ID: p.ID, Role: p.Role}
}

func (f *fixture) agent(t *testing.T) Actor {
	return f.party(t, CreatePartyInput{Role: model.RoleAgent, Name: "Agent"})
}

func (f *fixture) driver(t *testing.T, country model.Country, perOrder int64) Actor {
	return f.party(t, CreatePartyInput{
		Role: model.RoleDriver, Name: "Driver", Country: country,
		CommissionPerOrder: decimal.NewFromInt(perOrder),
	})
}

func (f *fixture) product(t *testing.T, country model.Country, purchased int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	p, err := f.svc.CreateProduct(ctx, f.owner, CreateProductInput{Name: "Serum", Price: decimal.NewFromInt(50), Currency: "SAR"})
	require.NoError(t, err)
	if purchased > 0 {
		_, err = f.svc.PurchaseStock(ctx, f.owner, p.ID, PurchaseInput{Country: country, Quantity: purchased})
		require.NoError(t, err)
	}
	return p.ID
}

func (f *fixture) order(t *testing.T, agent Actor, country model.Country, productID uuid.UUID, qty, unitPrice int64) *model.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), agent, CreateOrderInput{
		Country: country,
		Items:   []OrderItemInput{{ProductID: productID, Quantity: qty, UnitPrice: decimal.NewFromInt(unitPrice)}},
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) deliver(t *testing.T, orderID uuid.UUID, driver Actor) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.AssignDriver(ctx, f.owner, orderID, driver.ID)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, driver, orderID, model.StatusPickedUp)
	require.NoError(t, err)
	o, err := f.svc.SetStatus(ctx, driver, orderID, model.StatusDelivered)
	require.NoError(t, err)
	require.Equal(t, model.StatusDelivered, o.Status)
}

func decimalEqual(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestAgentCommissionUpcomingThenDelivered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKSA, 10)
	productID := f.product(t, model.CountryKSA, 10)

	o := f.order(t, agent, model.CountryKSA, productID, 2, 50)
	decimalEqual(t, "100", o.Total)

	sum, err := f.svc.AgentCommission(ctx, agent, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "PKR", sum.Currency)
	decimalEqual(t, "894", sum.UpcomingCommission)
	assert.True(t, sum.DeliveredCommission.IsZero())

	f.deliver(t, o.ID, driver)

	sum, err = f.svc.AgentCommission(ctx, agent, agent.ID)
	require.NoError(t, err)
	decimalEqual(t, "894", sum.DeliveredCommission)
	assert.True(t, sum.UpcomingCommission.IsZero())

	w, err := f.svc.Wallet(ctx, agent, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "PKR", w.Currency)
	decimalEqual(t, "894", w.Available)

	_, err = f.svc.AgentCommission(ctx, f.agent(t), agent.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestDriverCommissionPerDeliveredOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryUAE, 20)
	productID := f.product(t, model.CountryUAE, 10)

	for range 3 {
		o := f.order(t, agent, model.CountryUAE, productID, 1, 100)
		f.deliver(t, o.ID, driver)
	}
	cancelled := f.order(t, agent, model.CountryUAE, productID, 1, 100)
	_, err := f.svc.SetStatus(ctx, f.owner, cancelled.ID, model.StatusCancelled)
	require.NoError(t, err)

	sum, err := f.svc.DriverCommission(ctx, driver, driver.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.DeliveredOrders)
	assert.Equal(t, "AED", sum.Currency)
	decimalEqual(t, "60", sum.Commission)

	w, err := f.svc.Wallet(ctx, driver, driver.ID)
	require.NoError(t, err)
	decimalEqual(t, "60", w.Earned)
	decimalEqual(t, "60", w.Available)
}

func TestDeliveredTwiceSettlesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKSA, 15)
	productID := f.product(t, model.CountryKSA, 10)

	o := f.order(t, agent, model.CountryKSA, productID, 3, 50)
	f.deliver(t, o.ID, driver)

	again, err := f.svc.SetStatus(ctx, driver, o.ID, model.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDelivered, again.Status)

	report, err := f.svc.StockReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, int64(3), report[0].DeliveredQty)
	assert.Equal(t, int64(7), report[0].LeftQty)

	w, err := f.svc.Wallet(ctx, driver, driver.ID)
	require.NoError(t, err)
	decimalEqual(t, "15", w.Earned)
}

func TestRemittanceMinimumAndBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKSA, 10)
	productID := f.product(t, model.CountryKSA, 10)

	// 1000 SAR * 0.12 * 74.5 = 8940 PKR
	o := f.order(t, agent, model.CountryKSA, productID, 1, 1000)
	f.deliver(t, o.ID, driver)

	_, err := f.svc.RequestRemittance(ctx, agent, RemittanceInput{Amount: decimal.NewFromInt(9999)})
	var below *model.BelowMinimumError
	require.ErrorAs(t, err, &below)
	assert.Equal(t, "PKR", below.Currency)
	assert.ErrorIs(t, err, model.ErrBelowMinimum)

	_, err = f.svc.RequestRemittance(ctx, agent, RemittanceInput{Amount: decimal.NewFromInt(10000)})
	var short *model.InsufficientBalanceError
	require.ErrorAs(t, err, &short)
	decimalEqual(t, "8940", short.Available)

	_, err = f.svc.RequestRemittance(ctx, f.owner, RemittanceInput{Amount: decimal.NewFromInt(10000)})
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestRemittanceLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithMinRemittance(decimal.NewFromInt(100)))
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKSA, 10)
	productID := f.product(t, model.CountryKSA, 10)
	manager := f.party(t, CreatePartyInput{Role: model.RoleManager, Name: "Manager"})

	o := f.order(t, agent, model.CountryKSA, productID, 1, 1000)
	f.deliver(t, o.ID, driver)

	r, err := f.svc.RequestRemittance(ctx, agent, RemittanceInput{Amount: decimal.NewFromInt(5000), Note: "weekly"})
	require.NoError(t, err)
	assert.Equal(t, model.RemittancePending, r.Status)
	assert.Equal(t, "PKR", r.Currency)

	r, err = f.svc.ApproveRemittance(ctx, manager, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RemittanceApproved, r.Status)

	_, err = f.svc.SendRemittance(ctx, manager, r.ID, SendInput{})
	assert.ErrorIs(t, err, model.ErrForbidden)

	actual := decimal.NewFromInt(4900)
	r, err = f.svc.SendRemittance(ctx, f.owner, r.ID, SendInput{ActualAmount: &actual})
	require.NoError(t, err)
	assert.Equal(t, model.RemittanceSent, r.Status)
	require.NotNil(t, r.SentAmount)
	decimalEqual(t, "4900", *r.SentAmount)

	_, err = f.svc.SendRemittance(ctx, f.owner, r.ID, SendInput{})
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	w, err := f.svc.Wallet(ctx, agent, agent.ID)
	require.NoError(t, err)
	decimalEqual(t, "4900", w.Sent)
	decimalEqual(t, "4040", w.Available)

	list, err := f.svc.ListRemittances(ctx, agent, model.RemittanceFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Agent", list[0].RequesterName)

	assert.Contains(t, f.pub.types(), notify.RemittanceSent)
}

func TestConcurrentSendsKeepWalletNonNegative(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKSA, 10)
	productID := f.product(t, model.CountryKSA, 10)

	// 2000 SAR * 0.12 * 74.5 = 17880 PKR
	o := f.order(t, agent, model.CountryKSA, productID, 1, 2000)
	f.deliver(t, o.ID, driver)

	var ids []uuid.UUID
	for range 2 {
		r, err := f.svc.RequestRemittance(ctx, agent, RemittanceInput{Amount: decimal.NewFromInt(10000)})
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}

	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.svc.SendRemittance(ctx, f.owner, id, SendInput{})
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrInsufficientBalance):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)

	w, err := f.svc.Wallet(ctx, f.owner, agent.ID)
	require.NoError(t, err)
	decimalEqual(t, "7880", w.Available)
}

func TestReturnRestocksAndLocksOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKSA, 10)
	productID := f.product(t, model.CountryKSA, 20)

	o := f.order(t, agent, model.CountryKSA, productID, 5, 50)
	f.deliver(t, o.ID, driver)

	report, err := f.svc.StockReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, int64(5), report[0].DeliveredQty)

	_, err = f.svc.SetStatus(ctx, driver, o.ID, model.StatusReturned)
	require.NoError(t, err)

	w, err := f.svc.Wallet(ctx, driver, driver.ID)
	require.NoError(t, err)
	assert.True(t, w.Earned.IsZero(), "returned order no longer counts as earned")

	_, err = f.svc.VerifyReturn(ctx, f.owner, o.ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	sub, err := f.svc.SubmitReturn(ctx, driver, o.ID, ReturnInput{Reason: "customer refused"})
	require.NoError(t, err)
	assert.True(t, sub.ReturnSubmitted)

	verified, err := f.svc.VerifyReturn(ctx, f.owner, o.ID)
	require.NoError(t, err)
	assert.True(t, verified.Locked())

	report, err = f.svc.StockReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report[0].DeliveredQty)
	assert.Equal(t, int64(20), report[0].LeftQty)

	_, err = f.svc.VerifyReturn(ctx, f.owner, o.ID)
	assert.ErrorIs(t, err, model.ErrImmutable)
	_, err = f.svc.SetStatus(ctx, f.owner, o.ID, model.StatusPending)
	assert.ErrorIs(t, err, model.ErrImmutable)

	view, err := f.svc.GetOrder(ctx, f.owner, o.ID)
	require.NoError(t, err)
	assert.Empty(t, view.AllowedStatuses)
}

func TestCancelledOrderReturnWithoutDeduction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	productID := f.product(t, model.CountryKSA, 4)

	o := f.order(t, agent, model.CountryKSA, productID, 2, 50)
	_, err := f.svc.SetStatus(ctx, f.owner, o.ID, model.StatusCancelled)
	require.NoError(t, err)
	_, err = f.svc.SubmitReturn(ctx, f.owner, o.ID, ReturnInput{})
	require.NoError(t, err)
	_, err = f.svc.VerifyReturn(ctx, f.owner, o.ID)
	require.NoError(t, err)

	report, err := f.svc.StockReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report[0].DeliveredQty)
	assert.Equal(t, int64(4), report[0].LeftQty)
}

func TestAssignDriverCountryMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryUAE, 10)
	productID := f.product(t, model.CountryKSA, 5)

	o := f.order(t, agent, model.CountryKSA, productID, 1, 50)
	_, err := f.svc.AssignDriver(ctx, f.owner, o.ID, driver.ID)
	var mismatch *model.CountryMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, model.CountryKSA, mismatch.OrderCountry)

	got, err := f.svc.GetOrder(ctx, f.owner, o.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DriverID)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestSetStatusRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	productID := f.product(t, model.CountryKSA, 5)

	o := f.order(t, agent, model.CountryKSA, productID, 1, 50)
	_, err := f.svc.SetStatus(ctx, f.owner, o.ID, model.StatusDelivered)
	var te *model.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, model.StatusPending, te.From)

	_, err = f.svc.SetStatus(ctx, f.owner, o.ID, "lost")
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.svc.SetStatus(ctx, f.owner, o.ID, model.StatusAssigned)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestDeliveryBlockedByInsufficientStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKSA, 10)
	productID := f.product(t, model.CountryKSA, 2)

	o := f.order(t, agent, model.CountryKSA, productID, 5, 50)
	_, err := f.svc.AssignDriver(ctx, f.owner, o.ID, driver.ID)
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, driver, o.ID, model.StatusPickedUp)
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, driver, o.ID, model.StatusDelivered)
	var short *model.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(2), short.Left)

	got, err := f.svc.GetOrder(ctx, f.owner, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPickedUp, got.Status)
	assert.False(t, got.InventoryAdjusted)
	assert.Nil(t, got.CommissionAccruedAt)

	w, err := f.svc.Wallet(ctx, driver, driver.ID)
	require.NoError(t, err)
	assert.True(t, w.Earned.IsZero())
}

func TestDriverSeesOnlyOwnOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	mine := f.driver(t, model.CountryKSA, 10)
	other := f.driver(t, model.CountryKSA, 10)
	productID := f.product(t, model.CountryKSA, 10)

	a := f.order(t, agent, model.CountryKSA, productID, 1, 50)
	b := f.order(t, agent, model.CountryKSA, productID, 1, 50)
	_, err := f.svc.AssignDriver(ctx, f.owner, a.ID, mine.ID)
	require.NoError(t, err)
	_, err = f.svc.AssignDriver(ctx, f.owner, b.ID, other.ID)
	require.NoError(t, err)

	list, err := f.svc.ListOrders(ctx, mine, model.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	_, err = f.svc.SetStatus(ctx, mine, b.ID, model.StatusPickedUp)
	assert.ErrorIs(t, err, model.ErrForbidden)
	_, err = f.svc.GetOrder(ctx, mine, b.ID)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestInvestorAccrualOnDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKSA, 10)
	investor := f.party(t, CreatePartyInput{Role: model.RoleInvestor, Name: "Investor", Currency: "SAR"})
	productID := f.product(t, model.CountryKSA, 10)

	inv, err := f.svc.CreateInvestment(ctx, f.owner, CreateInvestmentInput{
		InvestorID: investor.ID, ProductID: productID, Amount: decimal.NewFromInt(500),
		Quantity: 4, ProfitPerUnit: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "SAR", inv.Currency)

	o := f.order(t, agent, model.CountryKSA, productID, 3, 50)
	assert.Equal(t, []uuid.UUID{inv.ID}, o.InvestmentIDs)
	f.deliver(t, o.ID, driver)

	list, err := f.svc.ListInvestments(ctx, investor, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(3), list[0].UnitsSold)
	decimalEqual(t, "150", list[0].TotalRevenue)
	decimalEqual(t, "15", list[0].TotalProfit)

	w, err := f.svc.Wallet(ctx, investor, investor.ID)
	require.NoError(t, err)
	decimalEqual(t, "15", w.Available)
}

func TestInvestorRevenueConvertedToInvestmentCurrency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	agent := f.agent(t)
	driver := f.driver(t, model.CountryKuwait, 2)
	investor := f.party(t, CreatePartyInput{Role: model.RoleInvestor, Name: "Investor", Currency: "SAR"})
	productID := f.product(t, model.CountryKuwait, 10)

	inv, err := f.svc.CreateInvestment(ctx, f.owner, CreateInvestmentInput{
		InvestorID: investor.ID, ProductID: productID, Amount: decimal.NewFromInt(500),
		Quantity: 5, ProfitPerUnit: decimal.NewFromInt(4),
	})
	require.NoError(t, err)

	o := f.order(t, agent, model.CountryKuwait, productID, 2, 10)
	require.Equal(t, "KWD", o.Currency)
	assert.Equal(t, []uuid.UUID{inv.ID}, o.InvestmentIDs)
	f.deliver(t, o.ID, driver)

	list, err := f.svc.ListInvestments(ctx, investor, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "SAR", list[0].Currency)
	decimalEqual(t, "244", list[0].TotalRevenue)
	decimalEqual(t, "8", list[0].TotalProfit)
}

func TestManualReceiptFlagsExcess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	driver := f.driver(t, model.CountryUAE, 20)

	rc, err := f.svc.IssueManualReceipt(ctx, f.owner, ManualReceiptInput{PartyID: driver.ID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.True(t, rc.ExceedsAvailable)
	assert.Equal(t, "AED", rc.Currency)

	w, err := f.svc.Wallet(ctx, driver, driver.ID)
	require.NoError(t, err)
	assert.True(t, w.Sent.IsZero())
	assert.Contains(t, f.pub.types(), notify.ManualReceipt)
}

func TestPublishFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	agent := f.agent(t)
	productID := f.product(t, model.CountryKSA, 1)

	o := f.order(t, agent, model.CountryKSA, productID, 1, 50)
	assert.NotEqual(t, uuid.Nil, o.ID)
	assert.Contains(t, f.pub.types(), notify.OrderCreated)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	f := newFixture(t)
	agent := f.agent(t)

	_, err := f.svc.CreateOrder(context.Background(), agent, CreateOrderInput{
		Country: model.CountryKSA,
		Items:   []OrderItemInput{{ProductID: uuid.New(), Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
	})
	var ve *model.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "items[0].productRef", ve.Field)
}

func TestGetPartyMasksPayoutForOthers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	p, err := f.svc.CreateParty(ctx, f.owner, CreatePartyInput{
		Role: model.RoleDriver, Name: "Driver", Country: model.CountryUAE,
		Payout: model.BankProfile{BankName: "Emirates NBD", AccountTitle: "Driver", IBAN: "AE070331234567890123456"},
	})
	require.NoError(t, err)

	own, err := f.svc.GetParty(ctx, Actor{ID: p.ID, Role: model.RoleDriver}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "AE070331234567890123456", own.Payout.(model.BankProfile).IBAN)

	masked, err := f.svc.GetParty(ctx, f.owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "*******************3456", masked.Payout.(model.BankProfile).IBAN)
}

func TestBootstrapOwnerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id := uuid.New()

	first, err := f.svc.BootstrapOwner(ctx, id, "Owner")
	require.NoError(t, err)
	assert.Equal(t, model.RoleOwner, first.Role)

	second, err := f.svc.BootstrapOwner(ctx, id, "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Owner", second.Name)

	driver := f.driver(t, model.CountryUAE, 10)
	_, err = f.svc.BootstrapOwner(ctx, driver.ID, "Owner")
	assert.ErrorIs(t, err, model.ErrForbidden)
}
