package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	chargedomain "github.com/smallbiznis/tollgate/internal/charge/domain"
	dispatchdomain "github.com/smallbiznis/tollgate/internal/dispatch/domain"
	ledgerdomain "github.com/smallbiznis/tollgate/internal/ledger/domain"
	tenantdomain "github.com/smallbiznis/tollgate/internal/tenant/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeProvider scripts per-tenant behavior and records call pressure.
type fakeProvider struct {
	mu        sync.Mutex
	callCount map[string]int

	inFlight    atomic.Int32
	maxInFlight atomic.Int32

	// errs maps tenant key to the error sequence its attempts return.
	// After the sequence is exhausted attempts succeed.
	errs map[string][]error

	// noLine marks tenants without a billable line.
	noLine map[string]bool

	callDelay time.Duration
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		callCount: map[string]int{},
		errs:      map[string][]error{},
		noLine:    map[string]bool{},
	}
}

func (p *fakeProvider) enter() {
	cur := p.inFlight.Add(1)
	for {
		max := p.maxInFlight.Load()
		if cur <= max || p.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}
	if p.callDelay > 0 {
		time.Sleep(p.callDelay)
	}
}

func (p *fakeProvider) FindBillableLine(ctx context.Context, tenant tenantdomain.TenantIdentity) (*chargedomain.LineRef, error) {
	p.enter()
	defer p.inFlight.Add(-1)

	p.mu.Lock()
	p.callCount[tenant.TenantKey]++
	var err error
	if seq := p.errs[tenant.TenantKey]; len(seq) > 0 {
		err = seq[0]
		p.errs[tenant.TenantKey] = seq[1:]
	}
	noLine := p.noLine[tenant.TenantKey]
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if noLine {
		return nil, nil
	}
	return &chargedomain.LineRef{SubscriptionID: "sub_" + tenant.TenantKey, ItemID: "li_" + tenant.TenantKey}, nil
}

func (p *fakeProvider) CreateCharge(ctx context.Context, tenant tenantdomain.TenantIdentity, line chargedomain.LineRef, amountCents int64, description string) (string, error) {
	p.enter()
	defer p.inFlight.Add(-1)
	return "ch_" + tenant.TenantKey, nil
}

func (p *fakeProvider) calls(tenantKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.callCount[tenantKey]
}

func newTestDispatcher(provider chargedomain.Provider) (*dispatcher, *[]time.Duration) {
	var delays []time.Duration
	var mu sync.Mutex
	d := &dispatcher{
		log:      zap.NewNop(),
		provider: provider,
		sleep: func(ctx context.Context, dur time.Duration) {
			mu.Lock()
			delays = append(delays, dur)
			mu.Unlock()
		},
	}
	return d, &delays
}

func workItem(tenantKey string, amountCents int64) dispatchdomain.Work {
	return dispatchdomain.Work{
		Tenant: tenantdomain.TenantIdentity{TenantKey: tenantKey, AccessCredential: "sk_" + tenantKey},
		Record: ledgerdomain.BillingRecord{
			TenantKey:   tenantKey,
			BillingDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			UnitCount:   amountCents * 1000,
			AmountCents: amountCents,
		},
	}
}

func defaultOpts() dispatchdomain.Options {
	return dispatchdomain.Options{
		MaxConcurrent: 5,
		MaxAttempts:   3,
		BackoffBase:   time.Second,
		CallTimeout:   time.Second,
	}
}

func TestDispatchOneOutcomePerItemInOrder(t *testing.T) {
	provider := newFakeProvider()
	d, _ := newTestDispatcher(provider)

	work := []dispatchdomain.Work{
		workItem("tnt_a", 2000),
		workItem("tnt_b", 0),
		workItem("tnt_c", 500),
	}
	outcomes := d.Dispatch(context.Background(), work, defaultOpts())

	require.Len(t, outcomes, 3)
	assert.Equal(t, "tnt_a", outcomes[0].TenantKey)
	assert.Equal(t, "tnt_b", outcomes[1].TenantKey)
	assert.Equal(t, "tnt_c", outcomes[2].TenantKey)

	assert.Equal(t, dispatchdomain.OutcomeSuccess, outcomes[0].Status)
	require.NotNil(t, outcomes[0].ChargeID)
	assert.Equal(t, "ch_tnt_a", *outcomes[0].ChargeID)

	assert.Equal(t, dispatchdomain.OutcomeSkipped, outcomes[1].Status)
	assert.Nil(t, outcomes[1].ChargeID)

	assert.Equal(t, dispatchdomain.OutcomeSuccess, outcomes[2].Status)
}

func TestDispatchZeroAmountMakesNoProviderCalls(t *testing.T) {
	provider := newFakeProvider()
	d, _ := newTestDispatcher(provider)

	outcomes := d.Dispatch(context.Background(), []dispatchdomain.Work{workItem("tnt_b", 0)}, defaultOpts())

	require.Len(t, outcomes, 1)
	assert.Equal(t, dispatchdomain.OutcomeSkipped, outcomes[0].Status)
	assert.Equal(t, 0, provider.calls("tnt_b"))
}

func TestDispatchConcurrencyBound(t *testing.T) {
	provider := newFakeProvider()
	provider.callDelay = 10 * time.Millisecond
	d, _ := newTestDispatcher(provider)

	work := make([]dispatchdomain.Work, 20)
	for i := range work {
		work[i] = workItem(fmt.Sprintf("tnt_%02d", i), 100)
	}

	opts := defaultOpts()
	opts.MaxConcurrent = 5
	outcomes := d.Dispatch(context.Background(), work, opts)

	require.Len(t, outcomes, 20)
	for _, outcome := range outcomes {
		assert.Equal(t, dispatchdomain.OutcomeSuccess, outcome.Status)
	}
	assert.LessOrEqual(t, provider.maxInFlight.Load(), int32(5))
}

func TestDispatchNonRetryableFailsAfterOneAttempt(t *testing.T) {
	provider := newFakeProvider()
	provider.errs["tnt_a"] = []error{fmt.Errorf("%w: bad key", chargedomain.ErrAuth)}
	d, delays := newTestDispatcher(provider)

	outcomes := d.Dispatch(context.Background(), []dispatchdomain.Work{workItem("tnt_a", 2000)}, defaultOpts())

	require.Len(t, outcomes, 1)
	assert.Equal(t, dispatchdomain.OutcomeFailed, outcomes[0].Status)
	require.NotNil(t, outcomes[0].ErrorMessage)
	assert.Contains(t, *outcomes[0].ErrorMessage, "bad key")
	assert.Equal(t, 1, provider.calls("tnt_a"))
	assert.Empty(t, *delays)
}

func TestDispatchRetriesWithDoublingBackoff(t *testing.T) {
	provider := newFakeProvider()
	provider.errs["tnt_a"] = []error{
		fmt.Errorf("%w: try later", chargedomain.ErrRateLimited),
		fmt.Errorf("%w: blip", chargedomain.ErrServer),
	}
	d, delays := newTestDispatcher(provider)

	opts := defaultOpts()
	opts.BackoffBase = time.Second
	outcomes := d.Dispatch(context.Background(), []dispatchdomain.Work{workItem("tnt_a", 2000)}, opts)

	require.Len(t, outcomes, 1)
	assert.Equal(t, dispatchdomain.OutcomeSuccess, outcomes[0].Status)
	assert.Equal(t, 3, provider.calls("tnt_a"))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)
}

func TestDispatchExhaustsAttemptBudget(t *testing.T) {
	provider := newFakeProvider()
	provider.errs["tnt_a"] = []error{
		fmt.Errorf("%w: down", chargedomain.ErrServer),
		fmt.Errorf("%w: down", chargedomain.ErrServer),
		fmt.Errorf("%w: still down", chargedomain.ErrServer),
	}
	d, delays := newTestDispatcher(provider)

	outcomes := d.Dispatch(context.Background(), []dispatchdomain.Work{workItem("tnt_a", 2000)}, defaultOpts())

	require.Len(t, outcomes, 1)
	assert.Equal(t, dispatchdomain.OutcomeFailed, outcomes[0].Status)
	require.NotNil(t, outcomes[0].ErrorMessage)
	assert.Contains(t, *outcomes[0].ErrorMessage, "still down")
	assert.Equal(t, 3, provider.calls("tnt_a"))
	assert.Len(t, *delays, 2)
}

func TestDispatchNoBillableLineFailsWithoutRetry(t *testing.T) {
	provider := newFakeProvider()
	provider.noLine["tnt_a"] = true
	d, _ := newTestDispatcher(provider)

	outcomes := d.Dispatch(context.Background(), []dispatchdomain.Work{workItem("tnt_a", 2000)}, defaultOpts())

	require.Len(t, outcomes, 1)
	assert.Equal(t, dispatchdomain.OutcomeFailed, outcomes[0].Status)
	require.NotNil(t, outcomes[0].ErrorMessage)
	assert.Contains(t, *outcomes[0].ErrorMessage, "no active billable subscription")
	assert.Equal(t, 1, provider.calls("tnt_a"))
}

func TestDispatchIsolatesFailures(t *testing.T) {
	provider := newFakeProvider()
	provider.errs["tnt_b"] = []error{fmt.Errorf("%w: bad key", chargedomain.ErrAuth)}
	d, _ := newTestDispatcher(provider)

	work := []dispatchdomain.Work{
		workItem("tnt_a", 100),
		workItem("tnt_b", 200),
		workItem("tnt_c", 300),
	}
	outcomes := d.Dispatch(context.Background(), work, defaultOpts())

	require.Len(t, outcomes, 3)
	assert.Equal(t, dispatchdomain.OutcomeSuccess, outcomes[0].Status)
	assert.Equal(t, dispatchdomain.OutcomeFailed, outcomes[1].Status)
	assert.Equal(t, dispatchdomain.OutcomeSuccess, outcomes[2].Status)
}
