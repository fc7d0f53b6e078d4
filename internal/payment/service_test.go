package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/covermed/hospital-coverage-scheduling/internal/assignment"
	"github.com/covermed/hospital-coverage-scheduling/internal/audit"
	"github.com/covermed/hospital-coverage-scheduling/internal/notify"
)

// fakePaymentRepo mirrors the unique-per-assignment insert and CAS update
// semantics in memory.
type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[uuid.UUID]*Payment)}
}

func (f *fakePaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePaymentRepo) GetByAssignmentID(_ context.Context, assignmentID uuid.UUID) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.AssignmentID == assignmentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrPaymentNotFound
}

func (f *fakePaymentRepo) InsertOnce(_ context.Context, p Payment) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.payments {
		if existing.AssignmentID == p.AssignmentID {
			cp := *existing
			return &cp, nil
		}
	}
	p.Status = StatusPending
	p.CreatedAt = time.Now()
	f.payments[p.ID] = &p
	cp := p
	return &cp, nil
}

func (f *fakePaymentRepo) MarkPaid(_ context.Context, id uuid.UUID) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok || (p.Status != StatusPending && p.Status != StatusProcessing) {
		return nil, ErrStatusConflict
	}
	p.Status = StatusCompleted
	now := time.Now()
	p.PaidToDoctorAt = &now
	cp := *p
	return &cp, nil
}

func (f *fakePaymentRepo) AdvanceStatus(_ context.Context, id uuid.UUID, from, to Status) (*Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok || p.Status != from {
		return nil, ErrStatusConflict
	}
	p.Status = to
	cp := *p
	return &cp, nil
}

type fakeAssignments struct {
	mu          sync.Mutex
	assignments map[uuid.UUID]*assignment.Assignment
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{assignments: make(map[uuid.UUID]*assignment.Assignment)}
}

func (f *fakeAssignments) GetAssignment(_ context.Context, id uuid.UUID) (*assignment.Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assignments[id]
	if !ok {
		return nil, assignment.ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAssignments) add(status assignment.Status, fee *decimal.Decimal) *assignment.Assignment {
	f.mu.Lock()
	defer f.mu.Unlock()
	a := &assignment.Assignment{
		ID:              uuid.New(),
		HospitalID:      uuid.New(),
		DoctorID:        uuid.New(),
		PatientID:       uuid.New(),
		Status:          status,
		Priority:        assignment.PriorityRoutine,
		ConsultationFee: fee,
	}
	f.assignments[a.ID] = a
	return a
}

func newTestService(t *testing.T) (*Service, *fakePaymentRepo, *fakeAssignments) {
	t.Helper()
	repo := newFakePaymentRepo()
	assignments := newFakeAssignments()
	log := zerolog.Nop()
	svc := NewService(repo, assignments, d("0.15"), audit.LogRecorder{Log: log}, notify.LogSink{Log: log}, log)
	return svc, repo, assignments
}

func TestSettle(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("1000.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	p, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	assert.Equal(t, a.ID, p.AssignmentID)
	assert.Equal(t, a.HospitalID, p.HospitalID)
	assert.Equal(t, a.DoctorID, p.DoctorID)
	assert.Equal(t, StatusPending, p.Status)
	assert.True(t, d("150.00").Equal(p.PlatformCommission), "commission %s", p.PlatformCommission)
	assert.True(t, d("850.00").Equal(p.DoctorPayout), "payout %s", p.DoctorPayout)
	assert.True(t, fee.Equal(p.PlatformCommission.Add(p.DoctorPayout)))
}

func TestSettleIdempotent(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("500.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	first, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	second, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestSettleRequiresCompletedAssignment(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("500.00")

	for _, status := range []assignment.Status{
		assignment.StatusPending,
		assignment.StatusAccepted,
		assignment.StatusCancelled,
		assignment.StatusDeclined,
		assignment.StatusExpired,
	} {
		a := assignments.add(status, &fee)
		_, err := svc.Settle(context.Background(), a.ID)
		assert.ErrorIs(t, err, ErrAssignmentNotCompleted, "status %s", status)
	}
}

func TestSettleRequiresFee(t *testing.T) {
	svc, _, assignments := newTestService(t)
	a := assignments.add(assignment.StatusCompleted, nil)

	_, err := svc.Settle(context.Background(), a.ID)
	assert.ErrorIs(t, err, ErrInvalidFee)
}

func TestSettleUnknownAssignment(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Settle(context.Background(), uuid.New())
	assert.ErrorIs(t, err, assignment.ErrAssignmentNotFound)
}

func TestMarkPaid(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("1000.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	p, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	paid, err := svc.MarkPaid(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, paid.Status)
	assert.NotNil(t, paid.PaidToDoctorAt)

	// Paying again is not a valid transition.
	_, err = svc.MarkPaid(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBeginPayout(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("1000.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	p, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	processing, err := svc.BeginPayout(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, processing.Status)

	// A second hand-off is not a valid transition.
	_, err = svc.BeginPayout(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestBeginPayoutUnknownPayment(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.BeginPayout(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestFailPayout(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("1000.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	p, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	_, err = svc.BeginPayout(context.Background(), p.ID)
	require.NoError(t, err)

	failed, err := svc.FailPayout(context.Background(), p.ID, "account closed")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
}

func TestFailPayoutRequiresProcessing(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("1000.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	p, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	// Still pending: no transfer was ever handed to the gateway.
	_, err = svc.FailPayout(context.Background(), p.ID, "account closed")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMarkPaidFromProcessing(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("1000.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	p, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	_, err = svc.BeginPayout(context.Background(), p.ID)
	require.NoError(t, err)

	paid, err := svc.MarkPaid(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, paid.Status)
}

func TestMarkPaidFromFailedRejected(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("1000.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	p, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	_, err = svc.BeginPayout(context.Background(), p.ID)
	require.NoError(t, err)
	_, err = svc.FailPayout(context.Background(), p.ID, "transfer bounced")
	require.NoError(t, err)

	_, err = svc.MarkPaid(context.Background(), p.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmGatewayPayment(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("750.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	_, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	paid, err := svc.ConfirmGatewayPayment(context.Background(), a.ID, "gw_12345", d("750.00"))
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, paid.Status)
}

func TestConfirmGatewayPaymentAmountMismatch(t *testing.T) {
	svc, _, assignments := newTestService(t)
	fee := d("750.00")
	a := assignments.add(assignment.StatusCompleted, &fee)

	p, err := svc.Settle(context.Background(), a.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmGatewayPayment(context.Background(), a.ID, "gw_12345", d("740.00"))
	assert.ErrorIs(t, err, ErrAmountMismatch)

	// The mismatch left the payment untouched.
	current, err := svc.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, current.Status)
}

func TestConfirmGatewayPaymentWithoutRecord(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ConfirmGatewayPayment(context.Background(), uuid.New(), "gw_12345", d("100.00"))
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}
