package checkin_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"eventpass/internal/checkin"
	"eventpass/internal/kafka"
	"eventpass/internal/logger"
	"eventpass/internal/models"
	"eventpass/internal/qr"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) IsAuthorizedScanner(ctx context.Context, eventID, userID string) (bool, error) {
	args := m.Called(ctx, eventID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockDBLayer) GetTicketTypeByID(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	args := m.Called(ctx, ticketTypeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TicketType), args.Error(1)
}

func (m *MockDBLayer) MarkTicketUsed(ctx context.Context, ticketID, scannerID string, at time.Time) (bool, error) {
	args := m.Called(ctx, ticketID, scannerID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) CancelTicket(ctx context.Context, ticketID string) (bool, error) {
	args := m.Called(ctx, ticketID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDBLayer) InsertCheckInLog(ctx context.Context, entry models.CheckInLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishTicketEvent(ctx context.Context, event kafka.TicketEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

var testSigner = qr.NewSigner("scan-secret")

// signedQR builds a transport string the way issuance does.
func signedQR(t *testing.T, payload qr.Payload) string {
	t.Helper()
	data, err := qr.Encode(payload, testSigner.Sign(payload))
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return data
}

func validPayload() qr.Payload {
	return qr.NewPayload("ticket-1", "event-1", "tenant-1", time.Now(), time.Now().Add(4*time.Hour))
}

func validTicket() *models.Ticket {
	return &models.Ticket{
		TicketID:     "ticket-1",
		TenantID:     "tenant-1",
		EventID:      "event-1",
		TicketTypeID: "type-general",
		OrderID:      "order-1",
		UserID:       "attendee-1",
		Status:       models.TicketStatusValid,
	}
}

func newService(db checkin.DBLayer) *checkin.Service {
	return checkin.NewService(db, testSigner, nil, &logger.Logger{})
}

func expectAuditLog(mockDB *MockDBLayer, outcome checkin.Status) {
	mockDB.On("InsertCheckInLog", mock.Anything, mock.MatchedBy(func(entry models.CheckInLog) bool {
		return entry.Outcome == string(outcome)
	})).Return(nil).Once()
}

func TestValidateSuccess(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-1", "scanner-1").Return(true, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(validTicket(), nil)
	mockDB.On("GetTicketTypeByID", mock.Anything, "type-general").
		Return(&models.TicketType{TicketTypeID: "type-general", Name: "General"}, nil)
	expectAuditLog(mockDB, checkin.StatusSuccess)

	result, err := svc.Validate(context.Background(), signedQR(t, validPayload()), "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusSuccess, result.Status)
	assert.Equal(t, "attendee-1", result.AttendeeID)
	assert.Equal(t, "General", result.TicketTypeName)
	mockDB.AssertExpectations(t)
}

func TestValidateParseError(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)
	expectAuditLog(mockDB, checkin.StatusParseError)

	result, err := svc.Validate(context.Background(), "not even json", "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusParseError, result.Status)
	mockDB.AssertNotCalled(t, "GetTicketByID", mock.Anything, mock.Anything)
}

func TestValidateInvalidSignature(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)
	expectAuditLog(mockDB, checkin.StatusInvalidSignature)

	payload := validPayload()
	data, err := qr.Encode(payload, qr.NewSigner("other-secret").Sign(payload))
	assert.NoError(t, err)

	result, err := svc.Validate(context.Background(), data, "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusInvalidSignature, result.Status)
}

func TestValidateExpiredAfterSignature(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)
	expectAuditLog(mockDB, checkin.StatusTicketExpired)

	// Correctly signed but past its expiry: signature wins first, then the
	// expiry check rejects.
	payload := qr.NewPayload("ticket-1", "event-1", "tenant-1",
		time.Now().Add(-10*time.Hour), time.Now().Add(-5*time.Hour))

	result, err := svc.Validate(context.Background(), signedQR(t, payload), "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusTicketExpired, result.Status)
}

func TestValidateWrongEvent(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)
	expectAuditLog(mockDB, checkin.StatusWrongEvent)

	result, err := svc.Validate(context.Background(), signedQR(t, validPayload()), "event-2", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusWrongEvent, result.Status)
	mockDB.AssertNotCalled(t, "GetTicketByID", mock.Anything, mock.Anything)
}

func TestValidateUnauthorizedBeforeTicketLookup(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-1", "random-user").Return(false, nil)
	expectAuditLog(mockDB, checkin.StatusUnauthorized)

	result, err := svc.Validate(context.Background(), signedQR(t, validPayload()), "event-1", "random-user")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusUnauthorized, result.Status)
	mockDB.AssertNotCalled(t, "GetTicketByID", mock.Anything, mock.Anything)
}

func TestValidateTicketNotFound(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-1", "scanner-1").Return(true, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(nil, sql.ErrNoRows)
	expectAuditLog(mockDB, checkin.StatusTicketNotFound)

	result, err := svc.Validate(context.Background(), signedQR(t, validPayload()), "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusTicketNotFound, result.Status)
}

func TestValidateAlreadyUsedIncludesPriorScan(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	usedAt := time.Now().Add(-10 * time.Minute)
	used := validTicket()
	used.Status = models.TicketStatusUsed
	used.CheckedInAt = usedAt
	used.CheckedInBy = "scanner-0"

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-1", "scanner-1").Return(true, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(used, nil)
	mockDB.On("GetTicketTypeByID", mock.Anything, "type-general").
		Return(&models.TicketType{Name: "General"}, nil)
	expectAuditLog(mockDB, checkin.StatusAlreadyUsed)

	result, err := svc.Validate(context.Background(), signedQR(t, validPayload()), "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusAlreadyUsed, result.Status)
	assert.Equal(t, "scanner-0", result.CheckedInBy)
	assert.Equal(t, usedAt, result.CheckedInAt)
}

func TestValidateCancelledTicket(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	cancelled := validTicket()
	cancelled.Status = models.TicketStatusCancelled

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-1", "scanner-1").Return(true, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(cancelled, nil)
	mockDB.On("GetTicketTypeByID", mock.Anything, "type-general").
		Return(&models.TicketType{Name: "General"}, nil)
	expectAuditLog(mockDB, checkin.StatusTicketCancelled)

	result, err := svc.Validate(context.Background(), signedQR(t, validPayload()), "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusTicketCancelled, result.Status)
}

func TestCheckInSuccess(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockKafka := new(MockPublisher)
	svc := checkin.NewService(mockDB, testSigner, mockKafka, &logger.Logger{})

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-1", "scanner-1").Return(true, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(validTicket(), nil)
	mockDB.On("GetTicketTypeByID", mock.Anything, "type-general").
		Return(&models.TicketType{Name: "General"}, nil)
	mockDB.On("MarkTicketUsed", mock.Anything, "ticket-1", "scanner-1", mock.Anything).Return(true, nil)
	expectAuditLog(mockDB, checkin.StatusSuccess)
	mockKafka.On("PublishTicketEvent", mock.Anything, mock.MatchedBy(func(event kafka.TicketEvent) bool {
		return event.Kind == kafka.EventTicketCheckedIn && event.TicketIDs[0] == "ticket-1"
	})).Return(nil)

	result, err := svc.CheckIn(context.Background(), "ticket-1", "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusSuccess, result.Status)
	assert.Equal(t, "scanner-1", result.CheckedInBy)
	mockDB.AssertExpectations(t)
	mockKafka.AssertExpectations(t)
}

func TestCheckInLosesOptimisticLockRace(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	// Both scans validated while the ticket was still valid; this one loses
	// the conditional update and must report the settled state.
	used := validTicket()
	used.Status = models.TicketStatusUsed
	used.CheckedInBy = "scanner-other"

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-1", "scanner-1").Return(true, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(validTicket(), nil).Once()
	mockDB.On("MarkTicketUsed", mock.Anything, "ticket-1", "scanner-1", mock.Anything).Return(false, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(used, nil).Once()
	mockDB.On("GetTicketTypeByID", mock.Anything, "type-general").
		Return(&models.TicketType{Name: "General"}, nil)
	expectAuditLog(mockDB, checkin.StatusAlreadyUsed)

	result, err := svc.CheckIn(context.Background(), "ticket-1", "event-1", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusAlreadyUsed, result.Status)
	assert.Equal(t, "scanner-other", result.CheckedInBy)
	mockDB.AssertExpectations(t)
}

func TestCheckInUnauthorized(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-1", "random-user").Return(false, nil)
	expectAuditLog(mockDB, checkin.StatusUnauthorized)

	result, err := svc.CheckIn(context.Background(), "ticket-1", "event-1", "random-user")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusUnauthorized, result.Status)
	mockDB.AssertNotCalled(t, "MarkTicketUsed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckInWrongEvent(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	mockDB.On("IsAuthorizedScanner", mock.Anything, "event-2", "scanner-1").Return(true, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(validTicket(), nil)
	expectAuditLog(mockDB, checkin.StatusWrongEvent)

	result, err := svc.CheckIn(context.Background(), "ticket-1", "event-2", "scanner-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusWrongEvent, result.Status)
	mockDB.AssertNotCalled(t, "MarkTicketUsed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelTicket(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	mockDB.On("CancelTicket", mock.Anything, "ticket-1").Return(true, nil)

	result, err := svc.Cancel(context.Background(), "ticket-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusTicketCancelled, result.Status)
}

func TestCancelUsedTicketReportsAlreadyUsed(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := newService(mockDB)

	used := validTicket()
	used.Status = models.TicketStatusUsed

	mockDB.On("CancelTicket", mock.Anything, "ticket-1").Return(false, nil)
	mockDB.On("GetTicketByID", mock.Anything, "ticket-1").Return(used, nil)
	mockDB.On("GetTicketTypeByID", mock.Anything, "type-general").
		Return(&models.TicketType{Name: "General"}, nil)

	result, err := svc.Cancel(context.Background(), "ticket-1")

	assert.NoError(t, err)
	assert.Equal(t, checkin.StatusAlreadyUsed, result.Status)
}
