package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"luxe-booking/internal/auth"
	"luxe-booking/internal/booking"
	"luxe-booking/internal/clock"
	"luxe-booking/internal/database"
	"luxe-booking/internal/models"
	"luxe-booking/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockDatabase is a mock implementation of the database.Service interface
type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) Health() map[string]string {
	return map[string]string{"status": "up"}
}

func (m *MockDatabase) Close() error {
	return nil
}

func (m *MockDatabase) EnsureUser(ctx context.Context, externalUID, email, passwordHash string) (models.User, error) {
	args := m.Called(ctx, externalUID, email, passwordHash)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockDatabase) ResolveOwner(ctx context.Context, externalUID string) (uuid.UUID, error) {
	args := m.Called(ctx, externalUID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *MockDatabase) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(models.User), args.Error(1)
}

func (m *MockDatabase) CreateBooking(ctx context.Context, draft models.BookingDraft, ownerID uuid.UUID, age int) (models.ConfirmedBooking, error) {
	args := m.Called(ctx, draft, ownerID, age)
	return args.Get(0).(models.ConfirmedBooking), args.Error(1)
}

func (m *MockDatabase) GetBooking(ctx context.Context, ownerID, bookingID uuid.UUID) (models.ConfirmedBooking, error) {
	args := m.Called(ctx, ownerID, bookingID)
	return args.Get(0).(models.ConfirmedBooking), args.Error(1)
}

func (m *MockDatabase) ListConfirmedBookings(ctx context.Context, ownerID uuid.UUID) ([]models.ConfirmedBooking, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).([]models.ConfirmedBooking), args.Error(1)
}

func (m *MockDatabase) GetProfile(ctx context.Context, ownerID uuid.UUID) (models.Profile, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(models.Profile), args.Error(1)
}

func (m *MockDatabase) UpdateProfile(ctx context.Context, ownerID uuid.UUID, upd models.ProfileUpdate) (models.Profile, error) {
	args := m.Called(ctx, ownerID, upd)
	return args.Get(0).(models.Profile), args.Error(1)
}

// MockSuggester is a mock implementation of suggest.Suggester
type MockSuggester struct {
	mock.Mock
}

func (m *MockSuggester) Suggest(ctx context.Context, ownerID uuid.UUID, pastBookings string) (models.Preferences, error) {
	args := m.Called(ctx, ownerID, pastBookings)
	return args.Get(0).(models.Preferences), args.Error(1)
}

var (
	testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	ownerID = uuid.MustParse("7d9f3c2a-1b4e-4c8a-9f10-2a3b4c5d6e7f")
)

const testUID = "usr_test"

func newTestServer(db database.Service, suggester *MockSuggester) *Server {
	c := clock.NewFixed(testNow)
	return &Server{
		db:         db,
		sessions:   session.NewMemoryStore(c, time.Hour),
		issuer:     auth.NewIssuer("test-secret", time.Hour, c),
		submitter:  booking.NewSubmitter(db, c),
		submitting: newInflight(),
		suggester:  suggester,
		clock:      c,
		limiter:    newIPLimiter(1000, 1000),
		bcryptCost: bcrypt.MinCost,
	}
}

func bearer(t *testing.T, s *Server) string {
	t.Helper()
	tok, err := s.issuer.Issue(testUID, "jane@example.com")
	require.NoError(t, err)
	return tok.Token
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func validDraft() models.BookingDraft {
	return models.BookingDraft{
		FullName:         "Tim Young",
		DateOfBirth:      "2010-01-01",
		ContactDetails:   "tim@example.com",
		GuardianName:     "A. Guardian",
		GuardianContact:  "a@x.com",
		Destination:      "Monaco",
		DepartureDate:    "2024-07-01",
		PreferredVehicle: "limousine",
	}
}

// startAtReview creates a session already on the review step with draft d.
func startAtReview(t *testing.T, s *Server, d models.BookingDraft) string {
	t.Helper()
	sess, err := s.sessions.Create(context.Background(), testUID)
	require.NoError(t, err)
	sess.State = booking.State{Step: booking.TotalSteps(), Draft: d}
	require.NoError(t, s.sessions.Save(context.Background(), sess))
	return sess.ID
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)

	rr := do(t, s.RegisterRoutes(), http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "up", decode[map[string]string](t, rr)["status"])
}

func TestPublicCatalogue(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)
	h := s.RegisterRoutes()

	vehicles := decode[[]models.VehicleOption](t, do(t, h, http.MethodGet, "/vehicles", "", nil))
	assert.Len(t, vehicles, 5)

	steps := decode[[]booking.Step](t, do(t, h, http.MethodGet, "/wizard/steps", "", nil))
	require.Len(t, steps, 4)
	assert.Equal(t, "Review & Confirm", steps[3].Name)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)
	h := s.RegisterRoutes()

	for _, path := range []string{"/trips", "/profile", "/me"} {
		rr := do(t, h, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
	rr := do(t, h, http.MethodPost, "/wizard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestWizardFlow(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)

	// Start a new booking
	rr := do(t, h, http.MethodPost, "/wizard", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code)
	started := decode[wizardResponse](t, rr)
	assert.Equal(t, 1, started.Step)
	assert.Equal(t, 4, started.TotalSteps)
	base := "/wizard/" + started.ID

	// A minor without guardian details is stopped on step 1
	personal := map[string]string{
		"fullName":       "Tim Young",
		"dateOfBirth":    "2010-01-01",
		"contactDetails": "tim@example.com",
	}
	rr = do(t, h, http.MethodPost, base+"/next", token, personal)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	failed := decode[errorResponse](t, rr)
	assert.Equal(t, booking.GuardianRequiredMessage, failed.Error)
	assert.Len(t, failed.Fields, 2)

	personal["guardianName"] = "A. Guardian"
	personal["guardianContact"] = "a@x.com"
	rr = do(t, h, http.MethodPost, base+"/next", token, personal)
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[wizardResponse](t, rr)
	assert.Equal(t, 2, view.Step)
	assert.True(t, view.GuardianRequired)

	rr = do(t, h, http.MethodPost, base+"/next", token, map[string]string{
		"destination":      "Monaco",
		"departureDate":    "2024-07-01",
		"preferredVehicle": "limousine",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodPost, base+"/next", token, map[string]string{})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Review & Confirm", decode[wizardResponse](t, rr).StepName)

	// Review shows every field valid
	rr = do(t, h, http.MethodGet, base+"/review", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	// Confirm
	draft := validDraft()
	created := models.ConfirmedBooking{ID: uuid.New(), OwnerID: ownerID, BookingDraft: draft, IsConfirmed: true, AgeAtBooking: 14}
	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("CreateBooking", mock.Anything, draft, ownerID, 14).Return(created, nil)

	rr = do(t, h, http.MethodPost, base+"/submit", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	out := decode[submitResponse](t, rr)
	assert.True(t, out.Success)
	assert.Equal(t, booking.MsgConfirmed, out.Message)
	assert.Equal(t, created.ID, out.Booking.ID)

	// The session starts over
	rr = do(t, h, http.MethodGet, base, token, nil)
	after := decode[wizardResponse](t, rr)
	assert.Equal(t, 1, after.Step)
	assert.True(t, after.Draft.IsEmpty())

	db.AssertExpectations(t)
}

func TestWizardBackKeepsValues(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)
	id := startAtReview(t, s, validDraft())

	rr := do(t, h, http.MethodPost, "/wizard/"+id+"/back", token, map[string]string{})
	require.Equal(t, http.StatusOK, rr.Code)
	view := decode[wizardResponse](t, rr)
	assert.Equal(t, 3, view.Step)
	assert.Equal(t, "Monaco", view.Draft.Destination)

	rr = do(t, h, http.MethodPost, "/wizard/"+id+"/next", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 4, decode[wizardResponse](t, rr).Step)

	rr = do(t, h, http.MethodPost, "/wizard/"+id+"/next", token, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/wizard/"+id+"/reset", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decode[wizardResponse](t, rr).Step)
}

func TestSubmit_StoreFailureKeepsSession(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)
	id := startAtReview(t, s, validDraft())

	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("CreateBooking", mock.Anything, mock.Anything, ownerID, 14).
		Return(models.ConfirmedBooking{}, errors.New("connection refused"))

	rr := do(t, h, http.MethodPost, "/wizard/"+id+"/submit", token, nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	out := decode[submitResponse](t, rr)
	assert.False(t, out.Success)
	assert.Equal(t, booking.MsgFailed, out.Message)

	view := decode[wizardResponse](t, do(t, h, http.MethodGet, "/wizard/"+id, token, nil))
	assert.Equal(t, 4, view.Step)
	assert.Equal(t, validDraft(), view.Draft)
}

func TestSubmit_GuardianMissing(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	d := validDraft()
	d.GuardianContact = ""
	id := startAtReview(t, s, d)

	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)

	rr := do(t, s.RegisterRoutes(), http.MethodPost, "/wizard/"+id+"/submit", bearer(t, s), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, booking.GuardianRequiredMessage, decode[submitResponse](t, rr).Message)
	db.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_BeforeReview(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)

	started := decode[wizardResponse](t, do(t, h, http.MethodPost, "/wizard", token, nil))
	rr := do(t, h, http.MethodPost, "/wizard/"+started.ID+"/submit", token, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestWizard_LockedSessionIsRejected(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)
	id := startAtReview(t, s, validDraft())

	unlock, err := s.sessions.Lock(context.Background(), id)
	require.NoError(t, err)
	defer unlock()

	rr := do(t, s.RegisterRoutes(), http.MethodPost, "/wizard/"+id+"/submit", bearer(t, s), nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, booking.MsgInProgress, decode[errorResponse](t, rr).Error)
}

func TestWizard_OtherUsersSession(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)
	sess, err := s.sessions.Create(context.Background(), "usr_someone_else")
	require.NoError(t, err)

	rr := do(t, s.RegisterRoutes(), http.MethodGet, "/wizard/"+sess.ID, bearer(t, s), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWizard_ForeignSessionIsNotLocked(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)
	sess, err := s.sessions.Create(context.Background(), "usr_someone_else")
	require.NoError(t, err)

	rr := do(t, s.RegisterRoutes(), http.MethodPost, "/wizard/"+sess.ID+"/next", bearer(t, s), map[string]string{})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// The owner can still claim it straight away
	unlock, err := s.sessions.Lock(context.Background(), sess.ID)
	require.NoError(t, err)
	unlock()
}

func TestDeleteWizardHandler(t *testing.T) {
	s := newTestServer(new(MockDatabase), nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)
	id := startAtReview(t, s, validDraft())

	foreign, err := s.sessions.Create(context.Background(), "usr_someone_else")
	require.NoError(t, err)
	rr := do(t, h, http.MethodDelete, "/wizard/"+foreign.ID, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	_, err = s.sessions.Load(context.Background(), foreign.ID)
	assert.NoError(t, err)

	rr = do(t, h, http.MethodDelete, "/wizard/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = do(t, h, http.MethodGet, "/wizard/"+id, token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

// movableClock is a clock tests can push forward while requests are running.
type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSubmit_SlowStoreIsNotSubmittedTwice(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	c := &movableClock{now: testNow}
	s.clock = c
	s.sessions = session.NewMemoryStore(c, time.Hour)
	s.submitter = booking.NewSubmitter(db, c)
	h := s.RegisterRoutes()
	token := bearer(t, s)
	id := startAtReview(t, s, validDraft())

	entered := make(chan struct{})
	release := make(chan struct{})
	var gotCtx context.Context
	created := models.ConfirmedBooking{ID: uuid.New(), OwnerID: ownerID, BookingDraft: validDraft(), IsConfirmed: true, AgeAtBooking: 14}

	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("CreateBooking", mock.Anything, validDraft(), ownerID, 14).
		Run(func(args mock.Arguments) {
			gotCtx = args.Get(0).(context.Context)
			close(entered)
			<-release
		}).
		Return(created, nil).Once()

	first := make(chan *httptest.ResponseRecorder)
	go func() {
		first <- do(t, h, http.MethodPost, "/wizard/"+id+"/submit", token, nil)
	}()
	<-entered

	// The store call outlives the session lock
	c.Advance(session.LockTTL + time.Second)
	second := do(t, h, http.MethodPost, "/wizard/"+id+"/submit", token, nil)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, booking.MsgInProgress, decode[submitResponse](t, second).Message)
	back := do(t, h, http.MethodPost, "/wizard/"+id+"/back", token, nil)
	assert.Equal(t, http.StatusConflict, back.Code)

	close(release)
	rr := <-first
	assert.Equal(t, http.StatusCreated, rr.Code)

	db.AssertNumberOfCalls(t, "CreateBooking", 1)
	_, hasDeadline := gotCtx.Deadline()
	assert.True(t, hasDeadline)
	reserved, ok := booking.SubmissionID(gotCtx)
	assert.True(t, ok)
	assert.NotEqual(t, uuid.Nil, reserved)
}

func TestSubmit_RetryReusesBookingID(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)
	id := startAtReview(t, s, validDraft())

	var ids []uuid.UUID
	record := func(args mock.Arguments) {
		sid, _ := booking.SubmissionID(args.Get(0).(context.Context))
		ids = append(ids, sid)
	}
	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("CreateBooking", mock.Anything, validDraft(), ownerID, 14).
		Run(record).Return(models.ConfirmedBooking{}, errors.New("context deadline exceeded")).Once()
	db.On("CreateBooking", mock.Anything, validDraft(), ownerID, 14).
		Run(record).Return(models.ConfirmedBooking{ID: uuid.New(), OwnerID: ownerID}, nil).Once()

	rr := do(t, h, http.MethodPost, "/wizard/"+id+"/submit", token, nil)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	rr = do(t, h, http.MethodPost, "/wizard/"+id+"/submit", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	require.Len(t, ids, 2)
	assert.NotEqual(t, uuid.Nil, ids[0])
	assert.Equal(t, ids[0], ids[1])

	// A confirmed booking frees the session for a fresh draft
	sess, err := s.sessions.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, sess.SubmissionID)
	assert.Equal(t, 1, sess.State.Step)
}

func TestListTripsHandler(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)

	trips := []models.ConfirmedBooking{
		{ID: uuid.New(), OwnerID: ownerID, BookingDraft: validDraft(), IsConfirmed: true, AgeAtBooking: 14},
	}
	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("ListConfirmedBookings", mock.Anything, ownerID).Return(trips, nil)

	rr := do(t, s.RegisterRoutes(), http.MethodGet, "/trips", bearer(t, s), nil)

	assert.Equal(t, http.StatusOK, rr.Code, "Expected status code 200 OK")
	got := decode[[]models.ConfirmedBooking](t, rr)
	require.Len(t, got, 1)
	assert.Equal(t, "Monaco", got[0].Destination)
	db.AssertExpectations(t)
}

func TestOwnerCreatedOnFirstSight(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)

	db.On("ResolveOwner", mock.Anything, testUID).Return(uuid.Nil, database.ErrNotFound)
	db.On("EnsureUser", mock.Anything, testUID, "jane@example.com", "").Return(models.User{ID: ownerID, ExternalUID: testUID}, nil)

	rr := do(t, s.RegisterRoutes(), http.MethodGet, "/me", bearer(t, s), nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ownerID.String(), decode[map[string]string](t, rr)["ownerId"])
	db.AssertExpectations(t)
}

func TestTripHandlers(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)
	trip := models.ConfirmedBooking{ID: uuid.New(), OwnerID: ownerID, BookingDraft: validDraft(), IsConfirmed: true}
	missing := uuid.New()

	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("GetBooking", mock.Anything, ownerID, trip.ID).Return(trip, nil)
	db.On("GetBooking", mock.Anything, ownerID, missing).Return(models.ConfirmedBooking{}, database.ErrNotFound)

	rr := do(t, h, http.MethodGet, "/trips/"+trip.ID.String(), token, nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodGet, "/trips/"+trip.ID.String()+"/ticket.pdf", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/pdf", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("%PDF-")))

	rr = do(t, h, http.MethodGet, "/trips/"+missing.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodGet, "/trips/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateProfileHandler(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)

	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)

	rr := do(t, h, http.MethodPatch, "/profile", token, map[string]string{"fullName": "J"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Full name must be at least 2 characters.", decode[errorResponse](t, rr).Error)

	updated := models.Profile{UserID: ownerID, FullName: "Jane Doe", ContactDetails: "+331234567"}
	db.On("UpdateProfile", mock.Anything, ownerID, mock.MatchedBy(func(u models.ProfileUpdate) bool {
		return u.FullName != nil && *u.FullName == "Jane Doe" && u.ContactDetails == nil
	})).Return(updated, nil)

	rr = do(t, h, http.MethodPatch, "/profile", token, map[string]string{"fullName": "Jane Doe"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Jane Doe", decode[models.Profile](t, rr).FullName)
	db.AssertExpectations(t)
}

func TestUpdateProfileHandler_ClearsVehiclePreference(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	h := s.RegisterRoutes()
	token := bearer(t, s)

	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("UpdateProfile", mock.Anything, ownerID, mock.MatchedBy(func(u models.ProfileUpdate) bool {
		return u.PreferredVehicleType != nil && *u.PreferredVehicleType == ""
	})).Return(models.Profile{UserID: ownerID}, nil)

	rr := do(t, h, http.MethodPatch, "/profile", token, map[string]string{"preferredVehicleType": ""})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodPatch, "/profile", token, map[string]string{"preferredVehicleType": "boat"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "Please select a vehicle type.", decode[errorResponse](t, rr).Error)
	db.AssertExpectations(t)
}

func TestSuggestPreferencesHandler(t *testing.T) {
	db := new(MockDatabase)
	suggester := new(MockSuggester)
	s := newTestServer(db, suggester)
	h := s.RegisterRoutes()
	token := bearer(t, s)

	trips := []models.ConfirmedBooking{{BookingDraft: models.BookingDraft{PreferredVehicle: "suv", AllergiesOrRequests: "music on"}}}
	prefs := models.Preferences{PreferredVehicleType: "suv", PreferredTemperature: "21°C", PreferredMusicGenre: "As Requested"}

	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("ListConfirmedBookings", mock.Anything, ownerID).Return(trips, nil)
	suggester.On("Suggest", mock.Anything, ownerID, `[{"vehicleType":"suv","temperature":"21°C","musicGenre":"As Requested"}]`).Return(prefs, nil)
	db.On("UpdateProfile", mock.Anything, ownerID, prefs.AsUpdate()).
		Return(models.Profile{UserID: ownerID, PreferredVehicleType: "suv"}, nil).Once()

	// Suggest only
	rr := do(t, h, http.MethodPost, "/profile/suggestions", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[suggestionResponse](t, rr)
	assert.Equal(t, prefs, resp.Preferences)
	assert.False(t, resp.Saved)

	// Suggest and save
	rr = do(t, h, http.MethodPost, "/profile/suggestions?save=true", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp = decode[suggestionResponse](t, rr)
	assert.True(t, resp.Saved)
	require.NotNil(t, resp.Profile)
	assert.Equal(t, "suv", resp.Profile.PreferredVehicleType)

	db.AssertExpectations(t)
	suggester.AssertExpectations(t)
}

func TestSuggestPreferencesHandler_SuggesterDown(t *testing.T) {
	db := new(MockDatabase)
	suggester := new(MockSuggester)
	s := newTestServer(db, suggester)

	db.On("ResolveOwner", mock.Anything, testUID).Return(ownerID, nil)
	db.On("ListConfirmedBookings", mock.Anything, ownerID).Return([]models.ConfirmedBooking{}, nil)
	suggester.On("Suggest", mock.Anything, ownerID, "[]").Return(models.Preferences{}, errors.New("timeout"))

	rr := do(t, s.RegisterRoutes(), http.MethodPost, "/profile/suggestions?save=true", bearer(t, s), nil)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	db.AssertNotCalled(t, "UpdateProfile", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignupAndLogin(t *testing.T) {
	db := new(MockDatabase)
	s := newTestServer(db, nil)
	h := s.RegisterRoutes()

	var storedHash string
	db.On("FindUserByEmail", mock.Anything, "jane@example.com").Return(models.User{}, database.ErrNotFound).Once()
	db.On("EnsureUser", mock.Anything, mock.AnythingOfType("string"), "jane@example.com", mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { storedHash = args.String(3) }).
		Return(models.User{ID: ownerID, ExternalUID: testUID, Email: "jane@example.com"}, nil)
	db.On("UpdateProfile", mock.Anything, ownerID, mock.Anything).Return(models.Profile{}, nil)

	rr := do(t, h, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": "jane@example.com", "password": "correct-horse", "fullName": "Jane Traveller",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	signup := decode[authResponse](t, rr)
	claims, err := s.issuer.Parse(signup.Token.Token)
	require.NoError(t, err)
	assert.Equal(t, testUID, claims.UID())

	db.On("FindUserByEmail", mock.Anything, "jane@example.com").
		Return(models.User{ID: ownerID, ExternalUID: testUID, Email: "jane@example.com", PasswordHash: storedHash}, nil)

	rr = do(t, h, http.MethodPost, "/auth/signup", "", map[string]string{"email": "jane@example.com", "password": "correct-horse"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "jane@example.com", "password": "correct-horse"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, h, http.MethodPost, "/auth/login", "", map[string]string{"email": "jane@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodPost, "/auth/signup", "", map[string]string{"email": "not-an-email", "password": "correct-horse"})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := newIPLimiter(1, 3)
	handler := limiter.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	doRequest := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr.Code
	}

	// The rate limiter allows 1 request per second with a burst of 3
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, doRequest("192.0.2.1:1234"), "request %d", i+1)
	}
	// Same IP from another port shares the bucket
	assert.Equal(t, http.StatusTooManyRequests, doRequest("192.0.2.1:5678"))
	// Other clients are unaffected
	assert.Equal(t, http.StatusOK, doRequest("192.0.2.2:1234"))

	// Wait for 1 second to allow the limiter to refill
	time.Sleep(1 * time.Second)
	assert.Equal(t, http.StatusOK, doRequest("192.0.2.1:1234"))
}

func TestRateLimiterDropsIdleVisitors(t *testing.T) {
	limiter := newIPLimiter(1, 3)
	now := testNow
	limiter.now = func() time.Time { return now }

	limiter.get("192.0.2.1")
	limiter.get("192.0.2.2")
	assert.Len(t, limiter.visitors, 2)

	now = now.Add(2 * time.Minute)
	limiter.get("192.0.2.2")

	now = now.Add(2 * time.Minute)
	limiter.get("192.0.2.3")

	// 192.0.2.1 has been quiet for four minutes; 192.0.2.2 for two
	assert.Len(t, limiter.visitors, 2)
	assert.NotContains(t, limiter.visitors, "192.0.2.1")
	assert.Contains(t, limiter.visitors, "192.0.2.2")
}
