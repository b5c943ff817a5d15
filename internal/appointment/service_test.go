package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/clinic-booking/internal/identity"
	"github.com/clinicdesk/clinic-booking/internal/notify"
)

// memRepo is an in-memory Repository that enforces the same slot and token
// rules as the Postgres implementation.
type memRepo struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*Appointment
	order []uuid.UUID
}

func newMemRepo() *memRepo {
	return &memRepo{byID: map[uuid.UUID]*Appointment{}}
}

func (r *memRepo) Create(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, timeOfDay string, reason *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	maxToken := 0
	for _, id := range r.order {
		a := r.byID[id]
		if a.DoctorID == doctorID && a.Date.Equal(date) {
			if a.Time == timeOfDay {
				return nil, ErrSlotTaken
			}
			if a.Token > maxToken {
				maxToken = a.Token
			}
		}
	}

	a := &Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      date,
		Time:      timeOfDay,
		Token:     maxToken + 1,
		Status:    StatusPending,
		Reason:    reason,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	r.byID[a.ID] = a
	r.order = append(r.order, a.ID)
	return cloned(a), nil
}

func (r *memRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloned(a), nil
}

func (r *memRepo) ListByDoctor(ctx context.Context, doctorID uuid.UUID, newestFirst bool) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, id := range r.order {
		if a := r.byID[id]; a.DoctorID == doctorID {
			out = append(out, *cloned(a))
		}
	}
	return out, nil
}

func (r *memRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, id := range r.order {
		if a := r.byID[id]; a.PatientID == patientID {
			out = append(out, *cloned(a))
		}
	}
	return out, nil
}

func (r *memRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	return cloned(a), nil
}

func (r *memRepo) Reschedule(ctx context.Context, id uuid.UUID, from Status, date time.Time, timeOfDay string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	for _, other := range r.byID {
		if other.ID == id || other.DoctorID != a.DoctorID || !other.Date.Equal(date) {
			continue
		}
		if other.Time == timeOfDay {
			return nil, ErrSlotTaken
		}
		// Tokens stay unique per doctor-day, so carrying one into a day
		// where it is already issued is refused.
		if other.Token == a.Token {
			return nil, ErrBookingConflict
		}
	}
	a.Date = date
	a.Time = timeOfDay
	a.Status = StatusPending
	a.UpdatedAt = time.Now()
	return cloned(a), nil
}

func (r *memRepo) SetPrescription(ctx context.Context, id uuid.UUID, text string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok || a.Status != StatusCompleted {
		return nil, ErrAppointmentNotFound
	}
	a.Prescription = &text
	a.UpdatedAt = time.Now()
	return cloned(a), nil
}

func cloned(a *Appointment) *Appointment {
	c := *a
	return &c
}

// memLocker serializes callbacks per key with real mutexes, mirroring the
// blocking the Redis lock provides in production.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: map[string]*sync.Mutex{}}
}

func (l *memLocker) WithScheduleLock(ctx context.Context, doctorID uuid.UUID, date string, fn func(ctx context.Context) error) error {
	key := doctorID.String() + ":" + date
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type memDirectory struct {
	users map[uuid.UUID]*identity.User
}

func (d *memDirectory) ResolveByUsername(ctx context.Context, username string, role identity.Role) (*identity.User, error) {
	for _, u := range d.users {
		if u.Username == username && u.Role == role {
			return u, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (d *memDirectory) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	return u, nil
}

type sentNotification struct {
	RecipientID uuid.UUID
	Subject     string
	EventType   string
}

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (d *recordingDispatcher) Dispatch(recipient *identity.User, subject, message, eventType string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, sentNotification{
		RecipientID: recipient.ID,
		Subject:     subject,
		EventType:   eventType,
	})
}

func (d *recordingDispatcher) events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.sent))
	for i, n := range d.sent {
		out[i] = n.EventType
	}
	return out
}

type fixture struct {
	svc        *Service
	repo       *memRepo
	dispatcher *recordingDispatcher

	doctor   identity.Actor
	doctor2  identity.Actor
	patient  identity.Actor
	patient2 identity.Actor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	doctor := &identity.User{ID: uuid.New(), Username: "dr-grey", Email: "grey@clinic.test", Role: identity.RoleDoctor}
	doctor2 := &identity.User{ID: uuid.New(), Username: "dr-house", Email: "house@clinic.test", Role: identity.RoleDoctor}
	patient := &identity.User{ID: uuid.New(), Username: "ana", Email: "ana@mail.test", Role: identity.RolePatient}
	patient2 := &identity.User{ID: uuid.New(), Username: "bob", Email: "bob@mail.test", Role: identity.RolePatient}

	dir := &memDirectory{users: map[uuid.UUID]*identity.User{
		doctor.ID:   doctor,
		doctor2.ID:  doctor2,
		patient.ID:  patient,
		patient2.ID: patient2,
	}}

	repo := newMemRepo()
	dispatcher := &recordingDispatcher{}
	svc := NewService(repo, dir, newMemLocker(), dispatcher, zerolog.Nop())

	asActor := func(u *identity.User) identity.Actor {
		return identity.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
	}

	return &fixture{
		svc:        svc,
		repo:       repo,
		dispatcher: dispatcher,
		doctor:     asActor(doctor),
		doctor2:    asActor(doctor2),
		patient:    asActor(patient),
		patient2:   asActor(patient2),
	}
}

func futureDate() string {
	return time.Now().AddDate(0, 0, 7).Format(DateLayout)
}

func TestBook_AssignsSequentialTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate()

	first, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "10:00", "checkup")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Token)
	assert.Equal(t, StatusPending, first.Status)

	second, err := f.svc.Book(ctx, f.patient2, "dr-grey", date, "10:30", "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Token)

	// A different doctor-day starts its own sequence.
	other, err := f.svc.Book(ctx, f.patient, "dr-house", date, "10:00", "")
	require.NoError(t, err)
	assert.Equal(t, 1, other.Token)
}

func TestBook_RejectsOccupiedSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate()

	_, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "10:00", "")
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, f.patient2, "dr-grey", date, "10:00", "")
	assert.ErrorIs(t, err, ErrSlotTaken)

	// The failed attempt must not consume a token.
	next, err := f.svc.Book(ctx, f.patient2, "dr-grey", date, "11:00", "")
	require.NoError(t, err)
	assert.Equal(t, 2, next.Token)
}

func TestBook_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, f.doctor, "dr-grey", futureDate(), "10:00", "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Book(ctx, f.patient, "", futureDate(), "10:00", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Book(ctx, f.patient, "dr-grey", "01-02-2026", "10:00", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "25:99", "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Book(ctx, f.patient, "dr-nobody", futureDate(), "10:00", "")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)

	// A patient username does not resolve as a doctor.
	_, err = f.svc.Book(ctx, f.patient, "ana", futureDate(), "10:00", "")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestBook_ConcurrentBookingsGetDistinctTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate()

	const n = 20
	tokens := make(chan int, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			timeStr := fmt.Sprintf("%02d:%02d", 9+slot/4, 15*(slot%4))
			appt, err := f.svc.Book(ctx, f.patient, "dr-grey", date, timeStr, "")
			if err == nil {
				tokens <- appt.Token
			}
		}(i)
	}
	wg.Wait()
	close(tokens)

	seen := map[int]bool{}
	for tok := range tokens {
		assert.False(t, seen[tok], "token %d assigned twice", tok)
		seen[tok] = true
	}
	require.Len(t, seen, n)
	for i := 1; i <= n; i++ {
		assert.True(t, seen[i], "token %d missing from sequence", i)
	}
}

func TestBook_TokenGapDoesNotBlockDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate()

	first, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "09:00", "")
	require.NoError(t, err)
	second, err := f.svc.Book(ctx, f.patient2, "dr-grey", date, "10:00", "")
	require.NoError(t, err)
	third, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "11:00", "")
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, []int{first.Token, second.Token, third.Token})

	// Rescheduling the middle appointment to another day leaves a gap
	// in the original day's token sequence.
	otherDate := time.Now().AddDate(0, 0, 14).Format(DateLayout)
	moved, err := f.svc.Reschedule(ctx, f.patient2, second.ID, otherDate, "10:00")
	require.NoError(t, err)
	assert.Equal(t, 2, moved.Token)

	// The gapped day keeps accepting bookings; the sequence continues
	// past the highest issued token instead of landing in the gap.
	fourth, err := f.svc.Book(ctx, f.patient2, "dr-grey", date, "12:00", "")
	require.NoError(t, err)
	assert.Equal(t, 4, fourth.Token)
	assert.NotContains(t, []int{first.Token, third.Token}, fourth.Token)
}

func TestReschedule_TokenCollisionOnTargetDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dayX := futureDate()
	dayY := time.Now().AddDate(0, 0, 14).Format(DateLayout)

	// Token 1 is already issued on the target day.
	_, err := f.svc.Book(ctx, f.patient2, "dr-grey", dayY, "09:00", "")
	require.NoError(t, err)

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", dayX, "09:00", "")
	require.NoError(t, err)
	require.Equal(t, 1, appt.Token)

	// The moving appointment keeps token 1, so the day-Y uniqueness rule
	// refuses the move even though the slot is free.
	_, err = f.svc.Reschedule(ctx, f.patient, appt.ID, dayY, "10:00")
	assert.ErrorIs(t, err, ErrBookingConflict)
}

func TestBook_NotifiesDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)

	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, f.doctor.ID, f.dispatcher.sent[0].RecipientID)
	assert.Equal(t, notify.EventAppointmentCreated, f.dispatcher.sent[0].EventType)
}

func TestGet_OnlyVisibleToParticipants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)

	got, err := f.svc.Get(ctx, f.patient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	_, err = f.svc.Get(ctx, f.doctor, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.patient2, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = f.svc.Get(ctx, f.doctor2, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestSetStatus_ConfirmAndCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)

	confirmed, err := f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	// pending -> canceled on a fresh appointment.
	appt2, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "11:00", "")
	require.NoError(t, err)
	canceled, err := f.svc.SetStatus(ctx, f.doctor, appt2.ID, StatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	assert.Equal(t, []string{
		notify.EventAppointmentCreated,
		notify.EventAppointmentConfirmed,
		notify.EventAppointmentCreated,
		notify.EventAppointmentCanceled,
	}, f.dispatcher.events())
}

func TestSetStatus_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)

	_, err = f.svc.SetStatus(ctx, f.patient, appt.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrForbidden)

	// Another doctor must not even learn the appointment exists.
	_, err = f.svc.SetStatus(ctx, f.doctor2, appt.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	// completed is not reachable through this endpoint.
	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusCompleted)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	// confirmed -> confirmed and confirmed -> canceled are both illegal.
	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusCanceled)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

// staleReadRepo serves a pinned snapshot from GetByID while writes hit the
// live store, reproducing a concurrent writer sneaking in between the
// service's read and its compare-and-set.
type staleReadRepo struct {
	Repository
	snapshot *Appointment
}

func (r *staleReadRepo) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	if r.snapshot != nil && r.snapshot.ID == id {
		return cloned(r.snapshot), nil
	}
	return r.Repository.GetByID(ctx, id)
}

func TestSetStatus_LostRaceReadsAsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)

	// Pin the pending snapshot, then let a "concurrent" cancel land first.
	stale := &staleReadRepo{Repository: f.repo, snapshot: cloned(appt)}
	_, err = f.repo.UpdateStatus(ctx, appt.ID, StatusPending, StatusCanceled)
	require.NoError(t, err)

	svc := NewService(stale, &memDirectory{users: map[uuid.UUID]*identity.User{}}, newMemLocker(), f.dispatcher, zerolog.Nop())

	_, err = svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)

	// Cannot complete before confirmation.
	_, err = f.svc.Complete(ctx, f.doctor, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, f.doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	// Terminal: no way back.
	_, err = f.svc.Complete(ctx, f.doctor, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// Doctor completing notifies the patient.
	last := f.dispatcher.sent[len(f.dispatcher.sent)-1]
	assert.Equal(t, notify.EventAppointmentCompleted, last.EventType)
	assert.Equal(t, f.patient.ID, last.RecipientID)
}

func TestComplete_ByPatientNotifiesDoctor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	done, err := f.svc.Complete(ctx, f.patient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	last := f.dispatcher.sent[len(f.dispatcher.sent)-1]
	assert.Equal(t, f.doctor.ID, last.RecipientID)
}

func TestComplete_OtherPatientSeesNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, f.patient2, appt.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestUploadPrescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)

	// Only on completed appointments.
	_, err = f.svc.UploadPrescription(ctx, f.doctor, appt.ID, "rest and fluids")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, f.doctor, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.UploadPrescription(ctx, f.patient, appt.ID, "rest and fluids")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.UploadPrescription(ctx, f.doctor, appt.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := f.svc.UploadPrescription(ctx, f.doctor, appt.ID, "rest and fluids")
	require.NoError(t, err)
	require.NotNil(t, updated.Prescription)
	assert.Equal(t, "rest and fluids", *updated.Prescription)
	assert.Equal(t, StatusCompleted, updated.Status)

	last := f.dispatcher.sent[len(f.dispatcher.sent)-1]
	assert.Equal(t, notify.EventPrescriptionUploaded, last.EventType)
	assert.Equal(t, f.patient.ID, last.RecipientID)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	date := futureDate()
	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "10:00", "")
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	newDate := time.Now().AddDate(0, 0, 14).Format(DateLayout)
	moved, err := f.svc.Reschedule(ctx, f.patient, appt.ID, newDate, "09:30")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, moved.Status, "reschedule resets to pending")
	assert.Equal(t, appt.Token, moved.Token, "token survives reschedule")
	assert.Equal(t, newDate, moved.Date.Format(DateLayout))
	assert.Equal(t, "09:30", moved.Time)

	last := f.dispatcher.sent[len(f.dispatcher.sent)-1]
	assert.Equal(t, notify.EventAppointmentRescheduled, last.EventType)
	assert.Equal(t, f.doctor.ID, last.RecipientID)
}

func TestReschedule_Rules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "10:00", "")
	require.NoError(t, err)
	taken, err := f.svc.Book(ctx, f.patient2, "dr-grey", date, "11:00", "")
	require.NoError(t, err)
	_ = taken

	_, err = f.svc.Reschedule(ctx, f.doctor, appt.ID, date, "12:00")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.Reschedule(ctx, f.patient2, appt.ID, date, "12:00")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	_, err = f.svc.Reschedule(ctx, f.patient, appt.ID, "2020-01-01", "12:00")
	assert.ErrorIs(t, err, ErrPastDateTime)

	// Target slot already held by someone else.
	_, err = f.svc.Reschedule(ctx, f.patient, appt.ID, date, "11:00")
	assert.ErrorIs(t, err, ErrSlotTaken)

	// Moving to the slot it already occupies is a no-op move, not a conflict.
	moved, err := f.svc.Reschedule(ctx, f.patient, appt.ID, date, "10:00")
	require.NoError(t, err)
	assert.Equal(t, "10:00", moved.Time)
}

func TestReschedule_CanceledComesBackAsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "10:00", "")
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusCanceled)
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(ctx, f.patient, appt.ID, date, "14:00")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, moved.Status)
}

func TestReschedule_CompletedIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate()

	appt, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "10:00", "")
	require.NoError(t, err)
	_, err = f.svc.SetStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, f.doctor, appt.ID)
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, f.patient, appt.ID, date, "14:00")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestListForActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	date := futureDate()

	a1, err := f.svc.Book(ctx, f.patient, "dr-grey", date, "10:00", "")
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, f.patient2, "dr-grey", date, "11:00", "")
	require.NoError(t, err)
	_, err = f.svc.Book(ctx, f.patient, "dr-house", date, "10:00", "")
	require.NoError(t, err)

	doctorList, err := f.svc.ListForActor(ctx, f.doctor, false)
	require.NoError(t, err)
	assert.Len(t, doctorList, 2)

	patientList, err := f.svc.ListForActor(ctx, f.patient, false)
	require.NoError(t, err)
	assert.Len(t, patientList, 2)
	assert.Equal(t, a1.ID, patientList[0].ID)

	_, err = f.svc.ListForActor(ctx, identity.Actor{ID: uuid.New(), Role: identity.RoleAdmin}, false)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestNotifyFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Recipient lookup failing must not surface to the caller.
	doctor := &identity.User{ID: f.doctor.ID, Username: "dr-grey", Role: identity.RoleDoctor}
	svc := NewService(f.repo, &lookupOnlyDirectory{doctor: doctor}, newMemLocker(), f.dispatcher, zerolog.Nop())

	appt, err := svc.Book(ctx, f.patient, "dr-grey", futureDate(), "10:00", "")
	require.NoError(t, err)
	assert.Equal(t, 1, appt.Token)
	assert.Empty(t, f.dispatcher.sent)
}

// lookupOnlyDirectory resolves usernames but fails GetByID, so notification
// recipient resolution always errors.
type lookupOnlyDirectory struct {
	doctor *identity.User
}

func (d *lookupOnlyDirectory) ResolveByUsername(ctx context.Context, username string, role identity.Role) (*identity.User, error) {
	if d.doctor.Username == username && d.doctor.Role == role {
		return d.doctor, nil
	}
	return nil, identity.ErrUserNotFound
}

func (d *lookupOnlyDirectory) GetByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	return nil, errors.New("directory unavailable")
}
