package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Token assignment can collide when two bookings for the same doctor and day
// read the same max token. The unique constraint catches it; re-reading sees
// the winner's token, so a few retries converge.
const maxCreateAttempts = 3

const (
	slotConstraint  = "appointments_slot_key"
	tokenConstraint = "appointments_token_key"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentColumns = `id, doctor_id, patient_id, date, appt_time, token, status, reason, prescription, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var reason, prescription *string

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.Time,
		&a.Token,
		&a.Status,
		&reason,
		&prescription,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Reason = reason
	a.Prescription = prescription
	return &a, nil
}

func uniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}

func (r *PgRepository) Create(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, timeOfDay string, reason *string) (*Appointment, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		appt, err := r.tryCreate(ctx, doctorID, patientID, date, timeOfDay, reason)
		if err == nil {
			return appt, nil
		}
		if uniqueViolation(err, tokenConstraint) {
			// Lost the token race to a concurrent booking for this
			// doctor/day. The slot itself is still free, so retry.
			continue
		}
		return nil, err
	}
	return nil, ErrBookingConflict
}

func (r *PgRepository) tryCreate(ctx context.Context, doctorID, patientID uuid.UUID, date time.Time, timeOfDay string, reason *string) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND date = $2 AND appt_time = $3
		)
	`, doctorID, date, timeOfDay).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	if taken {
		return nil, ErrSlotTaken
	}

	// Queue position continues the doctor-day sequence from the highest
	// token issued so far. Gaps appear when appointments are rescheduled
	// away; counting rows would land back inside such a gap and collide
	// with a token that is still issued, so the maximum is what advances.
	var maxToken int
	err = tx.QueryRow(ctx, `
		SELECT coalesce(max(token), 0) FROM appointments
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date).Scan(&maxToken)
	if err != nil {
		return nil, fmt.Errorf("max token for doctor day: %w", err)
	}

	id := uuid.New()
	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, date, appt_time, token, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, doctorID, patientID, date, timeOfDay, maxToken+1, reason)

	appt, err := scanAppointment(row)
	if err != nil {
		if uniqueViolation(err, slotConstraint) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, newestFirst bool) ([]Appointment, error) {
	order := "date, appt_time, token"
	if newestFirst {
		order = "date DESC, appt_time DESC, token DESC"
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY `+order, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY date DESC, appt_time DESC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) Reschedule(ctx context.Context, id uuid.UUID, from Status, date time.Time, timeOfDay string) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Target slot must be free, not counting the appointment being moved.
	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments a
			JOIN appointments self ON self.id = $1
			WHERE a.doctor_id = self.doctor_id
			  AND a.date = $2
			  AND a.appt_time = $3
			  AND a.id <> self.id
		)
	`, id, date, timeOfDay).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("check target slot: %w", err)
	}
	if taken {
		return nil, ErrSlotTaken
	}

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET date = $2,
		    appt_time = $3,
		    status = 'pending',
		    updated_at = now()
		WHERE id = $1
		  AND status = $4
		RETURNING `+appointmentColumns, id, date, timeOfDay, from)

	appt, err := scanAppointment(row)
	if err != nil {
		if uniqueViolation(err, slotConstraint) {
			return nil, ErrSlotTaken
		}
		// The kept token can already be issued on the target day. Tokens
		// stay unique per doctor-day, so this move is refused.
		if uniqueViolation(err, tokenConstraint) {
			return nil, ErrBookingConflict
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reschedule tx: %w", err)
	}

	return appt, nil
}

func (r *PgRepository) SetPrescription(ctx context.Context, id uuid.UUID, text string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET prescription = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'completed'
		RETURNING `+appointmentColumns, id, text)

	return scanAppointment(row)
}
