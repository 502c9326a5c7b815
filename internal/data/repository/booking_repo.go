package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tour-booking/internal/data/entity"
	"tour-booking/pkg/database"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// BookingRepository is the durable record of bookings. Status, version and
// history only change together, through ApplyTransition.
type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error)
	FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error)
	CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error)

	// Lifecycle queries
	FindPaymentOverdue(ctx context.Context, now time.Time, limit int) ([]entity.OverdueBooking, error)
	ApplyTransition(ctx context.Context, rec *entity.TransitionRecord) error
}

const bookingColumns = `id, order_id, user_id, tour_id, contact_name, contact_email, total_amount,
		participant_count, status, payment_due_at, payment_method, payer_name, bank_reference,
		payment_confirmed_at, version, created_at, updated_at`

const historyColumns = `id, booking_id, version, from_status, to_status, trigger, actor, actor_role,
		note, previous_due_at, new_due_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type bookingRepository struct {
	db  database.PgxIface
	log *zap.Logger
}

func NewBookingRepository(db database.PgxIface, log *zap.Logger) BookingRepository {
	return &bookingRepository{
		db:  db,
		log: log.With(zap.String("repository", "booking")),
	}
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, entity.ErrStoreUnavailable, err)
}

const (
	uniqueViolation   = "23505"
	orderIDConstraint = "bookings_order_id_key"
)

func isOrderIDTaken(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == orderIDConstraint
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	query := `
		INSERT INTO bookings (id, order_id, user_id, tour_id, contact_name, contact_email, total_amount,
		                      participant_count, status, payment_due_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.OrderID,
		booking.UserID,
		booking.TourID,
		booking.ContactName,
		booking.ContactEmail,
		booking.TotalAmount,
		booking.ParticipantCount,
		string(booking.Status),
		booking.PaymentDueAt,
		booking.Version,
		booking.CreatedAt,
		booking.UpdatedAt,
	)

	if isOrderIDTaken(err) {
		r.log.Warn("Order ID already taken", zap.String("order_id", booking.OrderID))
		return fmt.Errorf("create booking %s: %w", booking.OrderID, entity.ErrDuplicateOrderID)
	}
	if err != nil {
		r.log.Error("Failed to create booking",
			zap.Error(err),
			zap.String("order_id", booking.OrderID),
			zap.String("user_id", booking.UserID.String()),
		)
		return storeErr(fmt.Sprintf("create booking %s", booking.OrderID), err)
	}

	return nil
}

func (r *bookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	booking, err := scanBooking(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.log.Error("Failed to find booking by ID",
			zap.Error(err),
			zap.String("booking_id", id.String()),
		)
		return nil, storeErr(fmt.Sprintf("find booking by ID %s", id), err)
	}

	history, err := r.findHistory(ctx, id)
	if err != nil {
		return nil, err
	}
	booking.StatusHistory = history

	return booking, nil
}

func (r *bookingRepository) findHistory(ctx context.Context, bookingID uuid.UUID) ([]entity.StatusHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM booking_status_history WHERE booking_id = $1 ORDER BY version`

	rows, err := r.db.Query(ctx, query, bookingID)
	if err != nil {
		r.log.Error("Failed to load booking history",
			zap.Error(err),
			zap.String("booking_id", bookingID.String()),
		)
		return nil, storeErr(fmt.Sprintf("find history of booking %s", bookingID), err)
	}
	defer rows.Close()

	history := make([]entity.StatusHistoryEntry, 0)
	for rows.Next() {
		var (
			h                        entity.StatusHistoryEntry
			from, to, trigger, actor string
		)
		err := rows.Scan(
			&h.ID,
			&h.BookingID,
			&h.Version,
			&from,
			&to,
			&trigger,
			&h.Actor,
			&actor,
			&h.Note,
			&h.PreviousDueAt,
			&h.NewDueAt,
			&h.CreatedAt,
		)
		if err != nil {
			r.log.Error("Failed to scan history row", zap.Error(err))
			return nil, storeErr("scan history row", err)
		}
		h.FromStatus = entity.BookingStatus(from)
		h.ToStatus = entity.BookingStatus(to)
		h.Trigger = entity.Trigger(trigger)
		h.ActorRole = entity.ActorRole(actor)
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate history rows", err)
	}

	return history, nil
}

func (r *bookingRepository) FindByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.Booking, error) {
	query := `SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		r.log.Error("Failed to find bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
			zap.Int("limit", limit),
			zap.Int("offset", offset),
		)
		return nil, storeErr(fmt.Sprintf("find bookings by user ID %s", userID), err)
	}
	defer rows.Close()

	var bookings []*entity.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			r.log.Error("Failed to scan booking row", zap.Error(err))
			return nil, storeErr("scan booking row", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate booking rows", err)
	}

	return bookings, nil
}

func (r *bookingRepository) CountByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM bookings WHERE user_id = $1`

	var count int64
	if err := r.db.QueryRow(ctx, query, userID).Scan(&count); err != nil {
		r.log.Error("Failed to count bookings by user ID",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return 0, storeErr(fmt.Sprintf("count bookings by user ID %s", userID), err)
	}

	return count, nil
}

func (r *bookingRepository) FindPaymentOverdue(ctx context.Context, now time.Time, limit int) ([]entity.OverdueBooking, error) {
	query := `
		SELECT id, version, payment_due_at
		FROM bookings
		WHERE status = $1 AND payment_due_at <= $2
		ORDER BY payment_due_at
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, string(entity.BookingStatusPaymentPending), now, limit)
	if err != nil {
		r.log.Error("Failed to find overdue bookings", zap.Error(err), zap.Time("now", now))
		return nil, storeErr("find overdue bookings", err)
	}
	defer rows.Close()

	var overdue []entity.OverdueBooking
	for rows.Next() {
		var o entity.OverdueBooking
		if err := rows.Scan(&o.ID, &o.Version, &o.PaymentDueAt); err != nil {
			r.log.Error("Failed to scan overdue row", zap.Error(err))
			return nil, storeErr("scan overdue row", err)
		}
		overdue = append(overdue, o)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate overdue rows", err)
	}

	return overdue, nil
}

// ApplyTransition commits a status change as a compare-and-swap on version
// and appends the history entry in the same transaction.
func (r *bookingRepository) ApplyTransition(ctx context.Context, rec *entity.TransitionRecord) (err error) {
	id := rec.BookingID.String()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.log.Error("Failed to begin transition", zap.Error(err), zap.String("booking_id", id))
		return storeErr(fmt.Sprintf("begin transition %s", id), err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var (
		method, payer, reference *string
		confirmedAt              *time.Time
	)
	if rec.PaymentInfo != nil {
		method = &rec.PaymentInfo.Method
		payer = &rec.PaymentInfo.PayerName
		reference = &rec.PaymentInfo.BankReference
		confirmedAt = &rec.PaymentInfo.ConfirmedAt
	}

	update := `
		UPDATE bookings
		SET status = $3, payment_due_at = $4,
		    payment_method = COALESCE(payment_method, $5),
		    payer_name = COALESCE(payer_name, $6),
		    bank_reference = COALESCE(bank_reference, $7),
		    payment_confirmed_at = COALESCE(payment_confirmed_at, $8),
		    version = version + 1, updated_at = $9
		WHERE id = $1 AND version = $2
		RETURNING version
	`

	var newVersion int64
	err = tx.QueryRow(ctx, update,
		rec.BookingID,
		rec.ExpectedVersion,
		string(rec.Status),
		rec.PaymentDueAt,
		method,
		payer,
		reference,
		confirmedAt,
		rec.UpdatedAt,
	).Scan(&newVersion)

	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, rec.BookingID).Scan(&exists); err != nil {
			return storeErr(fmt.Sprintf("check booking %s", id), err)
		}
		if !exists {
			err = fmt.Errorf("apply transition %s: %w", id, entity.ErrBookingNotFound)
			return err
		}
		err = fmt.Errorf("apply transition %s at version %d: %w", id, rec.ExpectedVersion, entity.ErrVersionConflict)
		return err
	}
	if err != nil {
		r.log.Error("Failed to update booking status",
			zap.Error(err),
			zap.String("booking_id", id),
			zap.String("status", string(rec.Status)),
		)
		return storeErr(fmt.Sprintf("update booking %s status to %s", id, rec.Status), err)
	}

	insert := `
		INSERT INTO booking_status_history (` + historyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	h := rec.Entry
	_, err = tx.Exec(ctx, insert,
		h.ID,
		rec.BookingID,
		newVersion,
		string(h.FromStatus),
		string(h.ToStatus),
		string(h.Trigger),
		h.Actor,
		string(h.ActorRole),
		h.Note,
		h.PreviousDueAt,
		h.NewDueAt,
		h.CreatedAt,
	)
	if err != nil {
		r.log.Error("Failed to append booking history",
			zap.Error(err),
			zap.String("booking_id", id),
			zap.Int64("version", newVersion),
		)
		return storeErr(fmt.Sprintf("append history of booking %s", id), err)
	}

	if err = tx.Commit(ctx); err != nil {
		r.log.Error("Failed to commit transition", zap.Error(err), zap.String("booking_id", id))
		return storeErr(fmt.Sprintf("commit transition %s", id), err)
	}

	return nil
}

func scanBooking(row rowScanner) (*entity.Booking, error) {
	var (
		b                        entity.Booking
		status                   string
		method, payer, reference *string
		confirmedAt              *time.Time
	)

	err := row.Scan(
		&b.ID,
		&b.OrderID,
		&b.UserID,
		&b.TourID,
		&b.ContactName,
		&b.ContactEmail,
		&b.TotalAmount,
		&b.ParticipantCount,
		&status,
		&b.PaymentDueAt,
		&method,
		&payer,
		&reference,
		&confirmedAt,
		&b.Version,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.Status = entity.BookingStatus(status)
	if confirmedAt != nil {
		b.PaymentInfo = &entity.PaymentInfo{
			Method:        deref(method),
			PayerName:     deref(payer),
			BankReference: deref(reference),
			ConfirmedAt:   *confirmedAt,
		}
	}

	return &b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
