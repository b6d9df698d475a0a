package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"lingopal/internal/types"
)

// defaultFirstPushDelay is how far in the future a brand-new subscriber's
// first scheduled push lands when none is supplied at creation.
const defaultFirstPushDelay = 24 * time.Hour

// SubscriberRepository provides data access for the subscribers table.
//
// The scheduling fields (next_push_message_at, last_message_sent_at,
// last_nightly_digest_run) are mutated only through the single-purpose
// update methods below. Partial updates are deliberate: the sweep drivers
// and the onboarding surface touch disjoint fields, and a full-row UPDATE
// from a stale snapshot would clobber the other writer's work.
type SubscriberRepository struct {
	db DBTX
}

// NewSubscriberRepository creates a new SubscriberRepository backed by the
// given database connection (pool or transaction).
func NewSubscriberRepository(db DBTX) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// subscriberColumns is the standard column set for subscriber queries.
const subscriberColumns = `phone, display_name, language, timezone,
	messaging_preference, is_premium, signed_up_at,
	next_push_message_at, last_message_sent_at, last_nightly_digest_run,
	created_at, updated_at`

// scanSubscriber scans a single subscriber row. The columns must match the
// order defined in subscriberColumns.
func scanSubscriber(row pgx.Row) (*types.Subscriber, error) {
	var s types.Subscriber
	var (
		displayName *string
		timezone    *string
		preference  *types.MessagingPreference
		lastRun     *string
	)

	err := row.Scan(
		&s.Phone,
		&displayName,
		&s.Language,
		&timezone,
		&preference,
		&s.IsPremium,
		&s.SignedUpAt,
		&s.NextPushMessageAt,
		&s.LastMessageSentAt,
		&lastRun,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Hydrate optional fields from nullable columns.
	if displayName != nil {
		s.DisplayName = *displayName
	}
	if timezone != nil {
		s.Timezone = *timezone
	}
	if preference != nil {
		s.MessagingPreference = preference
	}
	if lastRun != nil {
		day := types.LocalDate(*lastRun)
		s.LastNightlyDigestRun = &day
	}

	return &s, nil
}

// GetAllActive returns the full subscriber snapshot for one driver tick,
// ordered by phone for stable processing order within a sweep.
func (r *SubscriberRepository) GetAllActive(ctx context.Context) ([]types.Subscriber, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+subscriberColumns+`
		 FROM subscribers
		 ORDER BY phone`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query subscribers", err)
	}
	defer rows.Close()

	var subscribers []types.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscriber", err)
		}
		subscribers = append(subscribers, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating subscribers", err)
	}

	return subscribers, nil
}

// GetByPhone returns a single subscriber by their stable identifier.
func (r *SubscriberRepository) GetByPhone(ctx context.Context, phone string) (*types.Subscriber, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+subscriberColumns+`
		 FROM subscribers
		 WHERE phone = $1`,
		phone,
	)

	s, err := scanSubscriber(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundSubscriber, "subscriber not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get subscriber", err)
	}
	return s, nil
}

// Create inserts a new subscriber. When NextPushMessageAt is unset the
// first push defaults to 24 hours out, so a fresh signup is scheduled
// without waiting for the dispatch sweep to notice a nil field.
func (r *SubscriberRepository) Create(ctx context.Context, s *types.Subscriber) error {
	nextPush := s.NextPushMessageAt
	if nextPush == nil {
		t := time.Now().UTC().Add(defaultFirstPushDelay)
		nextPush = &t
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO subscribers
		 (phone, display_name, language, timezone, messaging_preference,
		  is_premium, signed_up_at, next_push_message_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), $8, NOW(), NOW())`,
		s.Phone,
		nilIfEmpty(s.DisplayName),
		s.Language,
		nilIfEmpty(s.Timezone),
		s.MessagingPreference,
		s.IsPremium,
		nilIfZeroTime(s.SignedUpAt),
		nextPush,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictSubscriberExists, "subscriber already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create subscriber", err)
	}
	return nil
}

// UpdateNextPush persists the next scheduled send time. The dispatch sweep
// calls this BEFORE handing the message to the delivery gateway; that
// ordering is the sole anti-duplicate mechanism, so callers must treat a
// failure here as "do not send".
func (r *SubscriberRepository) UpdateNextPush(ctx context.Context, phone string, at time.Time) error {
	return r.execSubscriberUpdate(ctx,
		`UPDATE subscribers
		 SET next_push_message_at = $2, updated_at = NOW()
		 WHERE phone = $1`,
		"failed to update next push time",
		phone, at,
	)
}

// UpdateLastMessageSent records an outgoing message timestamp for the
// re-engagement gate.
func (r *SubscriberRepository) UpdateLastMessageSent(ctx context.Context, phone string, at time.Time) error {
	return r.execSubscriberUpdate(ctx,
		`UPDATE subscribers
		 SET last_message_sent_at = $2, updated_at = NOW()
		 WHERE phone = $1`,
		"failed to update last message time",
		phone, at,
	)
}

// UpdateLastNightlyRun advances the nightly maintenance marker to the
// given local calendar date. Only called after the pipeline reports a
// delivered opener; the gate compares this date against "today" in the
// subscriber's own timezone.
func (r *SubscriberRepository) UpdateLastNightlyRun(ctx context.Context, phone string, day types.LocalDate) error {
	return r.execSubscriberUpdate(ctx,
		`UPDATE subscribers
		 SET last_nightly_digest_run = $2, updated_at = NOW()
		 WHERE phone = $1`,
		"failed to update nightly run marker",
		phone, string(day),
	)
}

// UpdateMessagingPreference replaces the subscriber's messaging preference.
// A nil preference clears the column; scheduling then falls back to the
// default morning window.
func (r *SubscriberRepository) UpdateMessagingPreference(ctx context.Context, phone string, pref *types.MessagingPreference) error {
	return r.execSubscriberUpdate(ctx,
		`UPDATE subscribers
		 SET messaging_preference = $2, updated_at = NOW()
		 WHERE phone = $1`,
		"failed to update messaging preference",
		phone, pref,
	)
}

// UpdateTimezone stores the subscriber-supplied timezone identifier as-is.
// Validation happens at scheduling time, where invalid values degrade to
// UTC instead of failing the record.
func (r *SubscriberRepository) UpdateTimezone(ctx context.Context, phone string, timezone string) error {
	return r.execSubscriberUpdate(ctx,
		`UPDATE subscribers
		 SET timezone = $2, updated_at = NOW()
		 WHERE phone = $1`,
		"failed to update timezone",
		phone, nilIfEmpty(timezone),
	)
}

// SetPremium flips the premium flag used by the plan-limit predicate.
func (r *SubscriberRepository) SetPremium(ctx context.Context, phone string, premium bool) error {
	return r.execSubscriberUpdate(ctx,
		`UPDATE subscribers
		 SET is_premium = $2, updated_at = NOW()
		 WHERE phone = $1`,
		"failed to update premium flag",
		phone, premium,
	)
}

// execSubscriberUpdate runs a single-row UPDATE and maps the zero-rows
// case to a not-found error.
func (r *SubscriberRepository) execSubscriberUpdate(ctx context.Context, sql, failMsg string, args ...any) error {
	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, failMsg, err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundSubscriber, "subscriber not found", nil)
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint
// violation (error code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// nilIfEmpty maps an empty string to SQL NULL.
func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nilIfZeroTime maps a zero time.Time to SQL NULL so COALESCE defaults apply.
func nilIfZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
