package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/pkg/database"
	apperrors "github.com/clearcart/promotion-engine/pkg/errors"
)

// UsageLedger implements repository.UsageLedger on PostgreSQL. The commit
// path is the only place shared state is mutated; it runs as a single
// transaction holding a row lock on the campaign's usage counter so the
// limit invariants hold under arbitrary interleaving.
type UsageLedger struct {
	db database.DBTX
}

// NewUsageLedger creates a PostgreSQL-backed usage ledger.
func NewUsageLedger(db database.DBTX) *UsageLedger {
	return &UsageLedger{db: db}
}

// CountForUser returns how many times the user has used the campaign.
// Always reads the ledger directly; counts are never cached.
func (l *UsageLedger) CountForUser(ctx context.Context, campaignID, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM campaign_usages WHERE campaign_id = $1 AND user_id = $2`

	var count int
	if err := l.db.QueryRow(ctx, query, campaignID, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count usage for user: %w", err)
	}
	return count, nil
}

// RecordAtomic re-checks usage headroom and appends the usage record while
// incrementing the campaign counter, all inside one transaction. The
// campaign row is locked with SELECT ... FOR UPDATE so concurrent commits
// for the same campaign serialize; a limit reached by a concurrent writer
// surfaces as ErrUsageLimitReached even if the earlier evaluation passed.
func (l *UsageLedger) RecordAtomic(ctx context.Context, rec *domain.UsageRecord) error {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin usage transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		currentCount int
		maxCount     int
		maxPerUser   int
	)
	lockQuery := `
		SELECT current_usage_count, max_usage_count, max_usage_per_user
		FROM campaigns
		WHERE id = $1
		FOR UPDATE`

	if err := tx.QueryRow(ctx, lockQuery, rec.CampaignID).Scan(&currentCount, &maxCount, &maxPerUser); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("campaign", rec.CampaignID)
		}
		return fmt.Errorf("lock campaign row: %w", err)
	}

	if maxCount > 0 && currentCount >= maxCount {
		return apperrors.UsageLimitExceeded("campaign usage limit reached")
	}

	if maxPerUser > 0 {
		var userCount int
		countQuery := `SELECT COUNT(*) FROM campaign_usages WHERE campaign_id = $1 AND user_id = $2`
		if err := tx.QueryRow(ctx, countQuery, rec.CampaignID, rec.UserID).Scan(&userCount); err != nil {
			return fmt.Errorf("count user usage in transaction: %w", err)
		}
		if userCount >= maxPerUser {
			return apperrors.UsageLimitExceeded("user has reached the usage limit for this campaign")
		}
	}

	metadataJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("marshal usage metadata: %w", err)
	}

	insertQuery := `
		INSERT INTO campaign_usages (
			id, campaign_id, user_id, order_id, discount_applied,
			order_amount, idempotency_key, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = tx.Exec(ctx, insertQuery,
		rec.ID, rec.CampaignID, rec.UserID, rec.OrderID, rec.DiscountApplied,
		rec.OrderAmount, nullableKey(rec.IdempotencyKey), metadataJSON, rec.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// An idempotency-key replay: the original commit already exists.
			return apperrors.AlreadyExists("usage record", "idempotency_key", rec.IdempotencyKey)
		}
		return fmt.Errorf("insert usage record: %w", err)
	}

	updateQuery := `
		UPDATE campaigns
		SET current_usage_count = current_usage_count + 1, updated_at = NOW()
		WHERE id = $1`

	if _, err := tx.Exec(ctx, updateQuery, rec.CampaignID); err != nil {
		return fmt.Errorf("increment usage count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return fmt.Errorf("commit usage record: %w", apperrors.ErrConflict)
		}
		return fmt.Errorf("commit usage record: %w", err)
	}

	return nil
}

// FindByIdempotencyKey returns the usage record previously committed under
// the caller-supplied key, if any.
func (l *UsageLedger) FindByIdempotencyKey(ctx context.Context, campaignID, key string) (*domain.UsageRecord, error) {
	query := `
		SELECT id, campaign_id, user_id, order_id, discount_applied,
		       order_amount, idempotency_key, metadata, created_at
		FROM campaign_usages
		WHERE campaign_id = $1 AND idempotency_key = $2`

	var (
		rec          domain.UsageRecord
		key2         *string
		metadataJSON []byte
	)

	err := l.db.QueryRow(ctx, query, campaignID, key).Scan(
		&rec.ID, &rec.CampaignID, &rec.UserID, &rec.OrderID, &rec.DiscountApplied,
		&rec.OrderAmount, &key2, &metadataJSON, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("find usage by idempotency key: %w", err)
	}

	if key2 != nil {
		rec.IdempotencyKey = *key2
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal usage metadata: %w", err)
		}
	}

	return &rec, nil
}

func nullableKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}
