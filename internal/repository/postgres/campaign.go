package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clearcart/promotion-engine/internal/domain"
	"github.com/clearcart/promotion-engine/internal/repository"
	"github.com/clearcart/promotion-engine/pkg/database"
	apperrors "github.com/clearcart/promotion-engine/pkg/errors"
)

const campaignColumns = `id, name, description, type, target_type, status, code,
		discount_value, min_order_amount, max_discount_amount,
		max_usage_count, max_usage_per_user, current_usage_count,
		start_date, end_date,
		target_market_ids, target_product_ids, target_user_ids, target_categories,
		buy_x_get_y, conditions,
		is_automatic, is_stackable, priority, created_at, updated_at`

// CampaignRepository implements repository.CampaignRepository on PostgreSQL.
type CampaignRepository struct {
	db database.DBTX
}

// NewCampaignRepository creates a PostgreSQL-backed campaign repository.
func NewCampaignRepository(db database.DBTX) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts a new campaign.
func (r *CampaignRepository) Create(ctx context.Context, c *domain.Campaign) error {
	enc, err := encodeCampaign(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO campaigns (` + campaignColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`

	_, err = r.db.Exec(ctx, query,
		c.ID, c.Name, c.Description, c.Type, c.TargetType, c.Status, nullableCode(c.Code),
		c.DiscountValue, c.MinOrderAmount, c.MaxDiscountAmount,
		c.MaxUsageCount, c.MaxUsagePerUser, c.CurrentUsageCount,
		c.StartDate, c.EndDate,
		enc.marketIDs, enc.productIDs, enc.userIDs, enc.categories,
		enc.buyXGetY, enc.conditions,
		c.IsAutomatic, c.IsStackable, c.Priority, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "code", c.Code)
		}
		return fmt.Errorf("insert campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by its ID.
func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return r.scanCampaignRow(r.db.QueryRow(ctx, query, id))
}

// GetByCode retrieves a campaign by its normalized coupon code.
func (r *CampaignRepository) GetByCode(ctx context.Context, code string) (*domain.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE code = $1`
	return r.scanCampaignRow(r.db.QueryRow(ctx, query, domain.NormalizeCode(code)))
}

// List returns campaigns matching the filter with the total count.
func (r *CampaignRepository) List(ctx context.Context, filter repository.CampaignFilter) ([]domain.Campaign, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIndex))
		args = append(args, *filter.Type)
		argIndex++
	}
	if filter.TargetType != nil {
		conditions = append(conditions, fmt.Sprintf("target_type = $%d", argIndex))
		args = append(args, *filter.TargetType)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT `+campaignColumns+`, count(*) OVER() AS total_count
		FROM campaigns
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var (
		campaigns  []domain.Campaign
		totalCount int
	)

	for rows.Next() {
		c, total, err := scanCampaignWithTotal(rows)
		if err != nil {
			return nil, 0, err
		}
		totalCount = total
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate campaign rows: %w", err)
	}

	if campaigns == nil {
		campaigns = []domain.Campaign{}
	}

	return campaigns, totalCount, nil
}

// Update modifies an existing campaign.
func (r *CampaignRepository) Update(ctx context.Context, c *domain.Campaign) error {
	enc, err := encodeCampaign(c)
	if err != nil {
		return err
	}

	c.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE campaigns
		SET name = $1, description = $2, type = $3, target_type = $4, status = $5,
		    code = $6, discount_value = $7, min_order_amount = $8,
		    max_discount_amount = $9, max_usage_count = $10, max_usage_per_user = $11,
		    start_date = $12, end_date = $13,
		    target_market_ids = $14, target_product_ids = $15,
		    target_user_ids = $16, target_categories = $17,
		    buy_x_get_y = $18, conditions = $19,
		    is_automatic = $20, is_stackable = $21, priority = $22, updated_at = $23
		WHERE id = $24`

	ct, err := r.db.Exec(ctx, query,
		c.Name, c.Description, c.Type, c.TargetType, c.Status,
		nullableCode(c.Code), c.DiscountValue, c.MinOrderAmount,
		c.MaxDiscountAmount, c.MaxUsageCount, c.MaxUsagePerUser,
		c.StartDate, c.EndDate,
		enc.marketIDs, enc.productIDs, enc.userIDs, enc.categories,
		enc.buyXGetY, enc.conditions,
		c.IsAutomatic, c.IsStackable, c.Priority, c.UpdatedAt,
		c.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.AlreadyExists("campaign", "code", c.Code)
		}
		return fmt.Errorf("update campaign: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("campaign", c.ID)
	}

	return nil
}

// FindActiveCandidates returns operationally active campaigns at the given
// instant. Target matching is left to the evaluator.
func (r *CampaignRepository) FindActiveCandidates(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	query := `
		SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE status = $1
		  AND start_date <= $2
		  AND end_date >= $2
		  AND (max_usage_count = 0 OR current_usage_count < max_usage_count)
		ORDER BY priority DESC, created_at DESC`

	rows, err := r.db.Query(ctx, query, domain.CampaignStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("find active candidates: %w", err)
	}
	defer rows.Close()

	var campaigns []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidate rows: %w", err)
	}

	return campaigns, nil
}

// --- scanning helpers ---

type encodedCampaign struct {
	marketIDs  []byte
	productIDs []byte
	userIDs    []byte
	categories []byte
	buyXGetY   []byte
	conditions []byte
}

func encodeCampaign(c *domain.Campaign) (*encodedCampaign, error) {
	enc := &encodedCampaign{}
	var err error

	if enc.marketIDs, err = json.Marshal(orEmpty(c.TargetMarketIDs)); err != nil {
		return nil, fmt.Errorf("marshal target_market_ids: %w", err)
	}
	if enc.productIDs, err = json.Marshal(orEmpty(c.TargetProductIDs)); err != nil {
		return nil, fmt.Errorf("marshal target_product_ids: %w", err)
	}
	if enc.userIDs, err = json.Marshal(orEmpty(c.TargetUserIDs)); err != nil {
		return nil, fmt.Errorf("marshal target_user_ids: %w", err)
	}
	if enc.categories, err = json.Marshal(orEmpty(c.TargetCategories)); err != nil {
		return nil, fmt.Errorf("marshal target_categories: %w", err)
	}
	if c.BuyXGetY != nil {
		if enc.buyXGetY, err = json.Marshal(c.BuyXGetY); err != nil {
			return nil, fmt.Errorf("marshal buy_x_get_y: %w", err)
		}
	}
	if enc.conditions, err = json.Marshal(c.Conditions); err != nil {
		return nil, fmt.Errorf("marshal conditions: %w", err)
	}

	return enc, nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullableCode(code string) *string {
	if code == "" {
		return nil
	}
	normalized := domain.NormalizeCode(code)
	return &normalized
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaignInto(row rowScanner, c *domain.Campaign, extra ...any) error {
	var (
		code           *string
		marketIDsJSON  []byte
		productIDsJSON []byte
		userIDsJSON    []byte
		categoriesJSON []byte
		buyXGetYJSON   []byte
		conditionsJSON []byte
	)

	dest := []any{
		&c.ID, &c.Name, &c.Description, &c.Type, &c.TargetType, &c.Status, &code,
		&c.DiscountValue, &c.MinOrderAmount, &c.MaxDiscountAmount,
		&c.MaxUsageCount, &c.MaxUsagePerUser, &c.CurrentUsageCount,
		&c.StartDate, &c.EndDate,
		&marketIDsJSON, &productIDsJSON, &userIDsJSON, &categoriesJSON,
		&buyXGetYJSON, &conditionsJSON,
		&c.IsAutomatic, &c.IsStackable, &c.Priority, &c.CreatedAt, &c.UpdatedAt,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("scan campaign: %w", err)
	}

	if code != nil {
		c.Code = *code
	}

	for _, f := range []struct {
		data []byte
		dst  *[]string
		name string
	}{
		{marketIDsJSON, &c.TargetMarketIDs, "target_market_ids"},
		{productIDsJSON, &c.TargetProductIDs, "target_product_ids"},
		{userIDsJSON, &c.TargetUserIDs, "target_user_ids"},
		{categoriesJSON, &c.TargetCategories, "target_categories"},
	} {
		if f.data != nil {
			if err := json.Unmarshal(f.data, f.dst); err != nil {
				return fmt.Errorf("unmarshal %s: %w", f.name, err)
			}
		}
		if *f.dst == nil {
			*f.dst = []string{}
		}
	}

	if buyXGetYJSON != nil {
		c.BuyXGetY = &domain.BuyXGetYConfig{}
		if err := json.Unmarshal(buyXGetYJSON, c.BuyXGetY); err != nil {
			return fmt.Errorf("unmarshal buy_x_get_y: %w", err)
		}
	}
	if conditionsJSON != nil {
		if err := json.Unmarshal(conditionsJSON, &c.Conditions); err != nil {
			return fmt.Errorf("unmarshal conditions: %w", err)
		}
	}

	return nil
}

func (r *CampaignRepository) scanCampaignRow(row pgx.Row) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := scanCampaignInto(row, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCampaign(rows pgx.Rows) (*domain.Campaign, error) {
	var c domain.Campaign
	if err := scanCampaignInto(rows, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCampaignWithTotal(rows pgx.Rows) (*domain.Campaign, int, error) {
	var (
		c     domain.Campaign
		total int
	)
	if err := scanCampaignInto(rows, &c, &total); err != nil {
		return nil, 0, err
	}
	return &c, total, nil
}

// isUniqueViolation checks for a PostgreSQL unique constraint violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isSerializationFailure checks for a retryable transaction conflict
// (serialization failure 40001 or deadlock 40P01).
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}
