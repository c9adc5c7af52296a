package repo

import (
	"context"
	"database/sql"
	"errors"

	"wadispatch/internal/model"
)

type PostgresCampaignRepo struct {
	db *sql.DB
}

func NewPostgresCampaignRepo(db *sql.DB) *PostgresCampaignRepo {
	return &PostgresCampaignRepo{db: db}
}

func (r *PostgresCampaignRepo) CreateCampaign(ctx context.Context, ownerID, message string, totalRecipients int) (int64, error) {
	if totalRecipients <= 0 {
		return 0, errors.New("totalRecipients must be > 0")
	}

	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO campaigns (owner_id, message, total_recipients, status, created_at)
		VALUES ($1, $2, $3, 'sending', now())
		RETURNING id
	`, ownerID, message, totalRecipients).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *PostgresCampaignRepo) AppendLog(ctx context.Context, campaignID int64, contactPhone string, outcome model.Outcome, errorReason string) error {
	reason := sql.NullString{String: errorReason, Valid: errorReason != ""}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_logs (campaign_id, contact_phone, status, error_reason, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, campaignID, contactPhone, string(outcome), reason)
	return err
}

func (r *PostgresCampaignRepo) FinalizeCampaign(ctx context.Context, id int64, status model.CampaignStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2
		WHERE id = $1
	`, id, string(status))
	return err
}

func (r *PostgresCampaignRepo) ListCampaigns(ctx context.Context, ownerID string, limit, offset int) ([]model.Campaign, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, message, total_recipients, status, created_at
		FROM campaigns
		WHERE ($1 = '' OR owner_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Campaign
	for rows.Next() {
		var c model.Campaign
		var status string
		if err := rows.Scan(
			&c.ID,
			&c.OwnerID,
			&c.Message,
			&c.TotalRecipients,
			&status,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		c.Status = model.CampaignStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCampaignRepo) ListLogs(ctx context.Context, campaignID int64, limit, offset int) ([]model.DispatchLog, error) {
	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, contact_phone, status, error_reason, created_at
		FROM dispatch_logs
		WHERE campaign_id = $1
		ORDER BY id ASC
		LIMIT $2 OFFSET $3
	`, campaignID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DispatchLog
	for rows.Next() {
		var l model.DispatchLog
		var status string
		var reason sql.NullString

		if err := rows.Scan(
			&l.ID,
			&l.CampaignID,
			&l.ContactPhone,
			&status,
			&reason,
			&l.CreatedAt,
		); err != nil {
			return nil, err
		}

		l.Status = model.Outcome(status)
		if reason.Valid {
			s := reason.String
			l.ErrorReason = &s
		}

		out = append(out, l)
	}
	return out, rows.Err()
}
