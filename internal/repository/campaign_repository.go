package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/whatsapp-campaigns/internal/errors"
	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

// CampaignRepositoryInterface is the campaign record store.
type CampaignRepositoryInterface interface {
	ListCampaigns(ctx context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error)
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	Create(ctx context.Context, c *model.Campaign) error
	UpdateStatus(ctx context.Context, campaignID int, status string) error
	UpdateStats(ctx context.Context, campaignID int, stats model.CampaignStats) error
	// MarkCompleted flips the campaign to Completed unless it already is.
	// It reports true only for the call that performed the transition.
	MarkCompleted(ctx context.Context, campaignID int, at time.Time) (bool, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, channel, status, sender_id, content, image_url, content2, delay_seconds,
	stats_sent, stats_failed, stats_total, created_at, updated_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.Channel, &c.Status, &c.SenderID,
		&c.Content, &c.ImageURL, &c.Content2, &c.DelaySeconds,
		&c.Stats.Sent, &c.Stats.Failed, &c.Stats.Total,
		&c.CreatedAt, &c.UpdatedAt, &c.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Channel == "" {
		c.Channel = model.ChannelWhatsApp
	}
	if c.DelaySeconds <= 0 {
		c.DelaySeconds = model.DefaultDelaySeconds
	}
	query := `
        INSERT INTO campaigns (name, channel, status, sender_id, content, image_url, content2, delay_seconds, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		c.Name, c.Channel, c.Status, c.SenderID, c.Content, c.ImageURL, c.Content2, c.DelaySeconds, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, campaignID int, status string) error {
	query := `UPDATE campaigns SET status=$1, updated_at=$2 WHERE id=$3`
	res, err := r.DB.ExecContext(ctx, query, status, time.Now(), campaignID)
	if err != nil {
		return err
	}
	return requireAffected(res, campaignID)
}

func (r *CampaignRepository) UpdateStats(ctx context.Context, campaignID int, stats model.CampaignStats) error {
	query := `UPDATE campaigns SET stats_sent=$1, stats_failed=$2, stats_total=$3, updated_at=$4 WHERE id=$5`
	_, err := r.DB.ExecContext(ctx, query, stats.Sent, stats.Failed, stats.Total, time.Now(), campaignID)
	return err
}

func (r *CampaignRepository) MarkCompleted(ctx context.Context, campaignID int, at time.Time) (bool, error) {
	query := `UPDATE campaigns SET status=$1, completed_at=$2, updated_at=$2 WHERE id=$3 AND status <> $1`
	res, err := r.DB.ExecContext(ctx, query, model.CampaignCompleted, at, campaignID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, channel, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if channel != "" {
		where += fmt.Sprintf(" AND channel=$%d", argPos)
		args = append(args, channel)
		argPos++
	}
	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

func requireAffected(res sql.Result, campaignID int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewCampaignNotFound(campaignID)
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
