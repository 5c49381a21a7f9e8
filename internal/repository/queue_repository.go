package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

// QueueRepositoryInterface is the shared queue store the processors coordinate through.
type QueueRepositoryInterface interface {
	// Enqueue inserts one Pending item per recipient and returns how many were new.
	// A recipient phone already queued for the campaign is skipped.
	Enqueue(ctx context.Context, campaignID int, recipients []model.Recipient) (int, error)
	CountByStatus(ctx context.Context, campaignID int, status string) (int, error)
	// StatusCounts is CountByStatus for every status in one round trip.
	StatusCounts(ctx context.Context, campaignID int) (model.CampaignStats, error)
	// SelectOnePendingID returns an arbitrary Pending item id, or ok=false when none is left.
	SelectOnePendingID(ctx context.Context, campaignID int) (id int, ok bool, err error)
	// ConditionalClaim atomically moves the item from Pending to Sending.
	// It returns nil, nil when the item is no longer Pending.
	ConditionalClaim(ctx context.Context, itemID int) (*model.QueueItem, error)
	// SetTerminal records the outcome of the claim taken at claimedAt. It reports
	// false when the item is no longer held by that claim.
	SetTerminal(ctx context.Context, itemID int, claimedAt time.Time, status string, sentAt time.Time, errorMessage string) (bool, error)
	// ReleaseStaleLeases returns items claimed before olderThan to Pending.
	ReleaseStaleLeases(ctx context.Context, campaignID int, olderThan time.Time) (int, error)
}

type QueueRepository struct {
	DB *sql.DB
}

const queueItemColumns = `id, campaign_id, recipient_name, recipient_phone, recipient_email, recipient_data,
	status, claimed_at, sent_at, error_message, created_at`

func scanQueueItem(row rowScanner) (*model.QueueItem, error) {
	var (
		item model.QueueItem
		data []byte
	)
	err := row.Scan(
		&item.ID, &item.CampaignID, &item.RecipientName, &item.RecipientPhone, &item.RecipientEmail, &data,
		&item.Status, &item.ClaimedAt, &item.SentAt, &item.ErrorMessage, &item.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &item.RecipientData); err != nil {
			return nil, fmt.Errorf("decode recipient_data of item %d: %w", item.ID, err)
		}
	}
	return &item, nil
}

func (r *QueueRepository) Enqueue(ctx context.Context, campaignID int, recipients []model.Recipient) (int, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO campaign_queue (campaign_id, recipient_name, recipient_phone, recipient_email, recipient_data, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
        ON CONFLICT (campaign_id, recipient_phone) DO NOTHING
    `)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, rcp := range recipients {
		data := rcp.Data
		if data == nil {
			data = map[string]interface{}{}
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return 0, fmt.Errorf("encode data for %s: %w", rcp.Phone, err)
		}
		res, err := stmt.ExecContext(ctx, campaignID, rcp.Name, rcp.Phone, rcp.Email, raw, model.ItemPending)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

func (r *QueueRepository) CountByStatus(ctx context.Context, campaignID int, status string) (int, error) {
	var count int
	err := r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM campaign_queue WHERE campaign_id=$1 AND status=$2`,
		campaignID, status,
	).Scan(&count)
	return count, err
}

func (r *QueueRepository) StatusCounts(ctx context.Context, campaignID int) (model.CampaignStats, error) {
	var stats model.CampaignStats
	query := `SELECT status, COUNT(*) FROM campaign_queue WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		switch status {
		case model.ItemPending:
			stats.Pending = count
		case model.ItemSending:
			stats.Sending = count
		case model.ItemSent:
			stats.Sent = count
		case model.ItemFailed:
			stats.Failed = count
		}
	}
	// Items in flight are not part of the total until they settle.
	stats.Total = stats.Sent + stats.Failed + stats.Pending
	return stats, rows.Err()
}

func (r *QueueRepository) SelectOnePendingID(ctx context.Context, campaignID int) (int, bool, error) {
	var id int
	err := r.DB.QueryRowContext(ctx,
		`SELECT id FROM campaign_queue WHERE campaign_id=$1 AND status=$2 LIMIT 1`,
		campaignID, model.ItemPending,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// ConditionalClaim is a single UPDATE guarded on the current status, so two
// instances racing for the same row cannot both see it succeed.
func (r *QueueRepository) ConditionalClaim(ctx context.Context, itemID int) (*model.QueueItem, error) {
	query := `
        UPDATE campaign_queue SET status=$1, claimed_at=NOW()
        WHERE id=$2 AND status=$3
        RETURNING ` + queueItemColumns
	item, err := scanQueueItem(r.DB.QueryRowContext(ctx, query, model.ItemSending, itemID, model.ItemPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *QueueRepository) SetTerminal(ctx context.Context, itemID int, claimedAt time.Time, status string, sentAt time.Time, errorMessage string) (bool, error) {
	if !model.IsTerminal(status) {
		return false, fmt.Errorf("status %q is not terminal", status)
	}
	query := `UPDATE campaign_queue SET status=$1, sent_at=$2, error_message=$3 WHERE id=$4 AND status=$5 AND claimed_at=$6`
	res, err := r.DB.ExecContext(ctx, query, status, sentAt, errorMessage, itemID, model.ItemSending, claimedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *QueueRepository) ReleaseStaleLeases(ctx context.Context, campaignID int, olderThan time.Time) (int, error) {
	query := `
        UPDATE campaign_queue SET status=$1, claimed_at=NULL
        WHERE campaign_id=$2 AND status=$3 AND claimed_at < $4
    `
	res, err := r.DB.ExecContext(ctx, query, model.ItemPending, campaignID, model.ItemSending, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
