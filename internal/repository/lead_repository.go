package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/unclebandit/whatsapp-campaigns/internal/model"
)

// LeadRepositoryInterface defines methods used by service
type LeadRepositoryInterface interface {
	GetByIDs(ctx context.Context, ids []int) ([]model.Lead, error)
}

// IntegrationRepositoryInterface resolves gateway credentials by sender id.
type IntegrationRepositoryInterface interface {
	GetBySenderID(ctx context.Context, senderID string) (*model.Integration, error)
}

type LeadRepository struct {
	DB *sql.DB
}

// GetByIDs fetches the leads with the given ids; unknown ids are ignored.
func (r *LeadRepository) GetByIDs(ctx context.Context, ids []int) ([]model.Lead, error) {
	if len(ids) == 0 {
		return []model.Lead{}, nil
	}
	ids64 := make([]int64, len(ids))
	for i, id := range ids {
		ids64[i] = int64(id)
	}

	query := `
        SELECT id, name, phone, email, custom_fields
        FROM leads
        WHERE id = ANY($1)
        ORDER BY id
    `
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids64))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := []model.Lead{}
	for rows.Next() {
		var l model.Lead
		var fields []byte
		if err := rows.Scan(&l.ID, &l.Name, &l.Phone, &l.Email, &fields); err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			if err := json.Unmarshal(fields, &l.CustomFields); err != nil {
				return nil, err
			}
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

type IntegrationRepository struct {
	DB *sql.DB
}

// GetBySenderID returns nil, nil when no integration is registered for senderID.
func (r *IntegrationRepository) GetBySenderID(ctx context.Context, senderID string) (*model.Integration, error) {
	query := `SELECT sender_id, base_url, api_key, instance FROM whatsapp_integrations WHERE sender_id=$1`
	var in model.Integration
	err := r.DB.QueryRowContext(ctx, query, senderID).Scan(&in.SenderID, &in.BaseURL, &in.APIKey, &in.Instance)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

var (
	_ LeadRepositoryInterface        = (*LeadRepository)(nil)
	_ IntegrationRepositoryInterface = (*IntegrationRepository)(nil)
)
