package repo

import (
	"context"

	"wadispatch/internal/model"
)

// CampaignRepository is the ledger contract the dispatch worker depends on.
// CreateCampaign must return the generated id synchronously so log entries
// can reference it; AppendLog calls are independent and never retried.
type CampaignRepository interface {
	CreateCampaign(ctx context.Context, ownerID, message string, totalRecipients int) (int64, error)
	AppendLog(ctx context.Context, campaignID int64, contactPhone string, outcome model.Outcome, errorReason string) error
	FinalizeCampaign(ctx context.Context, id int64, status model.CampaignStatus) error
	ListCampaigns(ctx context.Context, ownerID string, limit, offset int) ([]model.Campaign, error)
	ListLogs(ctx context.Context, campaignID int64, limit, offset int) ([]model.DispatchLog, error)
}
