package model

import "time"

type CampaignStatus string

const (
	Sending        CampaignStatus = "sending"
	Completed      CampaignStatus = "completed"
	PartialFailure CampaignStatus = "partial_failure"
	Failed         CampaignStatus = "failed"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// Campaign is one bulk-send job. Written only by the dispatch worker:
// created once with status=sending, updated once more with a terminal status.
type Campaign struct {
	ID              int64          `json:"id"`
	OwnerID         string         `json:"ownerId"`
	Message         string         `json:"message"`
	TotalRecipients int            `json:"totalRecipients"`
	Status          CampaignStatus `json:"status"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// DispatchLog records the outcome of one send attempt. Exactly one row per
// attempted recipient; recipients never attempted have no row.
type DispatchLog struct {
	ID           int64     `json:"id"`
	CampaignID   int64     `json:"campaignId"`
	ContactPhone string    `json:"contactPhone"`
	Status       Outcome   `json:"status"`
	ErrorReason  *string   `json:"errorReason"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Recipient is parsed from the request payload per campaign and never
// persisted as its own entity.
type Recipient struct {
	Phone string
	Name  string
	Group string
}
