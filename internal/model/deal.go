package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// DealStatus tracks where a deal sits in the diligence workflow.
type DealStatus string

const (
	DealStatusOpen     DealStatus = "open"
	DealStatusReview   DealStatus = "review"
	DealStatusClosed   DealStatus = "closed"
	DealStatusArchived DealStatus = "archived"
)

// Deal is the tenant boundary. Every record, observation, and ledger entry is
// scoped to exactly one deal; identifiers are unique within a deal, not
// across deals.
type Deal struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	TargetName string     `json:"target_name"`
	BuyerName  string     `json:"buyer_name"`
	Status     DealStatus `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewDeal creates an open deal with a fresh UUID. Name is required; target
// and buyer display names are optional labels.
func NewDeal(name, targetName, buyerName string) (*Deal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, eris.New("model: deal name is required")
	}
	now := time.Now().UTC()
	return &Deal{
		ID:         uuid.New().String(),
		Name:       name,
		TargetName: strings.TrimSpace(targetName),
		BuyerName:  strings.TrimSpace(buyerName),
		Status:     DealStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}
