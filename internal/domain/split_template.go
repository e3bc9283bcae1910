package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// Category is one of the three independent buckets AGCI is distributed through
type Category string

const (
	CategoryOrigination Category = "ORIGINATION"
	CategorySite        Category = "SITE"
	CategoryDeal        Category = "DEAL"
)

// Categories lists every category in distribution order
var Categories = []Category{CategoryOrigination, CategorySite, CategoryDeal}

// CommissionSplitTemplate holds one participant's intended share of each category for a deal
type CommissionSplitTemplate struct {
	ID                 uuid.UUID
	DealID             uuid.UUID
	ParticipantID      uuid.UUID
	ParticipantName    string
	OriginationPercent Percent
	SitePercent        Percent
	DealPercent        Percent
}

// Percent returns the participant's share of category c
func (t *CommissionSplitTemplate) Percent(c Category) Percent {
	switch c {
	case CategoryOrigination:
		return t.OriginationPercent
	case CategorySite:
		return t.SitePercent
	default:
		return t.DealPercent
	}
}

// Validate ensures the template row is well formed
func (t *CommissionSplitTemplate) Validate() error {
	if t.ParticipantID == uuid.Nil {
		return fmt.Errorf("%w: template participant ID cannot be empty", ErrInvalidInput)
	}
	if err := t.OriginationPercent.Validate("origination_percent"); err != nil {
		return err
	}
	if err := t.SitePercent.Validate("site_percent"); err != nil {
		return err
	}
	return t.DealPercent.Validate("deal_percent")
}

// ValidateTemplates checks every row and that no participant appears twice for a deal
func ValidateTemplates(dealID uuid.UUID, templates []CommissionSplitTemplate) error {
	seen := make(map[uuid.UUID]bool, len(templates))
	for i := range templates {
		t := &templates[i]
		if t.DealID != dealID {
			return fmt.Errorf("%w: template %s belongs to deal %s, not %s", ErrInvalidInput, t.ID, t.DealID, dealID)
		}
		if err := t.Validate(); err != nil {
			return err
		}
		if seen[t.ParticipantID] {
			return fmt.Errorf("%w: participant %s appears more than once in the split template", ErrInvalidInput, t.ParticipantID)
		}
		seen[t.ParticipantID] = true
	}
	return nil
}
