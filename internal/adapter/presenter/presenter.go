// Package presenter maps domain values to the wire shapes shared by the
// gRPC and HTTP transports. Money and percentages travel as decimal strings.
package presenter

import (
	"time"

	"github.com/google/uuid"

	"github.com/simaogato/dealflow-backend/internal/domain"
	"github.com/simaogato/dealflow-backend/internal/usecase/recalc"
	"github.com/simaogato/dealflow-backend/internal/usecase/summary"
)

// RecomputeRequest asks for a recompute of a deal's payments
type RecomputeRequest struct {
	DealID        string   `json:"deal_id"`
	ChangedFields []string `json:"changed_fields"`
}

// OverrideRequest sets a user-owned amount on a payment
type OverrideRequest struct {
	PaymentID string `json:"payment_id"`
	Amount    string `json:"amount" binding:"required"`
}

// ClearOverrideRequest returns a payment to its templated amount
type ClearOverrideRequest struct {
	PaymentID string `json:"payment_id"`
}

// DealRequest identifies a deal
type DealRequest struct {
	DealID string `json:"deal_id"`
}

type Split struct {
	ID            string `json:"id"`
	ParticipantID string `json:"participant_id"`
	Origination   string `json:"origination_amount"`
	Site          string `json:"site_amount"`
	Deal          string `json:"deal_amount"`
	Total         string `json:"total"`
}

type Payment struct {
	ID             string     `json:"id"`
	DealID         string     `json:"deal_id"`
	Sequence       int        `json:"sequence"`
	Amount         string     `json:"amount"`
	OverrideMode   string     `json:"override_mode"`
	OverriddenAt   *time.Time `json:"overridden_at,omitempty"`
	OverriddenBy   string     `json:"overridden_by,omitempty"`
	ReferralFee    string     `json:"referral_fee"`
	GCI            string     `json:"gci"`
	HouseSplit     string     `json:"house_split"`
	AGCI           string     `json:"agci"`
	Version        int64      `json:"version"`
	Splits         []Split    `json:"splits"`
	Distributed    string     `json:"distributed,omitempty"`
	HouseRetention string     `json:"house_retention,omitempty"`
}

type Deal struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Fee                string    `json:"fee"`
	ReferralFeePercent string    `json:"referral_fee_percent"`
	HousePercent       string    `json:"house_percent"`
	OriginationPercent string    `json:"origination_percent"`
	SitePercent        string    `json:"site_percent"`
	DealPercent        string    `json:"deal_percent"`
	NumberOfPayments   int       `json:"number_of_payments"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type Template struct {
	ID                 string `json:"id"`
	ParticipantID      string `json:"participant_id"`
	ParticipantName    string `json:"participant_name"`
	OriginationPercent string `json:"origination_percent"`
	SitePercent        string `json:"site_percent"`
	DealPercent        string `json:"deal_percent"`
}

type ParticipantTotal struct {
	ParticipantID   string `json:"participant_id"`
	ParticipantName string `json:"participant_name"`
	Origination     string `json:"origination_amount"`
	Site            string `json:"site_amount"`
	Deal            string `json:"deal_amount"`
	Total           string `json:"total"`
}

type Totals struct {
	Amount         string `json:"amount"`
	ReferralFee    string `json:"referral_fee"`
	GCI            string `json:"gci"`
	HouseSplit     string `json:"house_split"`
	AGCI           string `json:"agci"`
	Distributed    string `json:"distributed"`
	HouseRetention string `json:"house_retention"`
}

// RecomputeResponse lists every payment a write touched
type RecomputeResponse struct {
	DealID            string    `json:"deal_id"`
	Payments          []Payment `json:"payments"`
	DeletedPaymentIDs []string  `json:"deleted_payment_ids"`
}

type DealSummary struct {
	Deal         Deal               `json:"deal"`
	Templates    []Template         `json:"templates"`
	Payments     []Payment          `json:"payments"`
	Participants []ParticipantTotal `json:"participants"`
	Totals       Totals             `json:"totals"`
}

// FromResult converts a recompute result
func FromResult(r *recalc.Result) RecomputeResponse {
	resp := RecomputeResponse{
		Payments:          make([]Payment, 0, len(r.Payments)),
		DeletedPaymentIDs: make([]string, 0, len(r.Deleted)),
	}
	if r.Deal != nil {
		resp.DealID = r.Deal.ID.String()
	}
	for _, p := range r.Payments {
		resp.Payments = append(resp.Payments, FromPayment(p, r.Splits[p.ID]))
	}
	for _, id := range r.Deleted {
		resp.DeletedPaymentIDs = append(resp.DeletedPaymentIDs, id.String())
	}
	return resp
}

// FromSummary converts a deal summary
func FromSummary(s *summary.DealSummary) DealSummary {
	out := DealSummary{
		Deal:         FromDeal(s.Deal),
		Templates:    make([]Template, 0, len(s.Templates)),
		Payments:     make([]Payment, 0, len(s.Payments)),
		Participants: make([]ParticipantTotal, 0, len(s.Participants)),
		Totals: Totals{
			Amount:         s.Totals.Amount.String(),
			ReferralFee:    s.Totals.ReferralFee.String(),
			GCI:            s.Totals.GCI.String(),
			HouseSplit:     s.Totals.HouseSplit.String(),
			AGCI:           s.Totals.AGCI.String(),
			Distributed:    s.Totals.Distributed.String(),
			HouseRetention: s.Totals.HouseRetention.String(),
		},
	}
	for _, t := range s.Templates {
		out.Templates = append(out.Templates, Template{
			ID:                 t.ID.String(),
			ParticipantID:      t.ParticipantID.String(),
			ParticipantName:    t.ParticipantName,
			OriginationPercent: t.OriginationPercent.String(),
			SitePercent:        t.SitePercent.String(),
			DealPercent:        t.DealPercent.String(),
		})
	}
	for _, ps := range s.Payments {
		p := FromPayment(ps.Payment, ps.Splits)
		p.Distributed = ps.Distributed.String()
		p.HouseRetention = ps.HouseRetention.String()
		out.Payments = append(out.Payments, p)
	}
	for _, pt := range s.Participants {
		out.Participants = append(out.Participants, ParticipantTotal{
			ParticipantID:   pt.ParticipantID.String(),
			ParticipantName: pt.ParticipantName,
			Origination:     pt.Origination.String(),
			Site:            pt.Site.String(),
			Deal:            pt.Deal.String(),
			Total:           pt.Total.String(),
		})
	}
	return out
}

func FromDeal(d *domain.Deal) Deal {
	return Deal{
		ID:                 d.ID.String(),
		Name:               d.Name,
		Fee:                d.Fee.String(),
		ReferralFeePercent: d.ReferralFeePercent.String(),
		HousePercent:       d.HousePercent.String(),
		OriginationPercent: d.OriginationPercent.String(),
		SitePercent:        d.SitePercent.String(),
		DealPercent:        d.DealPercent.String(),
		NumberOfPayments:   d.NumberOfPayments,
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
}

func FromPayment(p *domain.Payment, splits []domain.PaymentSplit) Payment {
	out := Payment{
		ID:           p.ID.String(),
		DealID:       p.DealID.String(),
		Sequence:     p.Sequence,
		Amount:       p.Amount.String(),
		OverrideMode: string(p.OverrideMode),
		OverriddenBy: p.OverriddenBy,
		ReferralFee:  p.ReferralFee.String(),
		GCI:          p.GCI.String(),
		HouseSplit:   p.HouseSplit.String(),
		AGCI:         p.AGCI.String(),
		Version:      p.Version,
		Splits:       make([]Split, 0, len(splits)),
	}
	if p.OverriddenAt != nil {
		at := p.OverriddenAt.UTC()
		out.OverriddenAt = &at
	}
	for _, s := range splits {
		out.Splits = append(out.Splits, Split{
			ID:            s.ID.String(),
			ParticipantID: s.ParticipantID.String(),
			Origination:   s.OriginationAmount.String(),
			Site:          s.SiteAmount.String(),
			Deal:          s.DealAmount.String(),
			Total:         s.Total.String(),
		})
	}
	return out
}

// ParseID parses a UUID path or body parameter, naming the field on failure
func ParseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &FieldError{Field: field, Err: err}
	}
	return id, nil
}

// FieldError is a malformed request field. It matches domain.ErrInvalidInput.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return "invalid " + e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *FieldError) Is(target error) bool { return target == domain.ErrInvalidInput }
