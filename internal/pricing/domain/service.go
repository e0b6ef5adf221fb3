package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pricebook/pkg/errs"
	"gorm.io/gorm"
)

type Service interface {
	// Quote prices quantity units of an item for an organization. Only the
	// highest priority rule that passes its conditions is applied.
	Quote(ctx context.Context, req QuoteRequest) (*PriceResult, error)
	// Redeem consumes one use of the applied rule inside tx. When the rule is
	// exhausted the next candidate is tried, then the base price.
	Redeem(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, result *PriceResult) (*PriceResult, error)
	QuoteMailbox(ctx context.Context, req MailboxQuoteRequest) (*MailboxQuote, error)
	SetOrgSegment(ctx context.Context, orgID snowflake.ID, segment string) (*OrgSegment, error)
	GetOrgSegment(ctx context.Context, orgID snowflake.ID) (string, error)
}

type QuoteRequest struct {
	OrgID    snowflake.ID `json:"-"`
	Code     string       `json:"code"`
	Quantity int64        `json:"quantity"`
	// Segment overrides the stored organization segment when set.
	Segment string     `json:"segment"`
	At      *time.Time `json:"at"`
}

type MailboxQuoteRequest struct {
	ExistingCount int64 `json:"existing_count"`
	NewCount      int64 `json:"new_count"`
}

var (
	ErrInvalidOrganization = errs.New(errs.KindValidation, "invalid_organization")
	ErrInvalidQuantity     = errs.New(errs.KindValidation, "invalid_quantity")
	ErrInvalidSegment      = errs.New(errs.KindValidation, "invalid_segment")
	ErrInvalidMailboxCount = errs.New(errs.KindValidation, "invalid_mailbox_count")
)
