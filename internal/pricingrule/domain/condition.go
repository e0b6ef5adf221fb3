package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type ConditionType string

const (
	ConditionOrganization  ConditionType = "organization"
	ConditionPricebookItem ConditionType = "pricebook_item"
	ConditionMaxUses       ConditionType = "max_uses"
	ConditionMinQuantity   ConditionType = "min_quantity"
	ConditionDateRange     ConditionType = "date_range"
	ConditionOrgSegment    ConditionType = "org_segment"
)

func (t ConditionType) Known() bool {
	switch t {
	case ConditionOrganization, ConditionPricebookItem, ConditionMaxUses,
		ConditionMinQuantity, ConditionDateRange, ConditionOrgSegment:
		return true
	default:
		return false
	}
}

type Operator string

const (
	OpIn      Operator = "in"
	OpNotIn   Operator = "not_in"
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpGte     Operator = "gte"
	OpLte     Operator = "lte"
	OpBetween Operator = "between"
)

// UsageScope selects which counter a max_uses condition reads.
type UsageScope string

const (
	UsageScopeGlobal     UsageScope = "global"
	UsageScopePerOrg     UsageScope = "per_org"
	UsageScopePerItem    UsageScope = "per_item"
	UsageScopePerOrgItem UsageScope = "per_org_item"
)

// Payload is the typed value of a condition. One implementation per
// condition type.
type Payload interface {
	Type() ConditionType
}

// IDSetPayload backs organization and pricebook_item conditions.
// {"ids": ["1", "2"]} for in/not_in, {"id": "1"} for eq/neq.
type IDSetPayload struct {
	Kind ConditionType  `json:"-"`
	IDs  []snowflake.ID `json:"ids,omitempty"`
	ID   *snowflake.ID  `json:"id,omitempty"`
}

func (p IDSetPayload) Type() ConditionType { return p.Kind }

// Members returns the id set regardless of which field was used.
func (p IDSetPayload) Members() []snowflake.ID {
	if p.ID != nil {
		return append([]snowflake.ID{*p.ID}, p.IDs...)
	}
	return p.IDs
}

// MinQuantityPayload is {"quantity": 5}.
type MinQuantityPayload struct {
	Quantity int64 `json:"quantity"`
}

func (MinQuantityPayload) Type() ConditionType { return ConditionMinQuantity }

// DateRangePayload is {"start": RFC3339, "end": RFC3339}; both optional, inclusive.
type DateRangePayload struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

func (DateRangePayload) Type() ConditionType { return ConditionDateRange }

// SegmentPayload is {"segments": ["enterprise"]} or {"segment": "smb"}.
type SegmentPayload struct {
	Segments []string `json:"segments,omitempty"`
	Segment  string   `json:"segment,omitempty"`
}

func (SegmentPayload) Type() ConditionType { return ConditionOrgSegment }

func (p SegmentPayload) Members() []string {
	out := make([]string, 0, len(p.Segments)+1)
	if s := strings.TrimSpace(p.Segment); s != "" {
		out = append(out, s)
	}
	for _, s := range p.Segments {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// MaxUsesPayload is {"limit": 3, "scope": "per_org"}; scope defaults to global.
type MaxUsesPayload struct {
	Limit int64      `json:"limit"`
	Scope UsageScope `json:"scope,omitempty"`
}

func (MaxUsesPayload) Type() ConditionType { return ConditionMaxUses }

// DecodePayload parses raw into the payload for condType and checks the
// operator is meaningful for it.
func DecodePayload(condType ConditionType, op Operator, raw []byte) (Payload, error) {
	if !condType.Known() {
		return nil, ErrUnknownConditionType
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrInvalidConditionValue)
	}

	switch condType {
	case ConditionOrganization, ConditionPricebookItem:
		var p IDSetPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConditionValue, err)
		}
		p.Kind = condType
		if len(p.Members()) == 0 {
			return nil, fmt.Errorf("%w: ids required", ErrInvalidConditionValue)
		}
		if !operatorIn(op, OpIn, OpNotIn, OpEq, OpNeq) {
			return nil, ErrInvalidOperator
		}
		return p, nil

	case ConditionMinQuantity:
		var p MinQuantityPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConditionValue, err)
		}
		if p.Quantity < 0 {
			return nil, fmt.Errorf("%w: quantity must not be negative", ErrInvalidConditionValue)
		}
		if !operatorIn(op, "", OpGte, OpEq) {
			return nil, ErrInvalidOperator
		}
		return p, nil

	case ConditionDateRange:
		var p DateRangePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConditionValue, err)
		}
		if p.Start != nil && p.End != nil && p.End.Before(*p.Start) {
			return nil, fmt.Errorf("%w: end before start", ErrInvalidConditionValue)
		}
		if !operatorIn(op, "", OpBetween) {
			return nil, ErrInvalidOperator
		}
		return p, nil

	case ConditionOrgSegment:
		var p SegmentPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConditionValue, err)
		}
		if len(p.Members()) == 0 {
			return nil, fmt.Errorf("%w: segments required", ErrInvalidConditionValue)
		}
		if !operatorIn(op, OpIn, OpNotIn, OpEq, OpNeq) {
			return nil, ErrInvalidOperator
		}
		return p, nil

	case ConditionMaxUses:
		var p MaxUsesPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConditionValue, err)
		}
		if p.Limit <= 0 {
			return nil, fmt.Errorf("%w: limit must be positive", ErrInvalidConditionValue)
		}
		switch p.Scope {
		case "":
			p.Scope = UsageScopeGlobal
		case UsageScopeGlobal, UsageScopePerOrg, UsageScopePerItem, UsageScopePerOrgItem:
		default:
			return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidConditionValue, p.Scope)
		}
		if !operatorIn(op, "", OpLte, OpEq) {
			return nil, ErrInvalidOperator
		}
		return p, nil
	}

	return nil, ErrUnknownConditionType
}

func operatorIn(op Operator, allowed ...Operator) bool {
	for _, candidate := range allowed {
		if op == candidate {
			return true
		}
	}
	return false
}
