package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadVariants(t *testing.T) {
	p, err := DecodePayload(ConditionOrganization, OpIn, []byte(`{"ids":["10","11"]}`))
	require.NoError(t, err)
	ids := p.(IDSetPayload)
	assert.Equal(t, ConditionOrganization, ids.Type())
	assert.Equal(t, []snowflake.ID{10, 11}, ids.Members())

	p, err = DecodePayload(ConditionPricebookItem, OpEq, []byte(`{"id":"5"}`))
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{5}, p.(IDSetPayload).Members())

	p, err = DecodePayload(ConditionMinQuantity, "", []byte(`{"quantity":5}`))
	require.NoError(t, err)
	assert.Equal(t, int64(5), p.(MinQuantityPayload).Quantity)

	p, err = DecodePayload(ConditionDateRange, OpBetween, []byte(`{"start":"2026-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	dr := p.(DateRangePayload)
	require.NotNil(t, dr.Start)
	assert.Nil(t, dr.End)
	assert.True(t, dr.Start.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	p, err = DecodePayload(ConditionOrgSegment, OpNotIn, []byte(`{"segments":["enterprise"," "],"segment":"smb"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"smb", "enterprise"}, p.(SegmentPayload).Members())

	p, err = DecodePayload(ConditionMaxUses, "", []byte(`{"limit":3}`))
	require.NoError(t, err)
	assert.Equal(t, UsageScopeGlobal, p.(MaxUsesPayload).Scope)
}

func TestDecodePayloadRejectsMalformed(t *testing.T) {
	cases := []struct {
		name     string
		condType ConditionType
		op       Operator
		raw      string
		want     error
	}{
		{"unknown type", "loyalty_tier", OpEq, `{}`, ErrUnknownConditionType},
		{"empty value", ConditionMinQuantity, OpGte, ``, ErrInvalidConditionValue},
		{"bad json", ConditionOrganization, OpIn, `{"ids":[1}`, ErrInvalidConditionValue},
		{"unquoted ids", ConditionOrganization, OpIn, `{"ids":[1]}`, ErrInvalidConditionValue},
		{"empty ids", ConditionOrganization, OpIn, `{"ids":[]}`, ErrInvalidConditionValue},
		{"quantity operator", ConditionMinQuantity, OpIn, `{"quantity":1}`, ErrInvalidOperator},
		{"negative quantity", ConditionMinQuantity, OpGte, `{"quantity":-1}`, ErrInvalidConditionValue},
		{"inverted range", ConditionDateRange, OpBetween, `{"start":"2026-02-01T00:00:00Z","end":"2026-01-01T00:00:00Z"}`, ErrInvalidConditionValue},
		{"zero limit", ConditionMaxUses, "", `{"limit":0}`, ErrInvalidConditionValue},
		{"bad scope", ConditionMaxUses, "", `{"limit":1,"scope":"per_planet"}`, ErrInvalidConditionValue},
		{"segment operator", ConditionOrgSegment, OpGte, `{"segment":"smb"}`, ErrInvalidOperator},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodePayload(tc.condType, tc.op, []byte(tc.raw))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRuleActiveAt(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	rule := &Rule{ActiveFrom: from, ActiveTo: &to}

	assert.False(t, rule.ActiveAt(from.Add(-time.Second)))
	assert.True(t, rule.ActiveAt(from))
	assert.True(t, rule.ActiveAt(to.Add(-time.Nanosecond)))
	assert.False(t, rule.ActiveAt(to))

	rule.ActiveTo = nil
	assert.True(t, rule.ActiveAt(to.AddDate(10, 0, 0)))
}

func TestRuleMaxUses(t *testing.T) {
	rule := &Rule{Conditions: []*Condition{
		{ConditionType: ConditionMinQuantity, Value: []byte(`{"quantity":1}`)},
		{ConditionType: ConditionMaxUses, Value: []byte(`{"limit":2,"scope":"per_org"}`)},
		{ConditionType: ConditionMinQuantity, Value: []byte(`{"quantity":50}`), GroupID: 1},
	}}
	maxUses, ok := rule.MaxUses(0)
	require.True(t, ok)
	assert.Equal(t, int64(2), maxUses.Limit)
	assert.Equal(t, UsageScopePerOrg, maxUses.Scope)

	_, ok = rule.MaxUses(1)
	assert.False(t, ok, "the limit belongs to group 0 only")

	_, ok = (&Rule{}).MaxUses(0)
	assert.False(t, ok)
}
