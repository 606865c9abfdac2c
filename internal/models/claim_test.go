package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClaimStatusNext(t *testing.T) {
	tests := []struct {
		from   ClaimStatus
		action ClaimAction
		want   ClaimStatus
		ok     bool
	}{
		{ClaimPending, ActionPOCApprove, ClaimPOCApproved, true},
		{ClaimPending, ActionPOCDecline, ClaimPOCDeclined, true},
		{ClaimPending, ActionAdminApprove, "", false},
		{ClaimPOCApproved, ActionAdminApprove, ClaimAdminApproved, true},
		{ClaimPOCApproved, ActionPOCDecline, "", false},
		{ClaimAdminApproved, ActionFinalize, ClaimApproved, true},
		{ClaimPOCDeclined, ActionAdminApprove, "", false},
		{ClaimApproved, ActionFinalize, "", false},
		{ClaimStatus("unknown"), ActionPOCApprove, "", false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, ok := tt.from.Next(tt.action)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClaimStatusTerminal(t *testing.T) {
	assert.True(t, ClaimApproved.Terminal())
	assert.True(t, ClaimPOCDeclined.Terminal())
	assert.False(t, ClaimAdminApproved.Terminal())
	assert.False(t, ClaimStatus("unknown").Terminal())
}

func TestLegacyFlagsDerivedFromStatus(t *testing.T) {
	tests := map[ClaimStatus]LegacyFlags{
		ClaimPending:       {},
		ClaimPOCApproved:   {POCApproved: true, BPRNDPOCApproved: true},
		ClaimPOCDeclined:   {Declined: true},
		ClaimAdminDeclined: {POCApproved: true, BPRNDPOCApproved: true, Declined: true},
		ClaimApproved:      {POCApproved: true, BPRNDPOCApproved: true, AdminApproved: true},
	}
	for status, want := range tests {
		claim := CertificationClaim{Status: status}
		assert.Equal(t, want, claim.LegacyFlags(), string(status))
	}
}

func TestActionRequiredRole(t *testing.T) {
	assert.Equal(t, RolePOC, ActionPOCDecline.RequiredRole())
	assert.Equal(t, RoleAdmin, ActionAdminDecline.RequiredRole())
	assert.Equal(t, RoleAdmin, ActionFinalize.RequiredRole())
}
