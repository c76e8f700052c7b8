package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/remittance/internal/models"
)

func TestFromViper_Defaults(t *testing.T) {
	v := viper.New()
	v.Set("remittance.token_secret", "s3cret")

	cfg, err := FromViper(v)
	require.NoError(t, err)

	rc := cfg.Remittance
	assert.Equal(t, 72*time.Hour, rc.TokenTTL)
	assert.Equal(t, 60*time.Second, rc.ReaperTick)
	assert.Equal(t, 256, rc.ReaperBatch)
	assert.Equal(t, 3, rc.RedeemMaxRetries)
	assert.Equal(t, time.Minute, rc.DebitClaimGrace)
	assert.Equal(t, []string{"supervisor", "admin"}, rc.SupervisorRoles)
	assert.Equal(t, 2, rc.ApprovalPolicy[models.TypeInternational])
	assert.Equal(t, 1, rc.ApprovalPolicy[models.TypeInterBranch])
	assert.Equal(t, []models.RemittanceType{models.TypeInterBranch}, rc.PreApprovalRedeemTypes)
	assert.Equal(t, int32(2), rc.ScaleFor("USD"))
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"https://*", "http://*"}, cfg.Server.AllowedOrigins)
}

func TestFromViper_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("remittance.token_secret", "s3cret")
	v.Set("remittance.token_ttl", "1h")
	v.Set("remittance.approval_policy", `{"DOMESTIC": 3}`)
	v.Set("remittance.currency_scales", `{"JPY": 0, "KWD": 3}`)
	v.Set("remittance.pre_approval_redeem_types", "inter_branch, domestic")
	v.Set("remittance.supervisor_roles", "Branch_Manager")

	cfg, err := FromViper(v)
	require.NoError(t, err)

	rc := cfg.Remittance
	assert.Equal(t, time.Hour, rc.TokenTTL)
	assert.Equal(t, 3, rc.ApprovalPolicy[models.TypeDomestic])
	assert.Equal(t, 2, rc.ApprovalPolicy[models.TypeInternational])
	assert.Equal(t, int32(0), rc.ScaleFor("jpy"))
	assert.Equal(t, int32(3), rc.ScaleFor("KWD"))
	assert.Equal(t, []models.RemittanceType{models.TypeInterBranch, models.TypeDomestic}, rc.PreApprovalRedeemTypes)
	assert.Equal(t, []string{"branch_manager"}, rc.SupervisorRoles)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]any
		want string
	}{
		{"missing secret", map[string]any{}, "token_secret is required"},
		{"short ttl", map[string]any{"remittance.token_secret": "x", "remittance.token_ttl": "500ms"}, "token_ttl"},
		{"zero batch", map[string]any{"remittance.token_secret": "x", "remittance.reaper_batch": 0}, "reaper_batch"},
		{"zero claim grace", map[string]any{"remittance.token_secret": "x", "remittance.debit_claim_grace": "0s"}, "debit_claim_grace"},
		{"zero retries", map[string]any{"remittance.token_secret": "x", "remittance.redeem_max_retries": 0}, "redeem_max_retries"},
		{"zero levels", map[string]any{"remittance.token_secret": "x", "remittance.approval_policy": `{"CRYPTO": 0}`}, "at least 1 level"},
		{"unknown type", map[string]any{"remittance.token_secret": "x", "remittance.approval_policy": `{"BARTER": 1}`}, "unknown type"},
		{"bad json", map[string]any{"remittance.token_secret": "x", "remittance.currency_scales": `{`}, "currency_scales"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tc.set {
				v.Set(k, val)
			}
			_, err := FromViper(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
