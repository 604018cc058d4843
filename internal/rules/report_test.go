package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/siwegate/internal/siwe"
)

func TestExportReport(t *testing.T) {
	eng := newTestEngine()
	msg := withLine("URI:", "URI: http://example.com")
	msg = withLineIn(msg, "Chain ID:", "Chain ID: 01")
	res := eng.Validate(msg, strictFix)

	rep := ExportReport(res)
	assert.False(t, rep.Summary.IsValid)
	assert.Equal(t, ProfileStrict, rep.Summary.Profile)
	assert.Equal(t, siwe.SigningDigest(msg), rep.Summary.SigningDigest)
	assert.Equal(t, len(res.Errors), rep.Stats.Errors)
	assert.Equal(t, len(res.Diagnostics()), rep.Stats.Total)
	assert.Equal(t, res.FixedMessage, rep.FixedMessage)
	assert.Equal(t, 1, rep.Stats.ByCode[siwe.CodeInvalidChainID])

	require.NotEmpty(t, rep.FixSuggestions)
	assert.True(t, rep.FixSuggestions[0].Fixable)
	seenManual := false
	for _, s := range rep.FixSuggestions {
		if !s.Fixable {
			seenManual = true
			continue
		}
		assert.False(t, seenManual, "fixable suggestion after a manual one")
	}
}

func TestGetValidationStatsCleanResult(t *testing.T) {
	st := GetValidationStats(newTestEngine().Validate(goodMessage, Config{}))
	assert.True(t, st.Pass)
	assert.Zero(t, st.Total)
	assert.Empty(t, st.ByCode)
}
