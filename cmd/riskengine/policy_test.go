package main

import (
	"strings"
	"testing"

	"github.com/jmerrifield20/contentrisk/internal/risk"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readYAML(t *testing.T, doc string) *viper.Viper {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(doc)))
	return v
}

func TestLoadPolicy_listReplacesDefaults(t *testing.T) {
	v := readYAML(t, `
policy:
  ad:
    scam_keywords: ["replica watch"]
`)
	p, err := loadPolicy(v)
	require.NoError(t, err)

	def := risk.DefaultPolicy()
	assert.Equal(t, []string{"replica watch"}, p.Ad.ScamKeywords)
	assert.Equal(t, def.Message.PhishingPatterns, p.Message.PhishingPatterns)
	assert.Equal(t, def.Ad.KeywordWeight, p.Ad.KeywordWeight)
}

func TestLoadPolicy_emptyListDisablesSignal(t *testing.T) {
	v := readYAML(t, `
policy:
  message:
    phishing_patterns: []
`)
	p, err := loadPolicy(v)
	require.NoError(t, err)
	assert.Empty(t, p.Message.PhishingPatterns)
	assert.Len(t, p.Ad.ScamKeywords, len(risk.DefaultPolicy().Ad.ScamKeywords))
}

func TestLoadPolicy_scalarsAndNormsMerge(t *testing.T) {
	v := readYAML(t, `
policy:
  version: marketplace-test
  high_threshold: 8
  ad:
    category_norms:
      bikes: 250
  user:
    max_messages_per_hour: 40
`)
	p, err := loadPolicy(v)
	require.NoError(t, err)

	def := risk.DefaultPolicy()
	assert.Equal(t, "marketplace-test", p.Version)
	assert.Equal(t, 8.0, p.HighThreshold)
	assert.Equal(t, def.MediumThreshold, p.MediumThreshold)
	assert.Equal(t, 40, p.User.MaxMessagesPerHour)
	assert.Equal(t, def.User.NewAccountDays, p.User.NewAccountDays)
	assert.Equal(t, 250.0, p.Ad.CategoryNorms["bikes"])
	assert.Equal(t, 400.0, p.Ad.CategoryNorms["phones"])
	assert.Equal(t, def.Ad.ScamKeywords, p.Ad.ScamKeywords)
}

func TestLoadPolicy_noSection(t *testing.T) {
	p, err := loadPolicy(viper.New())
	require.NoError(t, err)
	assert.Equal(t, risk.DefaultPolicy(), p)
}
