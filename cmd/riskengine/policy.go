package main

import (
	"fmt"

	"github.com/jmerrifield20/contentrisk/internal/risk"
	"github.com/spf13/viper"
)

// loadPolicy overlays the "policy" section of v on risk.DefaultPolicy.
// Scalars and map entries left out of the config keep their defaults. A list
// present in the config replaces the built-in list as a whole; decoding it
// onto the default would overwrite elements by position and keep the tail.
func loadPolicy(v *viper.Viper) (risk.Policy, error) {
	policy := risk.DefaultPolicy()

	lists := map[string]*[]string{
		"policy.ad.scam_keywords":          &policy.Ad.ScamKeywords,
		"policy.message.phishing_patterns": &policy.Message.PhishingPatterns,
	}
	for key, list := range lists {
		if v.IsSet(key) {
			*list = nil
		}
	}

	if err := v.UnmarshalKey("policy", &policy); err != nil {
		return risk.Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return policy, nil
}
