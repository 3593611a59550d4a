package risk

import (
	"fmt"
	"strings"
)

// Policy holds every tunable of the engine: keyword lists, signal weights and
// level thresholds. It is injected into extractors and the scorer; nothing in
// this package keeps policy in package-level state.
type Policy struct {
	Version         string        `mapstructure:"version"          json:"version"`
	MediumThreshold float64       `mapstructure:"medium_threshold" json:"medium_threshold"`
	HighThreshold   float64       `mapstructure:"high_threshold"   json:"high_threshold"`
	Ad              AdPolicy      `mapstructure:"ad"               json:"ad"`
	User            UserPolicy    `mapstructure:"user"             json:"user"`
	Message         MessagePolicy `mapstructure:"message"          json:"message"`
}

// AdPolicy configures the ad extractor.
type AdPolicy struct {
	ScamKeywords       []string           `mapstructure:"scam_keywords"        json:"scam_keywords"`
	KeywordWeight      float64            `mapstructure:"keyword_weight"       json:"keyword_weight"`
	MaxKeywordHits     int                `mapstructure:"max_keyword_hits"     json:"max_keyword_hits"`
	ContactWeight      float64            `mapstructure:"contact_weight"       json:"contact_weight"`
	CategoryNorms      map[string]float64 `mapstructure:"category_norms"       json:"category_norms"`
	PriceLowRatio      float64            `mapstructure:"price_low_ratio"      json:"price_low_ratio"`
	PriceHighRatio     float64            `mapstructure:"price_high_ratio"     json:"price_high_ratio"`
	PriceAnomalyWeight float64            `mapstructure:"price_anomaly_weight" json:"price_anomaly_weight"`
}

// UserPolicy configures the user extractor. The account-age and velocity
// limits are shared with the ad extractor.
type UserPolicy struct {
	NewAccountDays        float64 `mapstructure:"new_account_days"        json:"new_account_days"`
	NewAccountWeight      float64 `mapstructure:"new_account_weight"      json:"new_account_weight"`
	UnverifiedWeight      float64 `mapstructure:"unverified_weight"       json:"unverified_weight"`
	PriorFlagWeight       float64 `mapstructure:"prior_flag_weight"       json:"prior_flag_weight"`
	MaxPriorFlags         int     `mapstructure:"max_prior_flags"         json:"max_prior_flags"`
	MaxListingsPerHour    int     `mapstructure:"max_listings_per_hour"   json:"max_listings_per_hour"`
	PostingVelocityWeight float64 `mapstructure:"posting_velocity_weight" json:"posting_velocity_weight"`
	MaxMessagesPerHour    int     `mapstructure:"max_messages_per_hour"   json:"max_messages_per_hour"`
	MessageVelocityWeight float64 `mapstructure:"message_velocity_weight" json:"message_velocity_weight"`
	RestrictedWeight      float64 `mapstructure:"restricted_weight"       json:"restricted_weight"`
}

// MessagePolicy configures the message extractor.
type MessagePolicy struct {
	PhishingPatterns []string `mapstructure:"phishing_patterns"  json:"phishing_patterns"`
	PhishingWeight   float64  `mapstructure:"phishing_weight"    json:"phishing_weight"`
	MaxPatternHits   int      `mapstructure:"max_pattern_hits"   json:"max_pattern_hits"`
	LinkWeight       float64  `mapstructure:"link_weight"        json:"link_weight"`
	ContactWeight    float64  `mapstructure:"contact_weight"     json:"contact_weight"`
	SenderRiskFactor float64  `mapstructure:"sender_risk_factor" json:"sender_risk_factor"`
}

// DefaultPolicy returns the policy shipped with the engine. Deployments are
// expected to override it from configuration.
func DefaultPolicy() Policy {
	return Policy{
		Version:         "default-1",
		MediumThreshold: 3,
		HighThreshold:   6,
		Ad: AdPolicy{
			ScamKeywords: []string{
				"whatsapp only", "telegram only", "send deposit", "advance payment",
				"western union", "moneygram", "wire transfer", "gift card",
				"pay outside", "crypto only", "bitcoin only", "shipping agent",
				"too good to be true", "no questions asked", "escrow service",
			},
			KeywordWeight:  3,
			MaxKeywordHits: 3,
			ContactWeight:  1,
			CategoryNorms: map[string]float64{
				"phones":      400,
				"electronics": 300,
				"cars":        15000,
				"furniture":   200,
				"pets":        300,
			},
			PriceLowRatio:      0.25,
			PriceHighRatio:     5,
			PriceAnomalyWeight: 2,
		},
		User: UserPolicy{
			NewAccountDays:        7,
			NewAccountWeight:      1.5,
			UnverifiedWeight:      1,
			PriorFlagWeight:       1,
			MaxPriorFlags:         5,
			MaxListingsPerHour:    5,
			PostingVelocityWeight: 2,
			MaxMessagesPerHour:    20,
			MessageVelocityWeight: 3,
			RestrictedWeight:      10,
		},
		Message: MessagePolicy{
			PhishingPatterns: []string{
				"verify your account", "confirm your password", "card number", "cvv",
				"bank details", "login here", "one time code", "otp",
				"send deposit", "gift card", "whatsapp only", "wire transfer",
				"western union", "pay outside",
			},
			PhishingWeight:   2.5,
			MaxPatternHits:   3,
			LinkWeight:       1.5,
			ContactWeight:    1,
			SenderRiskFactor: 1,
		},
	}
}

// Validate checks that the thresholds are ordered and no weight is negative.
func (p Policy) Validate() error {
	if p.MediumThreshold <= 0 {
		return fmt.Errorf("medium_threshold must be positive, got %v", p.MediumThreshold)
	}
	if p.HighThreshold < p.MediumThreshold {
		return fmt.Errorf("high_threshold (%v) must not be below medium_threshold (%v)", p.HighThreshold, p.MediumThreshold)
	}
	weights := map[string]float64{
		"ad.keyword_weight":            p.Ad.KeywordWeight,
		"ad.contact_weight":            p.Ad.ContactWeight,
		"ad.price_anomaly_weight":      p.Ad.PriceAnomalyWeight,
		"user.new_account_weight":      p.User.NewAccountWeight,
		"user.unverified_weight":       p.User.UnverifiedWeight,
		"user.prior_flag_weight":       p.User.PriorFlagWeight,
		"user.posting_velocity_weight": p.User.PostingVelocityWeight,
		"user.message_velocity_weight": p.User.MessageVelocityWeight,
		"user.restricted_weight":       p.User.RestrictedWeight,
		"message.phishing_weight":      p.Message.PhishingWeight,
		"message.link_weight":          p.Message.LinkWeight,
		"message.contact_weight":       p.Message.ContactWeight,
		"message.sender_risk_factor":   p.Message.SenderRiskFactor,
	}
	for name, w := range weights {
		if w < 0 {
			return fmt.Errorf("%s must not be negative, got %v", name, w)
		}
	}
	if p.Ad.PriceLowRatio < 0 || (p.Ad.PriceHighRatio > 0 && p.Ad.PriceHighRatio <= p.Ad.PriceLowRatio) {
		return fmt.Errorf("price ratios must satisfy 0 <= low < high")
	}
	return nil
}

// normalizeNorms lower-cases category keys so lookups are case-insensitive.
// Viper already lower-cases map keys; programmatic policies may not.
func normalizeNorms(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return out
}
