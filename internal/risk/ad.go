package risk

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

// Ad signal names.
const (
	SignalScamKeywords  = "scam_keywords"
	SignalContactInText = "contact_in_text"
	SignalPriceAnomaly  = "price_anomaly"
)

type adExtractor struct {
	p        AdPolicy
	user     UserPolicy
	norms    map[string]float64
	keywords *phraseMatcher
}

func newAdExtractor(p Policy) *adExtractor {
	return &adExtractor{
		p:        p.Ad,
		user:     p.User,
		norms:    normalizeNorms(p.Ad.CategoryNorms),
		keywords: newPhraseMatcher(p.Ad.ScamKeywords),
	}
}

func (e *adExtractor) Kind() model.ContentType { return model.ContentAd }

func (e *adExtractor) Extract(s Subject) []model.Signal {
	as, ok := s.(AdSubject)
	if !ok {
		return []model.Signal{unknown(SignalScamKeywords, "not an ad subject")}
	}
	ad := as.Ad
	text := strings.TrimSpace(ad.Title + "\n" + ad.Description)
	return []model.Signal{
		e.scamKeywords(text),
		e.contact(ad.Description),
		e.priceAnomaly(ad),
		newAccountSignal(e.user, as.History),
		postingVelocitySignal(e.user, as.History),
	}
}

func (e *adExtractor) scamKeywords(text string) model.Signal {
	if text == "" {
		return unknown(SignalScamKeywords, "title and description are empty")
	}
	hits := e.keywords.Match(normalizeText(text))
	if len(hits) == 0 {
		return model.Signal{Name: SignalScamKeywords, Evidence: "no scam keywords"}
	}
	counted := len(hits)
	if e.p.MaxKeywordHits > 0 && counted > e.p.MaxKeywordHits {
		counted = e.p.MaxKeywordHits
	}
	return model.Signal{
		Name:      SignalScamKeywords,
		Weight:    e.p.KeywordWeight * float64(counted),
		Triggered: true,
		Evidence:  "matched: " + strings.Join(hits, ", "),
	}
}

func (e *adExtractor) contact(description string) model.Signal {
	if strings.TrimSpace(description) == "" {
		return unknown(SignalContactInText, "description is empty")
	}
	kinds := contactKinds(description)
	if len(kinds) == 0 {
		return model.Signal{Name: SignalContactInText, Evidence: "no contact details"}
	}
	return model.Signal{
		Name:      SignalContactInText,
		Weight:    e.p.ContactWeight,
		Triggered: true,
		Evidence:  "description contains " + strings.Join(kinds, ", "),
	}
}

func (e *adExtractor) priceAnomaly(ad model.Ad) model.Signal {
	if ad.Price == nil {
		return unknown(SignalPriceAnomaly, "price")
	}
	norm, ok := e.norms[strings.ToLower(strings.TrimSpace(ad.Category))]
	if !ok || norm <= 0 {
		return unknown(SignalPriceAnomaly, fmt.Sprintf("no price norm for category %q", ad.Category))
	}
	price := *ad.Price
	ratio := price / norm
	sig := model.Signal{
		Name:     SignalPriceAnomaly,
		Evidence: fmt.Sprintf("price %.2f is %.2fx the %s norm of %.2f", price, ratio, ad.Category, norm),
	}
	if ratio < e.p.PriceLowRatio || (e.p.PriceHighRatio > 0 && ratio > e.p.PriceHighRatio) {
		sig.Triggered = true
		sig.Weight = e.p.PriceAnomalyWeight
	}
	return sig
}
