package risk

import (
	"fmt"
	"strings"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

// Message signal names.
const (
	SignalPhishingPatterns = "phishing_patterns"
	SignalExternalLink     = "external_link"
	SignalContactExchange  = "contact_exchange"
	SignalSenderRisk       = "sender_risk"
)

type messageExtractor struct {
	p        MessagePolicy
	patterns *phraseMatcher
}

func newMessageExtractor(p Policy) *messageExtractor {
	return &messageExtractor{
		p:        p.Message,
		patterns: newPhraseMatcher(p.Message.PhishingPatterns),
	}
}

func (e *messageExtractor) Kind() model.ContentType { return model.ContentMessage }

func (e *messageExtractor) Extract(s Subject) []model.Signal {
	ms, ok := s.(MessageSubject)
	if !ok {
		return []model.Signal{unknown(SignalPhishingPatterns, "not a message subject")}
	}
	body := strings.TrimSpace(ms.Message.Body)
	return []model.Signal{
		e.phishing(body),
		e.link(body),
		e.contact(body),
		e.senderRisk(ms.Sender),
	}
}

func (e *messageExtractor) phishing(body string) model.Signal {
	if body == "" {
		return unknown(SignalPhishingPatterns, "message body is empty")
	}
	hits := e.patterns.Match(normalizeText(body))
	if len(hits) == 0 {
		return model.Signal{Name: SignalPhishingPatterns, Evidence: "no phishing patterns"}
	}
	counted := len(hits)
	if e.p.MaxPatternHits > 0 && counted > e.p.MaxPatternHits {
		counted = e.p.MaxPatternHits
	}
	return model.Signal{
		Name:      SignalPhishingPatterns,
		Weight:    e.p.PhishingWeight * float64(counted),
		Triggered: true,
		Evidence:  "matched: " + strings.Join(hits, ", "),
	}
}

func (e *messageExtractor) link(body string) model.Signal {
	if body == "" {
		return unknown(SignalExternalLink, "message body is empty")
	}
	if !hasLink(body) {
		return model.Signal{Name: SignalExternalLink, Evidence: "no links"}
	}
	return model.Signal{
		Name:      SignalExternalLink,
		Weight:    e.p.LinkWeight,
		Triggered: true,
		Evidence:  "message contains a link",
	}
}

func (e *messageExtractor) contact(body string) model.Signal {
	if body == "" {
		return unknown(SignalContactExchange, "message body is empty")
	}
	var kinds []string
	if phonePattern.MatchString(body) {
		kinds = append(kinds, "phone")
	}
	if emailPattern.MatchString(body) {
		kinds = append(kinds, "email")
	}
	if len(kinds) == 0 {
		return model.Signal{Name: SignalContactExchange, Evidence: "no contact details"}
	}
	return model.Signal{
		Name:      SignalContactExchange,
		Weight:    e.p.ContactWeight,
		Triggered: true,
		Evidence:  "message shares " + strings.Join(kinds, ", "),
	}
}

func (e *messageExtractor) senderRisk(sender *model.Analysis) model.Signal {
	if sender == nil {
		return unknown(SignalSenderRisk, "sender analysis")
	}
	w := sender.RiskScore * e.p.SenderRiskFactor
	sig := model.Signal{
		Name:     SignalSenderRisk,
		Evidence: fmt.Sprintf("sender risk %.2f (%s)", sender.RiskScore, sender.RiskLevel),
	}
	if w > 0 {
		sig.Triggered = true
		sig.Weight = w
	}
	return sig
}
