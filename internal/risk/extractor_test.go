package risk_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
	"github.com/jmerrifield20/contentrisk/internal/risk"
)

func ptr[T any](v T) *T { return &v }

func newAnalyzer(t *testing.T) *risk.Analyzer {
	t.Helper()
	a, err := risk.NewAnalyzer(risk.DefaultPolicy())
	require.NoError(t, err)
	return a
}

func findSignal(t *testing.T, a *model.Analysis, name string) model.Signal {
	t.Helper()
	for _, s := range a.Signals {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("signal %q not emitted; got %+v", name, a.Signals)
	return model.Signal{}
}

func TestAnalyze_depositScamAdIsHigh(t *testing.T) {
	a := newAnalyzer(t)
	out, err := a.Analyze(risk.AdSubject{
		Ad: model.Ad{ID: 11, Category: "phones", Title: "iPhone 14, WhatsApp only, send deposit to activate"},
	}, fixedNow)
	require.NoError(t, err)

	kw := findSignal(t, out, risk.SignalScamKeywords)
	assert.True(t, kw.Triggered)
	assert.Contains(t, kw.Evidence, "whatsapp only")
	assert.Contains(t, kw.Evidence, "send deposit")
	assert.Equal(t, model.RiskHigh, out.RiskLevel)
	assert.True(t, out.IsSuspicious)
	assert.Equal(t, "default-1", out.PolicyVersion)
}

func TestAnalyze_cleanAdIsLow(t *testing.T) {
	a := newAnalyzer(t)
	out, err := a.Analyze(risk.AdSubject{
		Ad: model.Ad{
			ID: 12, Category: "furniture", Title: "Oak dining table",
			Description: "Solid oak, seats six. Pick up only.", Price: ptr(180.0),
		},
		History: model.History{AccountAgeDays: ptr(400.0), ListingsLastHour: ptr(1)},
	}, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, model.RiskLow, out.RiskLevel)
	assert.Empty(t, out.TriggeredNames())
	assert.Len(t, out.Signals, 5)
}

func TestAnalyze_adPriceAnomaly(t *testing.T) {
	a := newAnalyzer(t)
	out, err := a.Analyze(risk.AdSubject{
		Ad: model.Ad{Category: "Cars", Title: "Sedan", Description: "runs well", Price: ptr(900.0)},
	}, fixedNow)
	require.NoError(t, err)

	p := findSignal(t, out, risk.SignalPriceAnomaly)
	assert.True(t, p.Triggered)
	assert.Equal(t, 2.0, p.Weight)
}

func TestAnalyze_missingDataDegradesToUnknown(t *testing.T) {
	a := newAnalyzer(t)
	out, err := a.Analyze(risk.AdSubject{Ad: model.Ad{}}, fixedNow)
	require.NoError(t, err)

	require.Len(t, out.Signals, 5)
	for _, s := range out.Signals {
		assert.False(t, s.Triggered, s.Name)
		assert.Zero(t, s.Weight, s.Name)
		assert.True(t, strings.HasPrefix(s.Evidence, "unknown:"), s.Evidence)
	}
	assert.Equal(t, model.RiskLow, out.RiskLevel)
}

func TestAnalyze_userVelocityOnNewAccount(t *testing.T) {
	a := newAnalyzer(t)
	out, err := a.Analyze(risk.UserSubject{
		User:    model.User{ID: 5, Status: model.UserStatusActive, EmailVerified: ptr(false), PhoneVerified: ptr(false)},
		History: model.History{AccountAgeDays: ptr(0.0), MessagesLastHour: ptr(50), ListingsLastHour: ptr(0), PriorFlags: ptr(0)},
	}, fixedNow)
	require.NoError(t, err)

	assert.True(t, findSignal(t, out, risk.SignalMessageVelocity).Triggered)
	assert.True(t, findSignal(t, out, risk.SignalNewAccount).Triggered)
	assert.True(t, findSignal(t, out, risk.SignalUnverified).Triggered)
	assert.False(t, findSignal(t, out, risk.SignalPostingVelocity).Triggered)
	assert.InDelta(t, 5.5, out.RiskScore, 1e-9)
	assert.Equal(t, model.RiskMedium, out.RiskLevel)
}

func TestAnalyze_bannedUserIsHigh(t *testing.T) {
	a := newAnalyzer(t)
	out, err := a.Analyze(risk.UserSubject{User: model.User{ID: 9, Status: model.UserStatusBanned}}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, model.RiskHigh, out.RiskLevel)
}

func TestAnalyze_priorFlagsCapped(t *testing.T) {
	a := newAnalyzer(t)
	out, err := a.Analyze(risk.UserSubject{
		User:    model.User{ID: 9, Status: model.UserStatusActive},
		History: model.History{PriorFlags: ptr(40)},
	}, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 5.0, findSignal(t, out, risk.SignalPriorFlags).Weight)
}

func TestAnalyze_messagePhishingWithSenderRisk(t *testing.T) {
	a := newAnalyzer(t)
	sender := &model.Analysis{RiskScore: 2, RiskLevel: model.RiskLow}
	out, err := a.Analyze(risk.MessageSubject{
		Message: model.Message{ID: 3, Body: "Please verify your account at http://secure-pay.xyz/login"},
		Sender:  sender,
	}, fixedNow)
	require.NoError(t, err)

	assert.True(t, findSignal(t, out, risk.SignalPhishingPatterns).Triggered)
	assert.True(t, findSignal(t, out, risk.SignalExternalLink).Triggered)
	assert.False(t, findSignal(t, out, risk.SignalContactExchange).Triggered)
	sr := findSignal(t, out, risk.SignalSenderRisk)
	assert.True(t, sr.Triggered)
	assert.Equal(t, 2.0, sr.Weight)
	assert.InDelta(t, 6.0, out.RiskScore, 1e-9)
	assert.Equal(t, model.RiskHigh, out.RiskLevel)
}

func TestAnalyze_messageEmailIsContactNotLink(t *testing.T) {
	a := newAnalyzer(t)
	out, err := a.Analyze(risk.MessageSubject{
		Message: model.Message{Body: "write me at seller@example.com"},
	}, fixedNow)
	require.NoError(t, err)

	assert.True(t, findSignal(t, out, risk.SignalContactExchange).Triggered)
	assert.False(t, findSignal(t, out, risk.SignalExternalLink).Triggered)
	assert.False(t, findSignal(t, out, risk.SignalSenderRisk).Triggered)
}

func TestAnalyze_identicalInputIdenticalSignals(t *testing.T) {
	a := newAnalyzer(t)
	subject := risk.AdSubject{
		Ad:      model.Ad{ID: 1, Category: "phones", Title: "Gift card accepted", Description: "call +1 555 010 9999", Price: ptr(20.0)},
		History: model.History{AccountAgeDays: ptr(1.0), ListingsLastHour: ptr(9)},
	}
	first, err := a.Analyze(subject, fixedNow)
	require.NoError(t, err)
	second, err := a.Analyze(subject, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewAnalyzer_rejectsInvalidPolicy(t *testing.T) {
	p := risk.DefaultPolicy()
	p.HighThreshold = 1
	_, err := risk.NewAnalyzer(p)
	assert.Error(t, err)

	p = risk.DefaultPolicy()
	p.Message.LinkWeight = -1
	_, err = risk.NewAnalyzer(p)
	assert.Error(t, err)
}

func TestAnalyze_policyIsInjected(t *testing.T) {
	p := risk.DefaultPolicy()
	p.Ad.ScamKeywords = []string{"free puppies"}
	a, err := risk.NewAnalyzer(p)
	require.NoError(t, err)

	out, err := a.Analyze(risk.AdSubject{Ad: model.Ad{Title: "Free puppies!!", Description: "whatsapp only"}}, fixedNow)
	require.NoError(t, err)
	kw := findSignal(t, out, risk.SignalScamKeywords)
	assert.True(t, kw.Triggered)
	assert.Equal(t, "matched: free puppies", kw.Evidence)
}
