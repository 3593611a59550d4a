// Package risk turns marketplace content into weighted risk signals and
// aggregates them into a score and a risk level.
//
// Extraction and scoring are pure: they take a content snapshot, the
// behavioural history of its author and an injected Policy, and never perform
// I/O. The same Analyzer therefore serves both the pre-publish gate, which
// persists nothing, and full post-publish analysis, whose caller persists a
// flag when the result is suspicious.
package risk

import (
	"fmt"
	"time"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

// Subject is a piece of content ready for extraction. It is implemented by
// AdSubject, UserSubject and MessageSubject only.
type Subject interface {
	Kind() model.ContentType
	SubjectID() int64
}

// AdSubject is an ad together with the history of the user who posted it.
type AdSubject struct {
	Ad      model.Ad
	History model.History
}

func (s AdSubject) Kind() model.ContentType { return model.ContentAd }
func (s AdSubject) SubjectID() int64        { return s.Ad.ID }

// UserSubject is a user account together with its behavioural history.
type UserSubject struct {
	User    model.User
	History model.History
}

func (s UserSubject) Kind() model.ContentType { return model.ContentUser }
func (s UserSubject) SubjectID() int64        { return s.User.ID }

// MessageSubject is a message together with the latest analysis of its
// sender. Sender is nil when the sender could not be analysed.
type MessageSubject struct {
	Message model.Message
	Sender  *model.Analysis
}

func (s MessageSubject) Kind() model.ContentType { return model.ContentMessage }
func (s MessageSubject) SubjectID() int64        { return s.Message.ID }

// Extractor produces an ordered list of signals for one kind of subject.
// Extract must not fail: missing data yields an untriggered "unknown" signal.
type Extractor interface {
	Kind() model.ContentType
	Extract(s Subject) []model.Signal
}

// Analyzer dispatches subjects to the extractor registered for their kind and
// scores the result.
type Analyzer struct {
	policy     Policy
	scorer     *Scorer
	extractors map[model.ContentType]Extractor
}

// NewAnalyzer validates the policy and builds one extractor per content kind.
func NewAnalyzer(p Policy) (*Analyzer, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk policy: %w", err)
	}
	a := &Analyzer{
		policy:     p,
		scorer:     NewScorer(p.MediumThreshold, p.HighThreshold),
		extractors: make(map[model.ContentType]Extractor, 3),
	}
	for _, e := range []Extractor{
		newAdExtractor(p),
		newUserExtractor(p),
		newMessageExtractor(p),
	} {
		a.extractors[e.Kind()] = e
	}
	return a, nil
}

// Policy returns a copy of the policy the analyzer was built with.
func (a *Analyzer) Policy() Policy { return a.policy }

// Analyze extracts and scores a subject at the given instant.
func (a *Analyzer) Analyze(s Subject, now time.Time) (*model.Analysis, error) {
	e, ok := a.extractors[s.Kind()]
	if !ok {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("no extractor for content type %q", s.Kind())}
	}
	out := a.scorer.Score(s.Kind(), s.SubjectID(), e.Extract(s), now)
	out.PolicyVersion = a.policy.Version
	return out, nil
}

// unknown builds the zero-weight signal emitted when an input is missing.
func unknown(name, what string) model.Signal {
	return model.Signal{Name: name, Evidence: "unknown: " + what}
}
