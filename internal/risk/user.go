package risk

import (
	"fmt"

	"github.com/jmerrifield20/contentrisk/internal/moderation/model"
)

// Signal names shared by the user-facing extractors.
const (
	SignalAccountRestricted = "account_restricted"
	SignalNewAccount        = "new_account"
	SignalUnverified        = "unverified"
	SignalPriorFlags        = "prior_flags"
	SignalMessageVelocity   = "message_velocity"
	SignalPostingVelocity   = "posting_velocity"
)

type userExtractor struct {
	p UserPolicy
}

func newUserExtractor(p Policy) *userExtractor {
	return &userExtractor{p: p.User}
}

func (e *userExtractor) Kind() model.ContentType { return model.ContentUser }

func (e *userExtractor) Extract(s Subject) []model.Signal {
	us, ok := s.(UserSubject)
	if !ok {
		return []model.Signal{unknown(SignalAccountRestricted, "not a user subject")}
	}
	u, h := us.User, us.History
	return []model.Signal{
		e.restricted(u),
		newAccountSignal(e.p, h),
		e.unverified(u),
		e.priorFlags(h),
		messageVelocitySignal(e.p, h),
		postingVelocitySignal(e.p, h),
	}
}

func (e *userExtractor) restricted(u model.User) model.Signal {
	if u.Status == "" {
		return unknown(SignalAccountRestricted, "account status")
	}
	sig := model.Signal{Name: SignalAccountRestricted, Evidence: "account status " + u.Status}
	if u.Status == model.UserStatusSuspended || u.Status == model.UserStatusBanned {
		sig.Triggered = true
		sig.Weight = e.p.RestrictedWeight
	}
	return sig
}

func (e *userExtractor) unverified(u model.User) model.Signal {
	if u.EmailVerified == nil && u.PhoneVerified == nil {
		return unknown(SignalUnverified, "verification status")
	}
	email := u.EmailVerified != nil && *u.EmailVerified
	phone := u.PhoneVerified != nil && *u.PhoneVerified
	if email || phone {
		return model.Signal{Name: SignalUnverified, Evidence: "account is verified"}
	}
	return model.Signal{
		Name:      SignalUnverified,
		Weight:    e.p.UnverifiedWeight,
		Triggered: true,
		Evidence:  "neither e-mail nor phone is verified",
	}
}

func (e *userExtractor) priorFlags(h model.History) model.Signal {
	if h.PriorFlags == nil {
		return unknown(SignalPriorFlags, "prior flag count")
	}
	n := *h.PriorFlags
	if n <= 0 {
		return model.Signal{Name: SignalPriorFlags, Evidence: "no prior flags"}
	}
	counted := n
	if e.p.MaxPriorFlags > 0 && counted > e.p.MaxPriorFlags {
		counted = e.p.MaxPriorFlags
	}
	return model.Signal{
		Name:      SignalPriorFlags,
		Weight:    e.p.PriorFlagWeight * float64(counted),
		Triggered: true,
		Evidence:  fmt.Sprintf("%d prior moderation flag(s)", n),
	}
}

func newAccountSignal(p UserPolicy, h model.History) model.Signal {
	if h.AccountAgeDays == nil {
		return unknown(SignalNewAccount, "account age")
	}
	age := *h.AccountAgeDays
	sig := model.Signal{Name: SignalNewAccount, Evidence: fmt.Sprintf("account is %.1f day(s) old", age)}
	if age < p.NewAccountDays {
		sig.Triggered = true
		sig.Weight = p.NewAccountWeight
	}
	return sig
}

func messageVelocitySignal(p UserPolicy, h model.History) model.Signal {
	if h.MessagesLastHour == nil {
		return unknown(SignalMessageVelocity, "messages in the last hour")
	}
	n := *h.MessagesLastHour
	sig := model.Signal{Name: SignalMessageVelocity, Evidence: fmt.Sprintf("%d message(s) in the last hour", n)}
	if p.MaxMessagesPerHour > 0 && n > p.MaxMessagesPerHour {
		sig.Triggered = true
		sig.Weight = p.MessageVelocityWeight
	}
	return sig
}

func postingVelocitySignal(p UserPolicy, h model.History) model.Signal {
	if h.ListingsLastHour == nil {
		return unknown(SignalPostingVelocity, "listings in the last hour")
	}
	n := *h.ListingsLastHour
	sig := model.Signal{Name: SignalPostingVelocity, Evidence: fmt.Sprintf("%d listing(s) in the last hour", n)}
	if p.MaxListingsPerHour > 0 && n > p.MaxListingsPerHour {
		sig.Triggered = true
		sig.Weight = p.PostingVelocityWeight
	}
	return sig
}
