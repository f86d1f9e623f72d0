// Package reply classifies free-text outreach replies.
package reply

import (
	"context"
	"fmt"
	"strings"

	"github.com/bondedhq/link-server/internal/textgen"
)

// Kind is the classified shape of a reply.
type Kind string

const (
	KindSelfClaim Kind = "self_claim"
	KindReferral  Kind = "referral"
	KindUnknown   Kind = "unknown"
)

// Consent is the classified willingness to be introduced.
type Consent string

const (
	ConsentYes     Consent = "yes"
	ConsentNo      Consent = "no"
	ConsentUnknown Consent = "unknown"
)

// Interpretation is the structured reading of one reply.
type Interpretation struct {
	Kind     Kind
	Consent  Consent
	Evidence []string
}

// Interpreter reads replies heuristically, with an optional model fallback
// for ambiguous text. A nil generator disables the fallback.
type Interpreter struct {
	gen textgen.Generator
}

func NewInterpreter(gen textgen.Generator) *Interpreter {
	return &Interpreter{gen: gen}
}

var (
	yesPhrases       = []string{"yes", "yep", "yeah", "sure", "im down", "i'm down", "ok"}
	noPhrases        = []string{"no", "nah", "not really"}
	selfClaimPhrases = []string{"i play", "i do", "i'm", "i am", "me"}
	referralPhrases  = []string{"my friend", "ask", "you should ask", "they play"}
)

// containsPhrase checks for a phrase on word boundaries so short markers like
// "no" do not fire inside words like "know".
func containsPhrase(text, phrase string) bool {
	if strings.Contains(phrase, " ") || strings.Contains(phrase, "'") {
		return strings.Contains(text, phrase)
	}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	}) {
		if w == phrase {
			return true
		}
	}
	return false
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if containsPhrase(text, p) {
			return true
		}
	}
	return false
}

// Interpret infers reply kind and consent from raw text.
func (i *Interpreter) Interpret(ctx context.Context, text string) Interpretation {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return Interpretation{Kind: KindUnknown, Consent: ConsentUnknown}
	}

	consent := ConsentUnknown
	if containsAny(t, yesPhrases) {
		consent = ConsentYes
	}
	if containsAny(t, noPhrases) {
		consent = ConsentNo
	}

	if containsAny(t, selfClaimPhrases) {
		return Interpretation{Kind: KindSelfClaim, Consent: consent, Evidence: []string{"self_claim"}}
	}
	if strings.Contains(t, "@") || containsAny(t, referralPhrases) {
		return Interpretation{Kind: KindReferral, Consent: consent, Evidence: []string{"referral"}}
	}

	if i.gen == nil {
		return Interpretation{Kind: KindUnknown, Consent: consent}
	}
	return i.classifyWithModel(ctx, text, consent)
}

func (i *Interpreter) classifyWithModel(ctx context.Context, text string, consent Consent) Interpretation {
	prompt := fmt.Sprintf(`Classify this reply.

Reply: %q

Return JSON:
{
  "reply_type": "self_claim|referral|unknown",
  "consent": "yes|no|unknown"
}`, text)

	out, err := i.gen.GenerateJSON(ctx, prompt, 0)
	if err != nil {
		return Interpretation{Kind: KindUnknown, Consent: consent}
	}

	kind := KindUnknown
	switch out["reply_type"] {
	case "self_claim":
		kind = KindSelfClaim
	case "referral":
		kind = KindReferral
	}
	switch out["consent"] {
	case "yes":
		consent = ConsentYes
	case "no":
		consent = ConsentNo
	}

	res := Interpretation{Kind: kind, Consent: consent}
	if kind != KindUnknown {
		res.Evidence = []string{string(kind)}
	}
	return res
}
