// Package confidence computes deterministic confidence scores for answers.
//
// Three scoring paths exist: per-reply candidate scores during collection,
// run-level confidence for crowdsourced answers, and direct confidence for
// answers served straight from records and cached facts.
package confidence

import (
	"math"
	"strings"

	"github.com/bondedhq/link-server/internal/model"
	"github.com/bondedhq/link-server/internal/reply"
)

const (
	replyScoreCap      = 0.95
	corroborationBoost = 0.05

	runBase  = 0.4
	runBoost = 0.2
	runCap   = 0.95
	runFloor = 0.1
)

// ReplyScore is the base score a single interpreted reply contributes.
// Unknown replies contribute nothing.
func ReplyScore(kind reply.Kind, consent reply.Consent) float64 {
	switch kind {
	case reply.KindSelfClaim:
		if consent == reply.ConsentYes {
			return 0.85
		}
		return 0.65
	case reply.KindReferral:
		return 0.55
	}
	return 0.0
}

// Corroborate bumps a candidate's score for each additional supporting reply.
func Corroborate(current float64) float64 {
	return math.Min(replyScoreCap, current+corroborationBoost)
}

var (
	eventTokens   = []string{"event", "meet", "session", "talk"}
	timeTokens    = []string{"pm", "am", "tonight", "today", "at ", "location", "room"}
	channelTokens = []string{"discord", "email", "ig", "instagram", "group chat", "flyer"}
)

func anyReplyContains(replies []string, tokens []string) bool {
	for _, r := range replies {
		t := strings.ToLower(r)
		for _, tok := range tokens {
			if strings.Contains(t, tok) {
				return true
			}
		}
	}
	return false
}

// OutreachRun scores a crowdsourced answer from the raw reply texts.
// Specific details (what, when, where to follow up) each raise the score.
func OutreachRun(replies []string) float64 {
	if len(replies) == 0 {
		return runFloor
	}

	boost := 0.0
	if anyReplyContains(replies, eventTokens) {
		boost += runBoost
	}
	if anyReplyContains(replies, timeTokens) {
		boost += runBoost
	}
	if anyReplyContains(replies, channelTokens) {
		boost += runBoost
	}
	if len(replies) >= 2 {
		boost += runBoost
	}

	return math.Min(runCap, runBase+boost)
}

// Validation summarizes how a directly served answer was validated.
type Validation struct {
	Score             float64 `json:"systemConfidence"`
	Agreement         float64 `json:"agreementScore"`
	SourcesCount      int     `json:"sourcesCount"`
	VerifiedFactsUsed int     `json:"verifiedFactsUsed"`
}

// Direct scores an answer assembled from retrieval results and cached facts.
// agreement is the overlap between two retrieval passes in [0,1]; facts with
// granted consent raise source quality.
func Direct(resultCount int, agreement float64, facts []*model.VerifiedFact) Validation {
	base := 0.8
	switch {
	case resultCount == 0:
		base = 0.1
	case resultCount < 3:
		base = 0.5
	}

	verified := 0
	for _, f := range facts {
		if f.ConsentStatus == "granted" || f.ConsentStatus == "opt_in" {
			verified++
		}
	}
	total := len(facts)
	if total == 0 {
		total = 1
	}
	sourceQuality := 0.5 + 0.5*float64(verified)/float64(total)

	score := math.Round(base*agreement*sourceQuality*100) / 100

	return Validation{
		Score:             score,
		Agreement:         math.Round(agreement*100) / 100,
		SourcesCount:      resultCount,
		VerifiedFactsUsed: verified,
	}
}
