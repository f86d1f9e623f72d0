package outreach

import (
	"context"
	"strings"

	"github.com/bondedhq/link-server/internal/store"
)

// Selection reasons, recorded per target in cascade priority order.
const (
	ReasonFriend        = "friend"
	ReasonClassmate     = "classmate"
	ReasonCachedFact    = "link_fact"
	ReasonInterestMatch = "interest_match"
	ReasonCampusActive  = "campus_active"
)

// Candidate is one selected recipient with the cascade stage that chose it.
type Candidate struct {
	UserID string
	Reason string
}

const activeProfileScan = 200

// SelectTargets walks the selection cascade until batchSize recipients are
// found: friends, classmates, users named by cached opt-in facts matching
// the tags, profile-text matches, then any remaining active users. The
// requester and every id in excluded are never returned.
func SelectTargets(ctx context.Context, s store.Store, requesterID, universityID string, tags []string, batchSize int, excluded []string) ([]Candidate, error) {
	if batchSize <= 0 {
		return nil, nil
	}

	skip := make(map[string]struct{}, len(excluded)+1)
	skip[requesterID] = struct{}{}
	for _, id := range excluded {
		skip[id] = struct{}{}
	}

	tags = normalizeTags(tags)

	var out []Candidate
	add := func(userID, reason string) bool {
		if userID == "" {
			return len(out) >= batchSize
		}
		if _, ok := skip[userID]; ok {
			return len(out) >= batchSize
		}
		skip[userID] = struct{}{}
		out = append(out, Candidate{UserID: userID, Reason: reason})
		return len(out) >= batchSize
	}

	friends, err := s.Profiles().Friends(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	for _, p := range friends {
		if add(p.UserID, ReasonFriend) {
			return out, nil
		}
	}

	classmates, err := s.Profiles().Classmates(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	for _, p := range classmates {
		if add(p.UserID, ReasonClassmate) {
			return out, nil
		}
	}

	for _, tag := range tags {
		facts, err := s.Facts().Search(ctx, universityID, tag, activeProfileScan)
		if err != nil {
			return nil, err
		}
		for _, f := range facts {
			if f.ConsentStatus != "opt_in" || f.SubjectType != "user" || f.SubjectID == nil {
				continue
			}
			if add(*f.SubjectID, ReasonCachedFact) {
				return out, nil
			}
		}
	}

	for _, tag := range tags {
		profiles, err := s.Profiles().SearchText(ctx, universityID, tag, activeProfileScan)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			if add(p.UserID, ReasonInterestMatch) {
				return out, nil
			}
		}
	}

	active, err := s.Profiles().ListActive(ctx, universityID, activeProfileScan)
	if err != nil {
		return nil, err
	}
	for _, p := range active {
		if add(p.UserID, ReasonCampusActive) {
			return out, nil
		}
	}

	return out, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
