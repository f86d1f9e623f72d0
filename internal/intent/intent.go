// Package intent classifies inbound messages with keyword heuristics.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the classified purpose of an inbound message.
type Intent string

const (
	Greeting        Intent = "greeting"
	SmallTalk       Intent = "small_talk"
	Followup        Intent = "followup"
	DBQuery         Intent = "db_query"
	PeopleSearch    Intent = "people_search"
	EventSearch     Intent = "event_search"
	ClubSearch      Intent = "club_search"
	CampusInfo      Intent = "campus_info"
	ProfileQuestion Intent = "profile_question"
	CountQuery      Intent = "count_query"
	ConsentResponse Intent = "consent_response"
	CancelTask      Intent = "cancel_task"
	Unknown         Intent = "unknown"
)

// Result is a classified message.
type Result struct {
	Intent   Intent
	Entities []string
	Raw      string
}

var (
	greetings     = map[string]bool{"yo": true, "hey": true, "hi": true, "sup": true, "what's up": true, "whats up": true, "wyd": true}
	cancelStarts  = []string{"cancel", "stop", "end", "drop", "never mind", "nevermind"}
	yesWords      = map[string]bool{"yes": true, "yep": true, "yeah": true, "yup": true, "sure": true, "ok": true, "okay": true}
	noWords       = map[string]bool{"no": true, "nope": true, "nah": true}
	smallTalk     = []string{"how are you", "how's your day", "what's good", "wyd", "hru"}
	profileAsks   = []string{"who am i", "what do you know about me", "do you know me", "tell me about myself"}
	countAsks     = []string{"how many", "count", "number of"}
	clubWords     = []string{"club", "clubs", "org ", "organization", "organizations"}
	eventWords    = []string{"event", "events", "party", "show", "concert", "talk"}
	peopleWords   = []string{"find", "anyone", "someone", "people", "person", "connect me", "looking for"}
	campusWords   = []string{"campus", "library", "gym", "dining", "hours", "where is", "where's"}
	infoWordLists = [][]string{
		{"food", "lunch", "dinner", "menu"},
		{"dorm", "housing", "maintenance"},
		{"wifi", "password", "print", "printer", "login"},
		{"police", "escort", "emergency"},
		{"shuttle", "bus", "carpool", "parking"},
		{"counseling", "clinic", "therapy"},
		{"internship", "career", "resume"},
		{"pickup", "intramural"},
		{"study", "tutor", "notes", "exam", "midterm"},
		{"buy", "sell", "textbook", "sublet"},
	}
)

var wordRe = regexp.MustCompile(`[a-zA-Z0-9']+`)

// extractEntities keeps the longer words of the message as search tags.
func extractEntities(text string) []string {
	words := wordRe.FindAllString(text, -1)
	var out []string
	for _, w := range words {
		if len(w) > 2 {
			out = append(out, strings.ToLower(w))
			if len(out) == 8 {
				break
			}
		}
	}
	return out
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// Classify reads one message. hasActiveTask makes bare replies followups;
// awaitingConsent makes a bare yes/no a consent response instead.
func Classify(raw string, hasActiveTask, awaitingConsent bool) Result {
	text := strings.ToLower(strings.TrimSpace(raw))
	entities := extractEntities(raw)

	if text == "" {
		return Result{Intent: Unknown, Entities: entities, Raw: raw}
	}

	for _, c := range cancelStarts {
		if strings.HasPrefix(text, c) {
			return Result{Intent: CancelTask, Entities: entities, Raw: raw}
		}
	}
	if strings.Contains(text, "end that task") || strings.Contains(text, "stop asking") {
		return Result{Intent: CancelTask, Entities: entities, Raw: raw}
	}

	if yesWords[text] || noWords[text] {
		if awaitingConsent {
			return Result{Intent: ConsentResponse, Entities: entities, Raw: raw}
		}
		return Result{Intent: Followup, Entities: entities, Raw: raw}
	}

	if greetings[text] || len(text) <= 3 {
		return Result{Intent: Greeting, Entities: entities, Raw: raw}
	}
	if containsAny(text, smallTalk) {
		return Result{Intent: SmallTalk, Entities: entities, Raw: raw}
	}
	if containsAny(text, profileAsks) {
		return Result{Intent: ProfileQuestion, Entities: entities, Raw: raw}
	}
	if containsAny(text, countAsks) {
		return Result{Intent: CountQuery, Entities: entities, Raw: raw}
	}
	if containsAny(text, clubWords) {
		return Result{Intent: ClubSearch, Entities: entities, Raw: raw}
	}
	if containsAny(text, eventWords) {
		return Result{Intent: EventSearch, Entities: entities, Raw: raw}
	}
	if containsAny(text, peopleWords) {
		return Result{Intent: PeopleSearch, Entities: entities, Raw: raw}
	}
	if containsAny(text, campusWords) {
		return Result{Intent: CampusInfo, Entities: entities, Raw: raw}
	}
	for _, words := range infoWordLists {
		if containsAny(text, words) {
			return Result{Intent: DBQuery, Entities: entities, Raw: raw}
		}
	}

	if hasActiveTask {
		return Result{Intent: Followup, Entities: entities, Raw: raw}
	}
	return Result{Intent: Unknown, Entities: entities, Raw: raw}
}
