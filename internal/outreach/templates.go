package outreach

import "fmt"

func topic(tags []string) string {
	if len(tags) > 0 && tags[0] != "" {
		return tags[0]
	}
	return "this"
}

// BuildAskMessage drafts the DM sent to each target: the original ask plus
// an explicit consent request.
func BuildAskMessage(question string, tags []string) string {
	return fmt.Sprintf(
		"hey! quick question from Link - someone asked: %q. do you %s? "+
			"if yes and you're open to an intro, reply YES. if not, reply NO.",
		question, topic(tags))
}

// BuildConsentRequest drafts the DM asking a candidate whether they want
// to be connected.
func BuildConsentRequest(tags []string) string {
	return fmt.Sprintf(
		"hey! someone is looking for people who %s. want me to connect you? reply YES or NO.",
		topic(tags))
}

// BuildForumPost drafts the anonymous fallback post.
func BuildForumPost(question string) (title, body string) {
	title = "looking for someone who can help"
	body = fmt.Sprintf(
		"someone on campus asked: %q. if that's you or you know who can help, drop a comment.",
		question)
	return title, body
}
