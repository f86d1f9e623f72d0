package store

import "strings"

// NormalizeQuery canonicalizes an information-need query so duplicate
// detection treats casing and whitespace variants as the same need.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// DMKey builds the order-independent key identifying a direct channel.
func DMKey(userA, userB string) string {
	if userB < userA {
		userA, userB = userB, userA
	}
	return userA + "|" + userB
}

// AssistantKey identifies a user's assistant channel.
func AssistantKey(userID string) string {
	return "assistant|" + userID
}
