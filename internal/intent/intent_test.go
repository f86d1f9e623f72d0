package intent

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		text            string
		hasTask         bool
		awaitingConsent bool
		want            Intent
	}{
		{"hey", false, false, Greeting},
		{"how are you doing", false, false, SmallTalk},
		{"cancel that", true, false, CancelTask},
		{"never mind", true, false, CancelTask},
		{"yes", true, true, ConsentResponse},
		{"no", true, true, ConsentResponse},
		{"yes", true, false, Followup},
		{"anyone play chess around here?", false, false, PeopleSearch},
		{"what events are happening this weekend", false, false, EventSearch},
		{"how do i join the robotics club", false, false, ClubSearch},
		{"where is the library", false, false, CampusInfo},
		{"when does the dining menu change", false, false, CampusInfo},
		{"wifi password for the dorms?", false, false, DBQuery},
		{"what do you know about me", false, false, ProfileQuestion},
		{"how many people are in the hiking group", false, false, CountQuery},
		{"hmm interesting", true, false, Followup},
		{"zzzz qqqq wwww", false, false, Unknown},
	}
	for _, c := range cases {
		got := Classify(c.text, c.hasTask, c.awaitingConsent)
		if got.Intent != c.want {
			t.Fatalf("Classify(%q)=%s want %s", c.text, got.Intent, c.want)
		}
	}
}

func TestClassify_Entities(t *testing.T) {
	got := Classify("anyone play chess on fridays?", false, false)
	want := []string{"anyone", "play", "chess", "fridays"}
	if len(got.Entities) != len(want) {
		t.Fatalf("entities: %v", got.Entities)
	}
	for i := range want {
		if got.Entities[i] != want[i] {
			t.Fatalf("entities[%d]=%s want %s", i, got.Entities[i], want[i])
		}
	}
}
