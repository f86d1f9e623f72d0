package reply

import (
	"context"
	"testing"
)

func TestInterpret_SelfClaim(t *testing.T) {
	in := NewInterpreter(nil)
	cases := []struct {
		text    string
		consent Consent
	}{
		{"yes! i play every week", ConsentYes},
		{"i do, but not really looking to meet people", ConsentNo},
		{"i'm in the club", ConsentUnknown},
	}
	for _, c := range cases {
		got := in.Interpret(context.Background(), c.text)
		if got.Kind != KindSelfClaim {
			t.Fatalf("%q: kind=%s want self_claim", c.text, got.Kind)
		}
		if got.Consent != c.consent {
			t.Fatalf("%q: consent=%s want %s", c.text, got.Consent, c.consent)
		}
	}
}

func TestInterpret_Referral(t *testing.T) {
	in := NewInterpreter(nil)
	for _, text := range []string{
		"my friend sam runs it",
		"you should ask @jordan",
		"they play on tuesdays i think",
	} {
		got := in.Interpret(context.Background(), text)
		if got.Kind != KindReferral {
			t.Fatalf("%q: kind=%s want referral", text, got.Kind)
		}
	}
}

func TestInterpret_Unknown(t *testing.T) {
	in := NewInterpreter(nil)
	got := in.Interpret(context.Background(), "huh?")
	if got.Kind != KindUnknown {
		t.Fatalf("kind=%s want unknown", got.Kind)
	}
	if got := in.Interpret(context.Background(), ""); got.Kind != KindUnknown || got.Consent != ConsentUnknown {
		t.Fatalf("empty text: %+v", got)
	}
}

func TestInterpret_NoDoesNotFireInsideWords(t *testing.T) {
	in := NewInterpreter(nil)
	got := in.Interpret(context.Background(), "i know the organizer, ask sam")
	if got.Consent == ConsentNo {
		t.Fatalf("'know' misread as a no: %+v", got)
	}
	if got.Kind != KindReferral {
		t.Fatalf("kind=%s want referral", got.Kind)
	}
}

type fakeGen struct {
	out map[string]interface{}
}

func (f *fakeGen) GenerateJSON(_ context.Context, _ string, _ float32) (map[string]interface{}, error) {
	return f.out, nil
}

func TestInterpret_ModelFallback(t *testing.T) {
	in := NewInterpreter(&fakeGen{out: map[string]interface{}{
		"reply_type": "self_claim",
		"consent":    "yes",
	}})
	got := in.Interpret(context.Background(), "haha been grinding that for years lol")
	if got.Kind != KindSelfClaim || got.Consent != ConsentYes {
		t.Fatalf("fallback: %+v", got)
	}
}
