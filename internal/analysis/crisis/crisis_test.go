package crisis

import "testing"

func TestDetectFamilies(t *testing.T) {
	cases := map[string]Family{
		"I want to kill myself":                     SelfHarm,
		"honestly I'd be better off dead":           SelfHarm,
		"I've been having suicidal thoughts":        SelfHarm,
		"sometimes I want to hurt someone":          HarmOthers,
		"I think I took an overdose":                Emergency,
		"I'm in danger right now":                   Emergency,
		"my partner threatened to kill me":          AbuseThreat,
		"I don't feel unsafe at home... I mean I do": AbuseThreat,
	}
	for text, want := range cases {
		got, ok := Match(text)
		if !ok {
			t.Errorf("expected crisis match for %q", text)
			continue
		}
		if got != want {
			t.Errorf("Match(%q) = %s, want %s", text, got, want)
		}
		if !Detect(text) {
			t.Errorf("Detect(%q) = false", text)
		}
	}
}

func TestDetectIgnoresOrdinaryText(t *testing.T) {
	for _, text := range []string{
		"",
		"Can you help me update my resume?",
		"The job interview killed it, I nailed it",
		"I need housing assistance near Fort Hood",
		"What benefits am I eligible for?",
	} {
		if Detect(text) {
			t.Errorf("unexpected crisis match for %q", text)
		}
	}
}

func TestDetectIsCaseInsensitive(t *testing.T) {
	if !Detect("I WANT TO DIE") {
		t.Fatal("expected upper-case text to match")
	}
}
