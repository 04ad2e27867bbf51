package crisis

import "regexp"

// Family names the kind of crisis language that matched.
type Family string

const (
	SelfHarm    Family = "self_harm"
	HarmOthers  Family = "harm_to_others"
	Emergency   Family = "emergency"
	AbuseThreat Family = "abuse_threat"
)

type rule struct {
	family  Family
	pattern *regexp.Regexp
}

var rules = []rule{
	{SelfHarm, regexp.MustCompile(`(?i)\b(?:kill(?:ing)? myself|end(?:ing)? (?:my|it all|my own) life|end it all|suicid(?:e|al)|take my (?:own )?life|hurt(?:ing)? myself|self[- ]harm|want to die|better off dead|no reason to live|cut(?:ting)? myself)\b`)},
	{HarmOthers, regexp.MustCompile(`(?i)\b(?:kill (?:him|her|them|someone|somebody|everyone|people)|hurt (?:him|her|them|someone|somebody|others|people)|shoot (?:him|her|them|someone|somebody|up)|going to attack)\b`)},
	{Emergency, regexp.MustCompile(`(?i)\b(?:overdos(?:e|ed|ing)|can[’']t breathe|(?:i am|i[’']m) in danger|having an emergency|medical emergency|bleeding (?:out|heavily))\b`)},
	{AbuseThreat, regexp.MustCompile(`(?i)\b(?:(?:being|been|was) abused|abusing me|abusive (?:partner|relationship|spouse|husband|wife)|threaten(?:s|ed|ing)? (?:me|to kill)|hits me|beats? me|beating me|domestic violence|unsafe at home)\b`)},
}

// Match returns the first crisis family found in text.
func Match(text string) (Family, bool) {
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			return r.family, true
		}
	}
	return "", false
}

// Detect reports whether text contains any crisis language.
func Detect(text string) bool {
	_, ok := Match(text)
	return ok
}
