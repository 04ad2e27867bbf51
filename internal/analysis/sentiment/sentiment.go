package sentiment

import (
	"math"
	"regexp"

	"github.com/vetlink/companion/backend/internal/model/chat"
)

const (
	// DefaultSupportWeight is the multiplier applied to each support-term match.
	DefaultSupportWeight = 1.5
	// MaxSupportWeight bounds the multiplier so weighted sums stay finite.
	MaxSupportWeight = 10.0

	positiveThreshold = 0.2
	negativeThreshold = -0.1

	baseConfidence = 0.5
	maxConfidence  = 0.95
	confidenceStep = 20.0
)

// Result is the outcome of scoring one text.
type Result struct {
	Sentiment  chat.Sentiment `json:"sentiment"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`

	// Raw match counts, before weighting.
	PositiveCount int `json:"positiveCount"`
	SupportCount  int `json:"supportCount"`
	NegativeCount int `json:"negativeCount"`
}

type family struct {
	name    string
	pattern *regexp.Regexp
}

func (f family) count(text string) int {
	return len(f.pattern.FindAllStringIndex(text, -1))
}

var negativeFamilies = []family{
	{"refusal", regexp.MustCompile(`(?i)\b(?:can[’']t|cannot|can not|unable to|won[’']t|not able to|fail(?:ed|s|ure)?|denied|unfortunately|sorry|refuse[ds]?)\b`)},
	{"policy", regexp.MustCompile(`(?i)\b(?:against (?:my|our|the) (?:policy|policies|guidelines|rules)|not (?:allowed|permitted)|inappropriate|unethical|illegal|violat(?:e|es|ed|ion|ions))\b`)},
	{"distress", regexp.MustCompile(`(?i)\b(?:sad|depressed|depression|hopeless|alone|lonely|struggl(?:e|es|ed|ing)|hurt(?:s|ing)?|pain(?:ful)?|suffer(?:s|ed|ing)?|angry|frustrat(?:ed|ing|ion)|upset|miserable)\b`)},
	{"fear", regexp.MustCompile(`(?i)\b(?:afraid|scared|anxious|anxiety|worr(?:y|ied|ying)|panic(?:king)?|exhausted|overwhelm(?:ed|ing)|tired|burn(?:ed|t)[- ]?out)\b`)},
}

var positiveFamilies = []family{
	{"gratitude", regexp.MustCompile(`(?i)\b(?:thank(?:s| you)|grateful|appreciate[ds]?|appreciation)\b`)},
	{"helpfulness", regexp.MustCompile(`(?i)\b(?:help(?:ful|ed)?|glad to|happy to|here for you|assist(?:ance)?)\b`)},
	{"encouragement", regexp.MustCompile(`(?i)\b(?:great|good|excellent|wonderful|awesome|proud|keep going|you can do|you[’']ve got this|well done|congratulations)\b`)},
	{"competence", regexp.MustCompile(`(?i)\b(?:qualified|skilled|experienced|capable|strong|success(?:ful)?|accomplish(?:ed|ment|ments)|leadership)\b`)},
}

var supportFamilies = []family{
	{"benefits", regexp.MustCompile(`(?i)\b(?:benefits?|eligib(?:le|ility)|entitle(?:d|ment)|compensation|disability rating|pension)\b`)},
	{"programs", regexp.MustCompile(`(?i)\b(?:programs?|referrals?|resources?|services?|counsel(?:ing|or|ors)|case manager|workshops?)\b`)},
	{"va", regexp.MustCompile(`(?i)\b(?:va|veterans affairs|gi bill|vet centers?|tricare|dd[- ]?214|vso)\b`)},
	{"peer", regexp.MustCompile(`(?i)\b(?:peers?|community|fellow veterans?|battle buddy|buddies|support groups?|networking|mentors?|mentorship)\b`)},
}

// Options tunes a Scorer.
type Options struct {
	// SupportWeight multiplies support-term matches. Zero or negative selects
	// DefaultSupportWeight; values above MaxSupportWeight are clamped.
	SupportWeight float64
}

// Scorer is a deterministic, pattern-based sentiment scorer. It holds no
// mutable state and is safe for concurrent use.
type Scorer struct {
	supportWeight float64
}

// New returns a Scorer configured with opts.
func New(opts Options) *Scorer {
	w := opts.SupportWeight
	if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		w = DefaultSupportWeight
	}
	if w > MaxSupportWeight {
		w = MaxSupportWeight
	}
	return &Scorer{supportWeight: w}
}

var defaultScorer = New(Options{})

// Analyze scores text with the default support weight.
func Analyze(text string) Result {
	return defaultScorer.Analyze(text)
}

// SupportWeight returns the configured support-term multiplier.
func (s *Scorer) SupportWeight() float64 {
	return s.supportWeight
}

// Analyze scores text. It never panics and returns a neutral result with
// base confidence when nothing matches.
func (s *Scorer) Analyze(text string) Result {
	positive := countAll(positiveFamilies, text)
	support := countAll(supportFamilies, text)
	negative := countAll(negativeFamilies, text)

	weightedSupport := float64(support) * s.supportWeight
	total := float64(positive) + weightedSupport + float64(negative)

	score := 0.0
	confidence := baseConfidence
	if total > 0 {
		score = (float64(positive) + weightedSupport - float64(negative)) / total
		confidence = math.Min(baseConfidence+total/confidenceStep, maxConfidence)
	}

	return Result{
		Sentiment:     label(score),
		Score:         score,
		Confidence:    confidence,
		PositiveCount: positive,
		SupportCount:  support,
		NegativeCount: negative,
	}
}

// label applies the asymmetric thresholds: the neutral band is wider on the
// positive side.
func label(score float64) chat.Sentiment {
	switch {
	case score > positiveThreshold:
		return chat.SentimentPositive
	case score < negativeThreshold:
		return chat.SentimentNegative
	default:
		return chat.SentimentNeutral
	}
}

func countAll(families []family, text string) int {
	n := 0
	for _, f := range families {
		n += f.count(text)
	}
	return n
}
