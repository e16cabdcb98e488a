package enrich

// sentimentLexicon assigns polarity weights to common opinion words.
// Values are intentionally small; sentiment() rescales by word count.
var sentimentLexicon = map[string]float64{
	"amazing":    0.9,
	"awesome":    0.9,
	"great":      0.8,
	"excellent":  0.9,
	"good":       0.6,
	"love":       0.8,
	"loved":      0.8,
	"happy":      0.7,
	"helpful":    0.6,
	"productive": 0.6,
	"success":    0.6,
	"successful": 0.6,
	"excited":    0.7,
	"wonderful":  0.8,
	"best":       0.7,
	"win":        0.5,
	"agreed":     0.3,
	"thanks":     0.4,

	"bad":          -0.6,
	"terrible":     -0.9,
	"awful":        -0.9,
	"hate":         -0.8,
	"hated":        -0.8,
	"angry":        -0.7,
	"sad":          -0.6,
	"problem":      -0.4,
	"problems":     -0.4,
	"issue":        -0.3,
	"issues":       -0.3,
	"fail":         -0.6,
	"failed":       -0.6,
	"failure":      -0.6,
	"worst":        -0.8,
	"broken":       -0.5,
	"frustrated":   -0.7,
	"disappointed": -0.7,
	"worried":      -0.5,
	"blocked":      -0.4,
}

// topicLexicon maps strong keywords to coarse topic labels.
var topicLexicon = map[string]string{
	"meeting":   "work",
	"project":   "work",
	"deadline":  "work",
	"standup":   "work",
	"budget":    "finance",
	"invoice":   "finance",
	"money":     "finance",
	"payment":   "finance",
	"doctor":    "health",
	"health":    "health",
	"workout":   "health",
	"sleep":     "health",
	"family":    "personal",
	"friend":    "personal",
	"friends":   "personal",
	"vacation":  "travel",
	"travel":    "travel",
	"trip":      "travel",
	"flight":    "travel",
	"launch":    "product",
	"release":   "product",
	"feature":   "product",
	"customer":  "product",
	"interview": "career",
	"hiring":    "career",
	"resume":    "career",
}

// stopwords filtered out before keyword extraction.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"has": true, "have": true, "him": true, "his": true, "how": true,
	"its": true, "new": true, "now": true, "old": true, "see": true,
	"two": true, "way": true, "who": true, "did": true, "get": true,
	"got": true, "that": true, "this": true, "with": true, "they": true,
	"them": true, "then": true, "than": true, "were": true, "been": true,
	"from": true, "will": true, "would": true, "there": true, "their": true,
	"what": true, "when": true, "where": true, "which": true, "while": true,
	"about": true, "after": true, "before": true, "into": true, "over": true,
	"some": true, "such": true, "only": true, "also": true, "just": true,
	"very": true, "more": true, "most": true, "other": true, "these": true,
	"those": true, "because": true, "could": true, "should": true,
}
