package retrieve

import "strings"

// expansionRule maps a trigger term to related terms appended to the
// query before embedding. Short questions rarely use the stored
// phrasing ("job" where the document says "employment"); the added
// terms pull the query vector toward the document's wording.
type expansionRule struct {
	trigger  string
	synonyms []string
}

// expansionRules is an ordered list so expanding the same query twice
// produces byte-identical text.
var expansionRules = []expansionRule{
	// Work-related terms
	{"work", []string{"work", "job", "employment", "career", "experience", "professional"}},
	{"job", []string{"job", "work", "employment", "position", "role"}},
	{"career", []string{"career", "work", "professional", "employment"}},
	{"experience", []string{"experience", "work", "background", "history"}},

	// Company-related terms
	{"company", []string{"company", "organization", "firm", "employer", "business"}},
	{"companies", []string{"companies", "organizations", "firms", "employers"}},

	// Time-related terms
	{"before", []string{"before", "previous", "past", "earlier", "prior"}},
	{"previous", []string{"previous", "past", "earlier", "prior", "before"}},
	{"past", []string{"past", "previous", "earlier", "before"}},

	// Education-related terms
	{"education", []string{"education", "school", "university", "college", "degree", "study"}},
	{"school", []string{"school", "education", "university", "college", "study"}},
	{"university", []string{"university", "college", "education", "school", "degree", "study"}},
	{"study", []string{"study", "education", "school", "university", "learning", "degree"}},

	// Project-related terms
	{"project", []string{"project", "work", "development", "build", "create"}},
	{"built", []string{"built", "developed", "created", "made", "implemented"}},
}

// Expander rewrites queries with synonyms of recognized terms to
// improve semantic matching.
type Expander struct {
	rules []expansionRule
}

// NewExpander returns an Expander with the built-in rule set.
func NewExpander() *Expander {
	return &Expander{rules: expansionRules}
}

// Expand appends the synonyms of every trigger term found in the query,
// deduplicated in first-seen order. The original query terms always
// lead; a query with no trigger terms comes back unchanged.
func (e *Expander) Expand(query string) string {
	lower := strings.ToLower(query)

	terms := strings.Fields(query)
	for _, rule := range e.rules {
		if strings.Contains(lower, rule.trigger) {
			terms = append(terms, rule.synonyms...)
		}
	}

	seen := make(map[string]struct{}, len(terms))
	unique := terms[:0]
	for _, term := range terms {
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		unique = append(unique, term)
	}
	return strings.Join(unique, " ")
}
