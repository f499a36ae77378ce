package retrieve

import (
	"strings"
	"testing"
)

func TestExpandAddsSynonymsForTriggerTerms(t *testing.T) {
	e := NewExpander()

	got := e.Expand("What was your previous job?")
	for _, want := range []string{"employment", "earlier", "prior", "position"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expand() = %q, missing %q", got, want)
		}
	}
	if !strings.HasPrefix(got, "What was your previous job?") {
		t.Errorf("Expand() = %q, want original terms leading", got)
	}
}

func TestExpandLeavesUnmatchedQueriesAlone(t *testing.T) {
	e := NewExpander()

	const query = "how do hamsters sleep"
	if got := e.Expand(query); got != query {
		t.Errorf("Expand(%q) = %q, want unchanged", query, got)
	}
}

func TestExpandDeduplicatesPreservingOrder(t *testing.T) {
	e := NewExpander()

	got := e.Expand("work work")
	fields := strings.Fields(got)
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f] {
			t.Fatalf("Expand() = %q, term %q repeated", got, f)
		}
		seen[f] = true
	}
	if fields[0] != "work" {
		t.Errorf("Expand() = %q, want original term first", got)
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	e := NewExpander()

	const query = "past work on a university project"
	first := e.Expand(query)
	for i := 0; i < 5; i++ {
		if got := e.Expand(query); got != first {
			t.Fatalf("Expand() = %q on repeat, first call gave %q", got, first)
		}
	}
}
