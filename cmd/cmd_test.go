package cmd

import (
	"testing"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"ingest", "ask", "search", "version"}
	for _, name := range want {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestIngestFullFlag(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("full")
	if flag == nil {
		t.Fatal("ingest command missing --full flag")
	}
	if flag.DefValue != "false" {
		t.Errorf("--full default = %q, want false", flag.DefValue)
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short text unchanged", "hello world", 20, "hello world"},
		{"whitespace collapsed", "hello\n\n  world", 20, "hello world"},
		{"long text truncated", "abcdefghij", 4, "abcd..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snippet(tt.in, tt.max); got != tt.want {
				t.Errorf("snippet(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
