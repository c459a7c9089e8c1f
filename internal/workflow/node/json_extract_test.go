package node

import (
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain object",
			input: `{"title":"Go"}`,
			want:  `{"title":"Go"}`,
		},
		{
			name:  "fenced with language tag",
			input: "```json\n{\"title\":\"Go\"}\n```",
			want:  `{"title":"Go"}`,
		},
		{
			name:  "fenced without language tag",
			input: "```\n{\"title\":\"Go\"}\n```",
			want:  `{"title":"Go"}`,
		},
		{
			name:  "prose around object",
			input: "Here is your outline:\n{\"title\":\"Go\"}\nHope it helps!",
			want:  `{"title":"Go"}`,
		},
		{
			name:  "nested braces",
			input: `prefix {"a":{"b":1}} suffix`,
			want:  `{"a":{"b":1}}`,
		},
		{
			name:  "no object",
			input: "sorry, I cannot do that",
			want:  "",
		},
		{
			name:  "unbalanced braces",
			input: `{"title":"Go"`,
			want:  "",
		},
		{
			name:  "invalid json between braces",
			input: `{title: Go}`,
			want:  "",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "whitespace only",
			input: "   \n\t ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractJSONObject(tt.input)
			if got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no fence", "hello", "hello"},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\ntext\n```", "text"},
		{"fence with surrounding whitespace", "  ```json\n{}\n```  ", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripCodeFences(tt.input); got != tt.want {
				t.Errorf("StripCodeFences(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
