package jsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, true},
		{"object with nested array", `reply: {"a":[1,2],"b":"x"} thanks`, `{"a":[1,2],"b":"x"}`, true},
		{"array first", `[{"a":1}] trailing`, `[{"a":1}]`, true},
		{"fenced", "text\n```json\n{\"a\":\"}\"}\n```\nmore", `{"a":"}"}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"skips invalid candidate", `{not json} then {"a":1}`, `{"a":1}`, true},
		{"fence without tag", "```\n[1,2]\n```", `[1,2]`, true},
		{"bad fence falls back to prose", "```\nnope\n``` {\"b\":true}", `{"b":true}`, true},
		{"empty", "   ", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractJSON(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
