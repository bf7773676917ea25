package command

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	bang := Config{Prompts: "!", Separators: " ", TrimBlanks: true}
	cases := []struct {
		name string
		text string
		cfg  Config
		ok   bool
		cmd  string
		args []string
	}{
		{"simple", "!echo hello world", bang, true, "echo", []string{"hello", "world"}},
		{"missing prompt", "echo hi", bang, false, "", nil},
		{"collapsed blanks", "!  a  b", bang, true, "a", []string{"b"}},
		{"leading blanks", "   !ping", bang, true, "ping", []string{}},
		{"leading blanks untrimmed", "   !ping", Config{Prompts: "!", Separators: " "}, false, "", nil},
		{"prompt only", "!", bang, false, "", nil},
		{"empty", "", bang, false, "", nil},
		{"multiple prompts", "/kick 1", Config{Prompts: "/!", Separators: " "}, true, "kick", []string{"1"}},
		{"comma separators", "!ban,1, 60", Config{Prompts: "!", Separators: ",", TrimBlanks: true}, true, "ban", []string{"1", "60"}},
		{"empty args kept untrimmed", "!a,,b", Config{Prompts: "!", Separators: ","}, true, "a", []string{"", "b"}},
		{"empty args dropped trimmed", "!a,,b", Config{Prompts: "!", Separators: ",", TrimBlanks: true}, true, "a", []string{"b"}},
		{"blank args kept untrimmed", "!a ,  b", Config{Prompts: "!", Separators: ","}, true, "a ", []string{"  b"}},
		{"empty name untrimmed", "!,a", Config{Prompts: "!", Separators: ","}, false, "", nil},
		{"unicode prompt", "！签到 今天", Config{Prompts: "！", Separators: " "}, true, "签到", []string{"今天"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Tokenize(tc.text, tc.cfg)
			if ok != tc.ok {
				t.Fatalf("Tokenize(%q) ok = %v, want %v", tc.text, ok, tc.ok)
			}
			if !ok {
				return
			}
			if got.Name != tc.cmd {
				t.Fatalf("name = %q, want %q", got.Name, tc.cmd)
			}
			if !reflect.DeepEqual(got.Args, tc.args) {
				t.Fatalf("args = %#v, want %#v", got.Args, tc.args)
			}
		})
	}
}

func TestCommandRest(t *testing.T) {
	cmd, ok := Tokenize("!echo  hello   world", DefaultConfig)
	if !ok || cmd.Rest() != "hello world" || cmd.Prompt != '!' {
		t.Fatalf("unexpected command %+v", cmd)
	}
}
