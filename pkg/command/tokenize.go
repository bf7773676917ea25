// Package command lexes message text into a command name and its arguments.
package command

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config controls how message text is tokenized.
type Config struct {
	// Prompts are the characters a command must start with.
	Prompts string
	// Separators are the characters that split arguments.
	Separators string
	// TrimBlanks skips leading whitespace before the prompt, trims
	// whitespace from every token and drops the tokens left empty. Without
	// it, adjacent separators yield empty arguments.
	TrimBlanks bool
}

// DefaultConfig is used when no tokenizer settings are configured.
var DefaultConfig = Config{Prompts: "/!", Separators: " ", TrimBlanks: true}

// Command is a tokenized command line.
type Command struct {
	Prompt rune
	Name   string
	Args   []string
}

// Tokenize splits text into a command name and arguments. ok is false when
// text does not start with one of the prompt characters or names no
// command.
func Tokenize(text string, cfg Config) (cmd Command, ok bool) {
	if cfg.TrimBlanks {
		text = strings.TrimLeftFunc(text, unicode.IsSpace)
	}
	prompt, size := utf8.DecodeRuneInString(text)
	if size == 0 || !strings.ContainsRune(cfg.Prompts, prompt) {
		return Command{}, false
	}
	fields := split(text[size:], cfg.Separators)
	if !cfg.TrimBlanks {
		if fields[0] == "" {
			return Command{}, false
		}
		return Command{Prompt: prompt, Name: fields[0], Args: fields[1:]}, true
	}
	tokens := fields[:0]
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			tokens = append(tokens, field)
		}
	}
	if len(tokens) == 0 {
		return Command{}, false
	}
	return Command{Prompt: prompt, Name: tokens[0], Args: tokens[1:]}, true
}

// Rest returns the arguments joined back with a single space.
func (c Command) Rest() string {
	return strings.Join(c.Args, " ")
}

// split cuts s at every rune in separators, keeping empty pieces.
func split(s, separators string) []string {
	var out []string
	start := 0
	for i, r := range s {
		if strings.ContainsRune(separators, r) {
			out = append(out, s[start:i])
			start = i + utf8.RuneLen(r)
		}
	}
	return append(out, s[start:])
}
