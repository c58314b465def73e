// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/samber/oops"
)

// scriptLexer tokenizes run input lines. Bare words stop at whitespace,
// "=", quotes, and "#", which starts a trailing comment.
var scriptLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Word", Pattern: `[^\s="#]+`},
	{Name: "Eq", Pattern: `=`},
	{Name: "comment", Pattern: `#[^\n]*`},
	{Name: "whitespace", Pattern: `\s+`},
})

// scriptLine is one run command.
//
// Grammar: verb event { operand }
type scriptLine struct {
	Pos      lexer.Position `parser:""`
	Verb     string         `parser:"@Word"`
	Event    string         `parser:"@Word"`
	Operands []*operand     `parser:"@@*"`
}

// operand is a key=value assignment, or a lone value when Value is nil.
type operand struct {
	Pos   lexer.Position `parser:""`
	Key   *scalar        `parser:"@@"`
	Value *scalar        `parser:"( Eq @@ )?"`
}

// scalar is a quoted string, kept verbatim, or a bare word decoded with
// parseValue.
type scalar struct {
	Quoted *string `parser:"  @String"`
	Bare   *string `parser:"| @Word"`
}

func (s *scalar) value() any {
	if s.Quoted != nil {
		return *s.Quoted
	}
	return parseValue(*s.Bare)
}

func (s *scalar) text() string {
	if s.Quoted != nil {
		return *s.Quoted
	}
	return *s.Bare
}

var scriptParser *participle.Parser[scriptLine]

func init() {
	var err error
	scriptParser, err = participle.Build[scriptLine](
		participle.Lexer(scriptLexer),
		participle.Unquote("String"),
	)
	if err != nil {
		panic(fmt.Sprintf("failed to build script parser: %v", err))
	}
}

// parseScriptLine parses one run line into a fire request.
func parseScriptLine(text string) (fireRequest, error) {
	line, err := scriptParser.ParseString("", text)
	if err != nil {
		return fireRequest{}, oops.Code(CodeInvalidInput).
			Hint("lines take the form: fire <event> [key=value...] or filter <event> <value> [key=value...]").
			Wrapf(err, "parse line")
	}

	switch line.Verb {
	case "fire":
		args, err := assignmentArgs(line.Operands)
		if err != nil {
			return fireRequest{}, err
		}
		return fireRequest{name: line.Event, args: args}, nil
	case "filter":
		if len(line.Operands) == 0 || line.Operands[0].Value != nil {
			return fireRequest{}, oops.Code(CodeInvalidInput).Errorf("usage: filter <event> <value> [key=value...]")
		}
		args, err := assignmentArgs(line.Operands[1:])
		if err != nil {
			return fireRequest{}, err
		}
		return fireRequest{
			name:   line.Event,
			args:   args,
			filter: true,
			value:  line.Operands[0].Key.value(),
		}, nil
	default:
		return fireRequest{}, oops.Code(CodeInvalidInput).
			With("command", line.Verb).
			Hint("lines start with fire or filter").
			Errorf("unknown command %q", line.Verb)
	}
}

func assignmentArgs(operands []*operand) (map[string]any, error) {
	args := make(map[string]any, len(operands))
	for _, op := range operands {
		if op.Value == nil {
			return nil, oops.Code(CodeInvalidInput).
				With("argument", op.Key.text()).
				With("column", op.Pos.Column).
				Hint("arguments take the form key=value").
				Errorf("invalid argument %q", op.Key.text())
		}
		args[op.Key.text()] = op.Value.value()
	}
	return args, nil
}
