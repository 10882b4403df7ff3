package logic

import (
	"bytes"
	"strings"
)

// Command is a recognised serial command.
type Command string

const (
	CommandNone    Command = ""
	CommandTrigger Command = "TRIGGER"
	CommandUnknown Command = "UNKNOWN"
)

// maxLineLen bounds the line buffer; extra characters on a line are discarded.
const maxLineLen = 64

// ParseResult is produced when a line terminator completes a line.
type ParseResult struct {
	Command Command
	// Line is the trimmed text of the completed line.
	Line string
}

// CommandParser assembles serial bytes into lines and matches them against
// the command vocabulary.
type CommandParser struct {
	buf bytes.Buffer
}

// NewCommandParser returns an empty parser.
func NewCommandParser() *CommandParser {
	p := &CommandParser{}
	p.buf.Grow(maxLineLen)
	return p
}

// Feed consumes one byte. ok is true when b terminated a line; the buffer is
// then cleared whatever the line contained. An empty line yields CommandNone.
func (p *CommandParser) Feed(b byte) (res ParseResult, ok bool) {
	if b == '\n' {
		line := strings.TrimSpace(p.buf.String())
		p.buf.Reset()

		switch {
		case line == "":
			return ParseResult{Command: CommandNone}, true
		case line == string(CommandTrigger):
			return ParseResult{Command: CommandTrigger, Line: line}, true
		default:
			return ParseResult{Command: CommandUnknown, Line: line}, true
		}
	}

	// Only visible ASCII is kept; CR, spaces and control bytes are skipped.
	if b > ' ' && b < 0x7f && p.buf.Len() < maxLineLen {
		p.buf.WriteByte(b)
	}
	return ParseResult{}, false
}

// Pending returns the number of buffered characters.
func (p *CommandParser) Pending() int {
	return p.buf.Len()
}
