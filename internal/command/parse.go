package command

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ParseError describes a skipped line.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Header is the optional "threads,<N>,<ignored>" first line.
// Threads is advisory; the executor sizes itself from the parsed commands.
type Header struct {
	Present bool
	Threads int
}

// Options controls parsing.
type Options struct {
	// NormalizeNames applies Unicode NFC before validation and hashing so
	// canonically equivalent spellings map to the same record.
	NormalizeNames bool
}

// Batch is the result of parsing a command file.
type Batch struct {
	Header   Header
	Commands []Command
	Skipped  []*ParseError
}

// ParseFile opens path and parses it.
func ParseFile(path string, opts Options) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open command file: %w", err)
	}
	defer f.Close()

	return Parse(f, opts)
}

// maxLineLen bounds a command line. Longer lines are skipped whole.
const maxLineLen = 4096

// Parse reads a command file. Only I/O failures are returned as errors;
// malformed lines are collected in Batch.Skipped.
func Parse(r io.Reader, opts Options) (*Batch, error) {
	b := &Batch{}
	br := bufio.NewReader(r)
	lineNo := 0
	for {
		text, tooLong, err := readLine(br)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read command file: %w", err)
		}
		lineNo++

		if tooLong {
			b.Skipped = append(b.Skipped, &ParseError{
				Line:   lineNo,
				Text:   text[:64] + "...",
				Reason: fmt.Sprintf("line too long (over %d bytes)", maxLineLen),
			})
			continue
		}

		text = strings.TrimRight(text, "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		if lineNo == 1 && strings.HasPrefix(text, "threads,") {
			h, perr := parseHeader(text)
			if perr != nil {
				b.Skipped = append(b.Skipped, perr)
				continue
			}
			b.Header = h
			continue
		}

		cmd, err := ParseLine(text, lineNo, opts)
		if err != nil {
			b.Skipped = append(b.Skipped, err.(*ParseError))
			continue
		}
		b.Commands = append(b.Commands, cmd)
	}
	return b, nil
}

// readLine returns the next line without its terminator. A line longer than
// maxLineLen is consumed to its end and returned truncated with tooLong set.
func readLine(br *bufio.Reader) (string, bool, error) {
	var line []byte
	tooLong := false
	for {
		frag, isPrefix, err := br.ReadLine()
		if err != nil {
			return "", false, err
		}
		room := maxLineLen - len(line)
		if len(frag) > room {
			frag = frag[:room]
			tooLong = true
		}
		line = append(line, frag...)
		if !isPrefix {
			return string(line), tooLong, nil
		}
	}
}

// ParseLine parses a single "op,name,value" line.
// The returned error, if any, is a *ParseError.
func ParseLine(text string, lineNo int, opts Options) (Command, error) {
	fail := func(reason string) (Command, error) {
		return Command{}, &ParseError{Line: lineNo, Text: text, Reason: reason}
	}

	fields := strings.Split(text, ",")
	if len(fields) != 3 {
		return fail(fmt.Sprintf("expected 3 fields, got %d", len(fields)))
	}

	kind, ok := ParseKind(fields[0])
	if !ok {
		return fail(fmt.Sprintf("unknown operation %q", fields[0]))
	}

	name := fields[1]
	if opts.NormalizeNames {
		name = norm.NFC.String(name)
	}
	if err := ValidateName(name); err != nil {
		return fail(err.Error())
	}

	value, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 32)
	if err != nil {
		return fail("value is not a 32-bit integer")
	}

	return Command{Kind: kind, Name: name, Value: int32(value), Line: lineNo}, nil
}

func parseHeader(text string) (Header, *ParseError) {
	fields := strings.Split(text, ",")
	if len(fields) < 2 {
		return Header{}, &ParseError{Line: 1, Text: text, Reason: "malformed threads header"}
	}
	n, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil || n < 0 {
		return Header{}, &ParseError{Line: 1, Text: text, Reason: "malformed threads header"}
	}
	return Header{Present: true, Threads: n}, nil
}
