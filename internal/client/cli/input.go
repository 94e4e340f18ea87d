package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the user. Secrets are read without echo when
// the input is a terminal and as a plain line otherwise.
type prompter struct {
	in  *bufio.Reader
	out io.Writer

	// noEcho is nil unless the input is a terminal.
	noEcho func() ([]byte, error)
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		p.noEcho = func() ([]byte, error) { return term.ReadPassword(fd) }
	}
	return p
}

// Line shows label on its own line followed by a "> " marker and returns the
// trimmed answer. An unterminated last line still counts as an answer.
func (p *prompter) Line(label string) (string, error) {
	if _, err := fmt.Fprintf(p.out, "%s\n> ", label); err != nil {
		return "", err
	}
	line, err := p.readLine()
	return strings.TrimSpace(line), err
}

// Secret reads a value that must not be echoed. The caller wipes the result.
func (p *prompter) Secret(label string) ([]byte, error) {
	if _, err := fmt.Fprintf(p.out, "%s: ", label); err != nil {
		return nil, err
	}
	if p.noEcho == nil {
		line, err := p.readLine()
		if err != nil {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}

	b, err := p.noEcho()
	_, _ = fmt.Fprintln(p.out)
	return b, err
}

func (p *prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if errors.Is(err, io.EOF) && line != "" {
		return line, nil
	}
	return line, err
}
