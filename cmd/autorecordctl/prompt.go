package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads secrets without echo from a terminal, or one per line from
// piped input.
type prompter struct {
	in  io.Reader
	out io.Writer
	buf *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: cmd.InOrStdin(), out: cmd.ErrOrStderr()}
}

func (p *prompter) secret(label string) ([]byte, error) {
	fmt.Fprint(p.out, label)

	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", label, err)
		}
		return b, nil
	}

	if p.buf == nil {
		p.buf = bufio.NewReader(p.in)
	}
	line, err := p.buf.ReadBytes('\n')
	if err != nil && (!errors.Is(err, io.EOF) || len(line) == 0) {
		return nil, fmt.Errorf("read %s: %w", label, err)
	}
	fmt.Fprintln(p.out)
	return bytes.TrimRight(line, "\r\n"), nil
}

// newPassword prompts twice and requires both entries to match.
func (p *prompter) newPassword(label string) ([]byte, error) {
	first, err := p.secret(label + ": ")
	if err != nil {
		return nil, err
	}
	second, err := p.secret("Repeat " + label + ": ")
	if err != nil {
		clear(first)
		return nil, err
	}
	defer clear(second)
	if !bytes.Equal(first, second) {
		clear(first)
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}
