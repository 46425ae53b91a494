package admincli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrCancelled is returned when the operator answers "n" to a confirmation.
var ErrCancelled = errors.New("cancelled")

// PasswordReader reads a secret without echo.
type PasswordReader func() (string, error)

// TerminalPassword reads from the controlling terminal when stdin is one.
// It returns nil otherwise so callers fall back to line input.
func TerminalPassword() PasswordReader {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return func() (string, error) {
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", err
		}
		return string(pw), nil
	}
}

type prompter struct {
	in       *bufio.Reader
	out      io.Writer
	password PasswordReader
}

// line prints prompt and returns the trimmed answer. A partial line before
// EOF is returned as is.
func (p *prompter) line(prompt string) (string, error) {
	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", err
	}
	s, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(s) > 0 {
			return strings.TrimSpace(s), nil
		}
		return "", err
	}
	return strings.TrimSpace(s), nil
}

// required keeps asking until a non-empty answer is given.
func (p *prompter) required(prompt string) (string, error) {
	for {
		s, err := p.line(prompt)
		if err != nil {
			return "", err
		}
		if s != "" {
			return s, nil
		}
		fmt.Fprintln(p.out, "The value is required.")
	}
}

// confirm asks a y/n question; only "y" proceeds.
func (p *prompter) confirm(question string) error {
	for {
		s, err := p.line(question + " [y/n]: ")
		if err != nil {
			return err
		}
		switch strings.ToLower(s) {
		case "y":
			return nil
		case "n":
			return ErrCancelled
		}
	}
}

func (p *prompter) secret(prompt string) (string, error) {
	if p.password == nil {
		return p.line(prompt)
	}
	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return "", err
	}
	s, err := p.password()
	fmt.Fprintln(p.out)
	return s, err
}

// newPassword asks for a password twice and requires both to match.
func (p *prompter) newPassword() (string, error) {
	pw, err := p.secret("Password : ")
	if err != nil {
		return "", err
	}
	again, err := p.secret("Password confirmation : ")
	if err != nil {
		return "", err
	}
	if pw != again {
		return "", errors.New("the passwords do not match")
	}
	if pw == "" {
		return "", errors.New("password is required")
	}
	return pw, nil
}
