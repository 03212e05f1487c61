package helpers

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/term"

	"github.com/quantumauth-io/gamevault-client/internal/constants"
)

const minPasswordLen = 8

// Prompter reads operator input. Tests swap In/Out for buffers.
type Prompter struct {
	In  io.Reader
	Out io.Writer

	reader *bufio.Reader
}

func NewPrompter() *Prompter {
	return &Prompter{In: os.Stdin, Out: os.Stderr}
}

func (p *Prompter) line() (string, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	s, err := p.reader.ReadString('\n')
	if err != nil && (s == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimSpace(s), nil
}

func (p *Prompter) LineWithDefault(label, def string) string {
	if def != "" {
		_, _ = fmt.Fprintf(p.Out, "%s [%s]: ", label, def)
	} else {
		_, _ = fmt.Fprintf(p.Out, "%s: ", label)
	}

	s, err := p.line()
	if err != nil || s == "" {
		return def
	}
	return s
}

// YesNo returns true only for an explicit y/yes.
func (p *Prompter) YesNo(msg string) (bool, error) {
	_, _ = fmt.Fprint(p.Out, msg)
	s, err := p.line()
	if err != nil {
		return false, err
	}
	s = strings.ToLower(s)
	return s == "y" || s == "yes", nil
}

// Password reads a passphrase. GAMEVAULT_KEYSTORE_PASSWORD wins when set so
// the daemon can start unattended.
func (p *Prompter) Password(prompt string) ([]byte, error) {
	if env := os.Getenv(constants.EnvKeystorePassword); env != "" {
		return []byte(env), nil
	}

	_, _ = fmt.Fprint(p.Out, prompt)

	var (
		pw  []byte
		err error
	)
	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		pw, err = term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(p.Out)
	} else {
		var s string
		s, err = p.line()
		pw = []byte(s)
	}
	if err != nil {
		ZeroBytes(pw)
		return nil, errors.Wrap(err, "password input failed")
	}
	return pw, nil
}

// NewPassword asks twice and enforces the minimum policy.
func (p *Prompter) NewPassword() ([]byte, error) {
	pw, err := p.Password("New keystore password: ")
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(pw); err != nil {
		ZeroBytes(pw)
		return nil, err
	}
	if os.Getenv(constants.EnvKeystorePassword) != "" {
		return pw, nil
	}

	again, err := p.Password("Repeat password: ")
	if err != nil {
		ZeroBytes(pw)
		return nil, err
	}
	defer ZeroBytes(again)

	if string(pw) != string(again) {
		ZeroBytes(pw)
		return nil, errors.New("passwords do not match")
	}
	return pw, nil
}

func ValidatePassword(pw []byte) error {
	if len(pw) < minPasswordLen {
		return errors.Newf("password must be at least %d characters long", minPasswordLen)
	}
	for _, b := range pw {
		if !IsAllowedPasswordChar(b) {
			return errors.New("password contains invalid characters (use letters, numbers, and special characters only)")
		}
	}
	return nil
}

// IsAllowedPasswordChar accepts printable ASCII other than space.
func IsAllowedPasswordChar(b byte) bool {
	return b > 0x20 && b < 0x7f
}

func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
