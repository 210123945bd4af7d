package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"phofmit/internal/phofmit"
)

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stdinIsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("a passphrase is required but stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// promptConfirmer asks on out and reads answers from in. An empty answer
// means yes; end of input means no.
func promptConfirmer(in io.Reader, out io.Writer) phofmit.Confirmer {
	r := bufio.NewReader(in)
	return func(question string) bool {
		fmt.Fprintf(out, "%s [Y/n] ", question)
		line, err := r.ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(out)
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return true
		default:
			return false
		}
	}
}

// confirmerFor returns the confirmer for a command: everything is accepted
// with --yes or when there is nobody to ask.
func confirmerFor(yes bool) phofmit.Confirmer {
	if yes || !stdinIsTerminal() {
		return phofmit.AlwaysYes
	}
	return promptConfirmer(os.Stdin, os.Stderr)
}

// barProgress renders phofmit progress phases as progress bars. Steps may
// arrive from several scanner workers at once.
type barProgress struct {
	mu  sync.Mutex
	w   io.Writer
	bar *progressbar.ProgressBar
}

var _ phofmit.Progress = (*barProgress)(nil)

// newProgress returns a progress bar writer for w, or a no-op when w is not
// a terminal.
func newProgress(w *os.File) phofmit.Progress {
	if !shouldColorize(w) {
		return phofmit.NopProgress{}
	}
	return &barProgress{w: w}
}

func (p *barProgress) Start(phase string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionSetDescription(phase),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *barProgress) Step(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Add(1)
	}
}

func (p *barProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
