package phofmit

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kballard/go-shellquote"
)

// Locale describes the character encoding the emitted script is meant for.
type Locale struct {
	Name string
	UTF8 bool
}

// DetectLocale reads LC_ALL, LC_CTYPE and LANG, in that order of precedence.
func DetectLocale() Locale {
	return ParseLocale(firstNonEmpty(os.Getenv("LC_ALL"), os.Getenv("LC_CTYPE"), os.Getenv("LANG")))
}

// ParseLocale interprets a POSIX locale name such as "fr_FR.UTF-8".
// An empty name is the "C" locale.
func ParseLocale(name string) Locale {
	if name == "" {
		name = "C"
	}
	codeset := ""
	if _, rest, ok := strings.Cut(name, "."); ok {
		codeset, _, _ = strings.Cut(rest, "@")
	}
	codeset = strings.ReplaceAll(strings.ToLower(codeset), "-", "")
	return Locale{Name: name, UTF8: codeset == "utf8"}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ShellQuote escapes s as a single POSIX shell word. In UTF-8 locales
// non-ASCII characters are kept as they are; otherwise, and for byte
// sequences that are not valid UTF-8, every non-ASCII byte is written as an
// ANSI-C $'\xNN' escape so the script itself stays ASCII. Control characters
// are always escaped, which keeps one command per line.
func (l Locale) ShellQuote(s string) string {
	if !hasControl(s) && (isASCII(s) || (l.UTF8 && utf8.ValidString(s))) {
		return shellquote.Join(s)
	}

	var b strings.Builder
	b.WriteString("$'")
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\'' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, "\\x%02x", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// ShellMover writes shell commands that perform the moves instead of moving
// anything itself. It never touches the filesystem.
type ShellMover struct {
	w         io.Writer
	dirMode   fs.FileMode
	locale    Locale
	verbosity int
	created   map[string]struct{}
}

var _ Mover = (*ShellMover)(nil)

// NewShellMover creates a ShellMover writing its script to w.
func NewShellMover(w io.Writer, dirMode fs.FileMode, locale Locale, verbosity int) *ShellMover {
	if dirMode == 0 {
		dirMode = DefaultDirMode
	}
	return &ShellMover{
		w:         w,
		dirMode:   dirMode,
		locale:    locale,
		verbosity: verbosity,
		created:   make(map[string]struct{}),
	}
}

// MoveFile implements Mover. The returned outcome never reports a move.
func (m *ShellMover) MoveFile(currentPath, newPath string, match Match) Outcome {
	if m.verbosity >= 1 {
		m.comment("%s => %s", currentPath, newPath)
	}
	if m.verbosity >= 2 {
		m.comment("FILE                  %s", match.Target.Describe())
		m.comment("MATCHES FROM SNAPSHOT %s", match.Reference.Describe())
	}

	if match.AlreadyPlaced() || filepath.Clean(currentPath) == filepath.Clean(newPath) {
		if m.verbosity >= 1 {
			m.comment("INFO: Already at the expected location.")
		}
		return OutcomeAlreadyPlaced
	}

	dir := filepath.Dir(newPath)
	if _, ok := m.created[dir]; !ok {
		fmt.Fprintf(m.w, "mkdir -m %o -p %s ;\n", m.dirMode.Perm(), m.locale.ShellQuote(dir))
		m.created[dir] = struct{}{}
	}

	dst := m.locale.ShellQuote(newPath)
	fmt.Fprintf(m.w, "[ -e %s ] || mv -- %s %s ;\n", dst, m.locale.ShellQuote(currentPath), dst)
	return OutcomeEmitted
}

// comment writes a single-line shell comment. Newlines in the text would end
// the comment early, so they are replaced.
func (m *ShellMover) comment(format string, args ...any) {
	text := strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", " ")
	fmt.Fprintf(m.w, "# %s\n", text)
}
