// Package pathnorm implements the untrusted-URL-path sanitiser of
// spec.md §4.M: repeated percent-decoding, NFC normalisation, rejection of
// control/confusable characters, traversal segments, reserved Windows
// device names, and absolutisation against a trusted web root.
//
// Grounded on original_source/src/file/normalized_path.rs for the exact
// rule set; golang.org/x/text/unicode/norm supplies the NFC pass, the
// standard ecosystem choice also pulled in transitively across the
// examples pack.
package pathnorm

import (
	"errors"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidPath is returned for any path that fails sanitation.
var ErrInvalidPath = errors.New("pathnorm: invalid path")

const maxDecodeRounds = 10

// confusable slash/dot code points rejected outright (spec.md §4.M step 2).
var confusables = map[rune]bool{
	'∕': true, // DIVISION SLASH
	'⁄': true, // FRACTION SLASH
	'／': true, // FULLWIDTH SOLIDUS
	'⧸': true, // BIG SOLIDUS
	'﹨': true, // SMALL REVERSE SOLIDUS
	'．': true, // FULLWIDTH FULL STOP
	'。': true, // IDEOGRAPHIC FULL STOP
	'∙': true, // BULLET OPERATOR
	'⋅': true, // DOT OPERATOR
}

var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// NormalizedPath is the result of sanitising an untrusted URL path against
// a trusted web root (spec.md §3).
type NormalizedPath struct {
	WebRoot  string
	Path     string
	FullPath string
}

// New sanitises urlPath against webRoot (trusted, may be relative to cwd)
// and returns the resolved NormalizedPath, or ErrInvalidPath.
func New(webRoot, urlPath string) (*NormalizedPath, error) {
	decoded, err := repeatedlyDecode(urlPath)
	if err != nil {
		return nil, err
	}

	normalized := norm.NFC.String(decoded)
	if err := rejectDisallowedRunes(normalized); err != nil {
		return nil, err
	}

	collapsed := collapseSlashesAndBackslashes(normalized)

	cleanPath, err := sanitizeSegments(collapsed)
	if err != nil {
		return nil, err
	}

	absRoot := absolutiseWebRoot(webRoot)

	return &NormalizedPath{
		WebRoot:  absRoot,
		Path:     cleanPath,
		FullPath: filepath.Join(absRoot, filepath.FromSlash(cleanPath)),
	}, nil
}

// repeatedlyDecode percent-decodes p until it stops changing, up to
// maxDecodeRounds, failing if it never settles (spec.md §4.M step 1).
func repeatedlyDecode(p string) (string, error) {
	cur := p
	for i := 0; i < maxDecodeRounds; i++ {
		next, err := url.PathUnescape(cur)
		if err != nil {
			// Invalid escape sequence; treat the string as already final
			// rather than failing outright, matching common decoders'
			// leniency on stray '%' characters that aren't escapes.
			return cur, nil
		}
		if next == cur {
			return cur, nil
		}
		cur = next
	}
	return "", ErrInvalidPath
}

func rejectDisallowedRunes(s string) error {
	for _, r := range s {
		if r == 0 {
			return ErrInvalidPath
		}
		if unicode.Is(unicode.Cf, r) || unicode.Is(unicode.Cc, r) {
			return ErrInvalidPath
		}
		if confusables[r] {
			return ErrInvalidPath
		}
		if r < 0x20 {
			return ErrInvalidPath
		}
		if r == ':' {
			return ErrInvalidPath
		}
	}
	if strings.HasSuffix(s, ".") {
		return ErrInvalidPath
	}
	return nil
}

func collapseSlashesAndBackslashes(s string) string {
	s = strings.ReplaceAll(s, "\\", "")
	for strings.Contains(s, "//") {
		s = strings.ReplaceAll(s, "//", "/")
	}
	return s
}

func sanitizeSegments(s string) (string, error) {
	segments := strings.Split(s, "/")
	out := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if seg == "." || seg == ".." {
			return "", ErrInvalidPath
		}
		if reservedNames[strings.ToUpper(seg)] {
			return "", ErrInvalidPath
		}
		if strings.HasPrefix(seg, "~") || strings.HasSuffix(seg, "~") {
			return "", ErrInvalidPath
		}
		if strings.HasPrefix(seg, ".#") {
			return "", ErrInvalidPath
		}
		if strings.HasPrefix(seg, ".") && seg != ".well-known" {
			return "", ErrInvalidPath
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(out, "/"), nil
}

// absolutiseWebRoot resolves webRoot per spec.md §4.M step 6: "./X" =>
// cwd/X; a Unix-rooted path is absolute on all OSes; otherwise prepend cwd.
func absolutiseWebRoot(webRoot string) string {
	slashed := filepath.ToSlash(webRoot)
	if strings.HasPrefix(slashed, "/") {
		return filepath.FromSlash(path.Clean(slashed))
	}
	cwd, err := os.Getwd()
	if err != nil {
		return filepath.Clean(webRoot)
	}
	trimmed := strings.TrimPrefix(slashed, "./")
	return filepath.Join(cwd, filepath.FromSlash(trimmed))
}
