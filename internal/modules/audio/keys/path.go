package keys

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

type Kind string

const (
	KindWord     Kind = "word"
	KindSentence Kind = "sentence"
	KindMnemonic Kind = "mnemonic"
)

const (
	GlobalPrefix     = "global/dictionary/"
	ContextualPrefix = "content/"

	audioExt          = ".mp3"
	maxContextualSlug = 30
	hashPrefixLen     = 8
	defaultCategory   = "general"
)

var (
	nonSlugChars = regexp.MustCompile(`[^\w\s-]`)
	slugSepRuns  = regexp.MustCompile(`[-\s]+`)
)

// Slugify lowercases text, folds accented letters to ASCII and joins the
// remaining words with single hyphens.
func Slugify(text string) string {
	s := strings.ToLower(text)
	fold := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	if folded, _, err := transform.String(fold, s); err == nil {
		s = folded
	}
	s = nonSlugChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = slugSepRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// NormalizeKind maps an empty kind to KindWord and lowercases the rest.
func NormalizeKind(kind Kind) Kind {
	k := Kind(strings.ToLower(strings.TrimSpace(string(kind))))
	if k == "" {
		return KindWord
	}
	return k
}

// IsSingleToken reports whether text is exactly one whitespace-separated token.
func IsSingleToken(text string) bool {
	return len(strings.Fields(text)) == 1
}

// ResolvePath maps content to its storage key. Single words share one global
// dictionary object across every lesson; everything else lives under its
// lesson category and level with a hash suffix.
func ResolvePath(text, identity string, kind Kind, category string, level int) string {
	kind = NormalizeKind(kind)
	slug := Slugify(text)
	if kind == KindWord && IsSingleToken(text) {
		return globalKey(slug)
	}

	cat := Slugify(category)
	if cat == "" {
		cat = defaultCategory
	}
	short := slug
	if len(short) > maxContextualSlug {
		short = short[:maxContextualSlug]
	}
	prefix := identity
	if len(prefix) > hashPrefixLen {
		prefix = prefix[:hashPrefixLen]
	}
	kindSlug := Slugify(string(kind))
	if kindSlug == "" {
		kindSlug = string(KindWord)
	}
	return fmt.Sprintf("%s%s/level_%d/%s/%s_%s%s", ContextualPrefix, cat, level, kindSlug, short, prefix, audioExt)
}

// DeriveGlobalKey returns the dictionary key text would occupy, or false when
// text is not a single word. The language does not take part in the key.
func DeriveGlobalKey(text, language string) (string, bool) {
	if !IsSingleToken(text) {
		return "", false
	}
	return globalKey(Slugify(text)), true
}

// IsGlobalKey reports whether key lives in the shared dictionary key-space.
func IsGlobalKey(key string) bool {
	return strings.HasPrefix(key, GlobalPrefix)
}

func globalKey(slug string) string {
	initial := "0"
	if slug != "" {
		initial = slug[:1]
	}
	return GlobalPrefix + initial + "/" + slug + audioExt
}
