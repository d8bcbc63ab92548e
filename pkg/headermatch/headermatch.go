// Package headermatch resolves loosely spelled spreadsheet column names
// ("Nivel Jerarquico", "NIVEL JERÁRQUICO", "Nivel jerárq.") to canonical ones.
package headermatch

import (
	"sort"
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// minFuzzyLen keeps very short names out of subsequence matching, where
// almost anything would match.
const minFuzzyLen = 4

// Fold lowercases s and strips diacritics.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Normalize folds s and keeps only letters and digits.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range Fold(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Resolve returns the header entry matching one of candidates, or false.
func Resolve(header []string, candidates []string) (string, bool) {
	m := New(header)
	if i, ok := m.Exact(candidates); ok {
		return header[i], true
	}
	if i, ok := m.Fuzzy(candidates); ok {
		return header[i], true
	}
	return "", false
}

// Matcher resolves several column groups against one header row, never handing
// the same header cell to two groups.
type Matcher struct {
	header []string
	norm   []string
	used   map[int]struct{}
}

func New(header []string) *Matcher {
	m := &Matcher{
		header: header,
		norm:   make([]string, len(header)),
		used:   make(map[int]struct{}, len(header)),
	}
	for i, h := range header {
		m.norm[i] = Normalize(h)
	}
	return m
}

// Exact claims the first unused header equal to a candidate after normalization.
func (m *Matcher) Exact(candidates []string) (int, bool) {
	for _, c := range candidates {
		nc := Normalize(c)
		if nc == "" {
			continue
		}
		for i, h := range m.norm {
			if _, taken := m.used[i]; taken {
				continue
			}
			if h == nc {
				m.used[i] = struct{}{}
				return i, true
			}
		}
	}
	return -1, false
}

// Fuzzy claims the closest unused header that either contains a candidate as a
// subsequence or abbreviates one.
func (m *Matcher) Fuzzy(candidates []string) (int, bool) {
	free := make([]string, 0, len(m.norm))
	freeIdx := make([]int, 0, len(m.norm))
	for i, h := range m.norm {
		if _, taken := m.used[i]; taken || h == "" {
			continue
		}
		free = append(free, h)
		freeIdx = append(freeIdx, i)
	}
	if len(free) == 0 {
		return -1, false
	}

	best, bestDist := -1, -1
	consider := func(idx, dist int) {
		if best == -1 || dist < bestDist {
			best, bestDist = idx, dist
		}
	}
	for _, c := range candidates {
		nc := Normalize(c)
		if len(nc) < minFuzzyLen {
			continue
		}
		ranks := fuzzy.RankFind(nc, free)
		sort.Sort(ranks)
		for _, r := range ranks {
			consider(freeIdx[r.OriginalIndex], r.Distance)
		}
		for j, h := range free {
			if len(h) < minFuzzyLen || len(h)*2 < len(nc) {
				continue
			}
			if fuzzy.Match(h, nc) {
				consider(freeIdx[j], fuzzy.LevenshteinDistance(h, nc))
			}
		}
	}
	if best == -1 {
		return -1, false
	}
	m.used[best] = struct{}{}
	return best, true
}

// Header returns the original header text at i.
func (m *Matcher) Header(i int) string {
	return m.header[i]
}
