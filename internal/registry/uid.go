package registry

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// uidGenerator creates stable-ish project identifiers from display names and
// resolves collisions. A generated id has the shape "<slug>-<hash>" (or
// "<slug>-<hash>-N" when the same name is allocated again). Not threadsafe;
// the store serializes access.
type uidGenerator struct {
	used    map[string]struct{}
	counter map[string]int
}

func newUIDGenerator() *uidGenerator {
	return &uidGenerator{
		used:    make(map[string]struct{}, 8),
		counter: make(map[string]int, 8),
	}
}

func (g *uidGenerator) generate(name string) string {
	base := baseUID(name)
	if _, ok := g.used[base]; !ok {
		g.used[base] = struct{}{}
		g.counter[base] = 1
		return base
	}
	n := g.counter[base]
	for {
		n++
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, exists := g.used[candidate]; exists {
			continue
		}
		g.used[candidate] = struct{}{}
		g.counter[base] = n
		return candidate
	}
}

func (g *uidGenerator) reserve(id string) {
	id = strings.TrimSpace(id)
	if id != "" {
		g.used[id] = struct{}{}
	}
}

func baseUID(name string) string {
	name = strings.TrimSpace(name)
	slug := slugifyASCII(name)
	if slug == "" {
		slug = "project"
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return fmt.Sprintf("%s-%08x", slug, uint32(h.Sum64()&0xffffffff))
}

func slugifyASCII(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
