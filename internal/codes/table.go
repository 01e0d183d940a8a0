// Package codes maps canonical puzzle codes to narrative records and
// extracts codes from free-form text.
package codes

import (
	"fmt"

	"github.com/ashureev/kiroku/internal/domain"
	"github.com/ashureev/kiroku/internal/textnorm"
)

type entry struct {
	record *domain.Record
	alias  string
}

// Table is an immutable code lookup table. Aliases are validated at
// construction to point at a direct record, so resolution never chains.
type Table struct {
	entries map[string]entry
}

// Build constructs a table from records and aliases. Each record is
// registered under its canonical key and the hyphen-free variant.
// An alias targeting a missing record or another alias is rejected.
func Build(records []domain.Record, aliases map[string]string) (*Table, error) {
	t := &Table{entries: make(map[string]entry)}

	for i := range records {
		rec := records[i]
		key := textnorm.NormalizeStrict(rec.Code).MatchKey
		if key == "" {
			return nil, fmt.Errorf("record %q: empty canonical key", rec.Code)
		}
		if _, dup := t.entries[key]; dup {
			return nil, fmt.Errorf("record %q: duplicate key %q", rec.Code, key)
		}
		t.entries[key] = entry{record: &rec}

		noSep := textnorm.NormalizeStrict(rec.Code).MatchKeyNoSeparator
		if noSep != key {
			if _, dup := t.entries[noSep]; dup {
				return nil, fmt.Errorf("record %q: duplicate key %q", rec.Code, noSep)
			}
			t.entries[noSep] = entry{record: &rec}
		}
	}

	for from, to := range aliases {
		fromKey := textnorm.NormalizeStrict(from).MatchKey
		toKey := textnorm.NormalizeStrict(to).MatchKey
		target, ok := t.entries[toKey]
		if !ok || target.record == nil {
			return nil, fmt.Errorf("alias %q: target %q is not a direct record", from, to)
		}
		if _, dup := t.entries[fromKey]; dup {
			return nil, fmt.Errorf("alias %q: key %q already registered", from, fromKey)
		}
		t.entries[fromKey] = entry{alias: toKey}
	}

	return t, nil
}

// Resolve looks up an already-normalized key, following at most one
// alias indirection. Returns nil when the key does not resolve to a
// direct record.
func (t *Table) Resolve(key string) *domain.Record {
	e, ok := t.entries[key]
	if !ok {
		return nil
	}
	if e.alias != "" {
		target, ok := t.entries[e.alias]
		if !ok || target.record == nil {
			return nil
		}
		return target.record
	}
	return e.record
}

// ResolveInput resolves raw user text: the strict match key is tried
// first, then the no-separator variant. First hit wins.
func (t *Table) ResolveInput(text string) *domain.Record {
	k := textnorm.NormalizeStrict(text)
	if k.MatchKey == "" {
		return nil
	}
	if rec := t.Resolve(k.MatchKey); rec != nil {
		return rec
	}
	if k.MatchKeyNoSeparator != k.MatchKey {
		return t.Resolve(k.MatchKeyNoSeparator)
	}
	return nil
}
