package ingestion

import "strings"

// Deduplicator tracks the emails already accepted within one job so later
// occurrences in the same file are rejected. Matching is case-insensitive;
// the first occurrence always wins. Duplicates against contacts persisted by
// earlier jobs are caught separately via the store lookup.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator creates an empty in-job dedup set.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Seen reports whether the email was already accepted in this job.
func (d *Deduplicator) Seen(email string) bool {
	_, ok := d.seen[normalizeEmail(email)]
	return ok
}

// Mark records the email as accepted.
func (d *Deduplicator) Mark(email string) {
	d.seen[normalizeEmail(email)] = struct{}{}
}
