package filter

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/osa030/rhythmbot/internal/domain/media"
)

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*[\(\[]official\s+(music\s+)?(video|audio)[\)\]]`), // "(Official Video)"
		regexp.MustCompile(`\s*[\(\[](lyrics?|lyric\s+video)[\)\]]`),             // "[Lyrics]"
		regexp.MustCompile(`\s*\(.*?version\)`),                                  // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),                                     // "(Radio Edit)"
		regexp.MustCompile(`\s*\(live\)`),                                        // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),                               // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`),                           // "- Single Version"
	}
	spaces = regexp.MustCompile(`\s+`)
)

// DuplicateEntryFilter checks for duplicate entries in the queue.
// Detects:
// - Exact reference matches
// - Remasters and uploads of the same song (normalized title + same artist)
// Excludes:
// - Covers (same title but different artist)
type DuplicateEntryFilter struct {
	queue QueueReader
}

// NewDuplicateEntryFilter creates a new duplicate entry filter.
func NewDuplicateEntryFilter(queue QueueReader) *DuplicateEntryFilter {
	return &DuplicateEntryFilter{
		queue: queue,
	}
}

// Name returns the filter name.
func (f *DuplicateEntryFilter) Name() string {
	return "duplicate_entry"
}

// Description returns the filter description.
func (f *DuplicateEntryFilter) Description() string {
	return "Rejects entries already in the queue, including remasters. Covers are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateEntryFilter) ReturnCodes() []string {
	return []string{"duplicate_entry"}
}

// AppliesTo applies to every origin, so autofill does not queue a song twice either.
func (f *DuplicateEntryFilter) AppliesTo(origin Origin) bool {
	return true
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateEntryFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the entry is a duplicate.
func (f *DuplicateEntryFilter) Check(ctx context.Context, req Request) Result {
	if req.Entry == nil || f.queue == nil {
		return Accept()
	}

	for _, queued := range f.queue.Entries() {
		if queued.Reference == req.Entry.Reference || isSameSong(queued, req.Entry) {
			return Reject("duplicate_entry",
				fmt.Sprintf("\"%s\" is already in the queue", req.Entry.DisplayName))
		}
	}

	return Accept()
}

// isSameSong checks if two entries are the same song in a different version.
func isSameSong(a, b *media.Entry) bool {
	if normalizeTitle(a.DisplayName) != normalizeTitle(b.DisplayName) {
		return false
	}
	// Same normalized name - different artists means a cover
	return isSameArtist(a, b)
}

// normalizeTitle removes remaster information and version details.
func normalizeTitle(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = spaces.ReplaceAllString(normalized, " ")

	// Remove trailing dashes
	return strings.TrimRight(normalized, " -")
}

// isSameArtist compares artists case-insensitively. Unknown artists never match.
func isSameArtist(a, b *media.Entry) bool {
	if a.Artist == "" || b.Artist == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(a.Artist), strings.TrimSpace(b.Artist))
}

func init() {
	Register("duplicate_entry", func(q QueueReader) Filter {
		return NewDuplicateEntryFilter(q)
	})
}
