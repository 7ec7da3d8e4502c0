package pipeline

import (
	"sync"

	"github.com/minios-linux/mdxlate/langmeta"
)

// Counts tallies unit outcomes.
type Counts struct {
	Translated int
	Cached     int
	Skipped    int
	Failed     int
}

// Attempted returns the number of units that were not skipped.
func (c Counts) Attempted() int {
	return c.Translated + c.Cached + c.Failed
}

func (c *Counts) add(s Status) {
	switch s {
	case Written:
		c.Translated++
	case CacheHit:
		c.Cached++
	case DryRunSkipped:
		c.Skipped++
	case Failed:
		c.Failed++
	}
}

// Summary aggregates the results of a run.
type Summary struct {
	mu sync.Mutex

	// Languages lists the target codes in run order.
	Languages []string
	// ByLang holds the counts of each language.
	ByLang map[string]*Counts
	// Total holds the counts over all languages.
	Total Counts
	// Results lists every finished unit in completion order.
	Results []Result
}

func newSummary(langs []langmeta.Meta) *Summary {
	s := &Summary{ByLang: make(map[string]*Counts, len(langs))}
	for _, l := range langs {
		s.Languages = append(s.Languages, l.Code)
		s.ByLang[l.Code] = &Counts{}
	}
	return s
}

func (s *Summary) add(r Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.ByLang[r.Lang]
	if !ok {
		c = &Counts{}
		s.ByLang[r.Lang] = c
		s.Languages = append(s.Languages, r.Lang)
	}
	c.add(r.Status)
	s.Total.add(r.Status)
	s.Results = append(s.Results, r)
}

// AllFailed reports whether at least one unit was attempted and every
// attempted unit failed.
func (s *Summary) AllFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.Total.Attempted()
	return n > 0 && s.Total.Failed == n
}

// Failures returns the failed results.
func (s *Summary) Failures() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Result
	for _, r := range s.Results {
		if r.Status == Failed {
			out = append(out, r)
		}
	}
	return out
}
