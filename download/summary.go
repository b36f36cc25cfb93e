package download

import (
	"fmt"
	"io"

	"github.com/poiesic/mtgindex/progress"
)

// Outcome classifies how one record ended a run.
type Outcome int

const (
	// OutcomeCached means the cache already held the image.
	OutcomeCached Outcome = iota

	// OutcomeDownloaded means the image was fetched and cached this run.
	OutcomeDownloaded

	// OutcomeFailed means every attempt failed; the record has no usable
	// cache entry.
	OutcomeFailed
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case OutcomeCached:
		return "cached"
	case OutcomeDownloaded:
		return "downloaded"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// maxFailureDetails bounds the failure list carried by a Summary. Failures
// past the bound are counted but not described, keeping memory flat when the
// source melts down.
const maxFailureDetails = 256

// Failure describes one record that could not be cached.
type Failure struct {
	Name   string
	FaceID string
	URL    string
	Err    error
}

// Summary is the disjoint outcome partition of one run:
// Total == Cached + Downloaded + Failed.
type Summary struct {
	Total      int
	Cached     int
	Downloaded int
	Failed     int

	// Failures holds details for the first maxFailureDetails failed
	// records; the remainder is only counted in Failed.
	Failures []Failure
}

func (s *Summary) addFailure(f Failure) {
	if len(s.Failures) < maxFailureDetails {
		s.Failures = append(s.Failures, f)
	}
}

// Succeeded returns the number of records with a usable cache entry.
func (s *Summary) Succeeded() int {
	return s.Cached + s.Downloaded
}

// Print writes the human-readable run report.
func (s *Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "\n=== Download Summary ===\n")
	fmt.Fprintf(w, "Total faces: %d\n", s.Total)
	fmt.Fprintf(w, "Already cached: %d\n", s.Cached)
	fmt.Fprintf(w, "Downloaded: %d\n", s.Downloaded)
	fmt.Fprintf(w, "Failed: %d (%s)\n", s.Failed, progress.Percentage(s.Failed, s.Total))

	if s.Failed > 0 {
		fmt.Fprintf(w, "\nFailed downloads:\n")
		shown := s.Failures
		if len(shown) > 10 {
			shown = shown[:10] // Show first 10
		}
		for _, f := range shown {
			fmt.Fprintf(w, "  - %s (%s)\n", f.Name, f.FaceID)
			fmt.Fprintf(w, "    Error: %v\n", f.Err)
		}
		if s.Failed > len(shown) {
			fmt.Fprintf(w, "  ... and %d more failures\n", s.Failed-len(shown))
		}
	}

	fmt.Fprintf(w, "Success rate: %s\n", progress.Percentage(s.Succeeded(), s.Total))
}
