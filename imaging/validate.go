package imaging

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	// Decoders for every format the cache may hold.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// Stage identifies which validation stage rejected a file.
type Stage int

const (
	// StageStat covers existence and size checks.
	StageStat Stage = iota + 1
	// StageStructure covers the header parse without pixel decode.
	StageStructure
	// StageDecode covers the full pixel decode.
	StageDecode
)

func (s Stage) String() string {
	switch s {
	case StageStat:
		return "stat"
	case StageStructure:
		return "structure"
	case StageDecode:
		return "decode"
	}
	return "unknown"
}

// ValidationError reports why a cached file cannot be trusted as an image.
// Per-file validation failures are recorded and excluded from the pipeline;
// they are never retried automatically.
type ValidationError struct {
	Path   string
	Stage  Stage
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s", e.Path, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate confirms the file at path is a structurally valid, fully
// decodable image. Returns nil when valid, a *ValidationError otherwise.
// Missing and empty files fail without an open; the structural stage
// catches non-image payloads cheaply; the decode stage is mandatory because
// some corrupt payloads pass header checks but fail pixel decode. The check
// only reads the file and may be re-run at any time.
func Validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &ValidationError{Path: path, Stage: StageStat, Reason: "file does not exist", Err: err}
	}
	if info.Size() == 0 {
		return &ValidationError{Path: path, Stage: StageStat, Reason: "file is empty (0 bytes)"}
	}

	f, err := os.Open(path)
	if err != nil {
		return &ValidationError{Path: path, Stage: StageStat, Reason: "file cannot be opened", Err: err}
	}
	defer f.Close()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return &ValidationError{
			Path:   path,
			Stage:  StageStructure,
			Reason: "not a valid image format (may be HTML error page)",
			Err:    err,
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return &ValidationError{Path: path, Stage: StageDecode, Reason: "file cannot be rewound", Err: err}
	}

	if _, _, err := image.Decode(f); err != nil {
		return &ValidationError{
			Path:   path,
			Stage:  StageDecode,
			Reason: fmt.Sprintf("corrupted or truncated file: %v", err),
			Err:    err,
		}
	}

	return nil
}

// FailureDetail names one invalid cache file.
type FailureDetail struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report summarizes a cache directory audit.
type Report struct {
	Total    int             `json:"total"`
	Valid    int             `json:"valid"`
	Invalid  int             `json:"invalid"`
	Failures []FailureDetail `json:"failures"`
}

// ValidateDirectory runs Validate over every image file directly under dir.
// Non-image names and subdirectories are skipped; a missing directory
// yields an empty report.
func ValidateDirectory(dir string) (*Report, error) {
	report := &Report{Failures: []FailureDetail{}}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return nil, fmt.Errorf("reading cache directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isImageName(entry.Name()) {
			continue
		}
		report.Total++

		if err := Validate(filepath.Join(dir, entry.Name())); err != nil {
			report.Invalid++
			reason := err.Error()
			var verr *ValidationError
			if errors.As(err, &verr) {
				reason = verr.Reason
			}
			report.Failures = append(report.Failures, FailureDetail{Path: entry.Name(), Reason: reason})
			continue
		}
		report.Valid++
	}

	return report, nil
}

// isImageName matches the extensions the cache stores.
func isImageName(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp":
		return true
	}
	return false
}
