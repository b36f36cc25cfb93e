package builder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/poiesic/mtgindex/core"
)

// LoadMetadata reads the newline-delimited metadata rows written by the
// assembler, in index order.
func LoadMetadata(path string) ([]core.Face, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var faces []core.Face
	dec := json.NewDecoder(f)
	for {
		var face core.Face
		if err := dec.Decode(&face); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("metadata row %d: %w", len(faces), err)
		}
		faces = append(faces, face)
	}
	return faces, nil
}
