package core

import (
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Face represents one embeddable catalog entry: a single printed card face
// together with its source image URL and pass-through catalog metadata.
// Faces are created in bulk when the catalog loads and are never mutated;
// they are persisted verbatim into the metadata output, one JSON object per
// retained face, in index order.
type Face struct {
	Name            string   `json:"name"`
	ScryfallID      string   `json:"scryfall_id"`
	FaceID          string   `json:"face_id"`
	Set             string   `json:"set"`
	CollectorNumber string   `json:"collector_number"`
	Frame           string   `json:"frame"`
	Layout          string   `json:"layout"`
	Lang            string   `json:"lang"`
	Colors          []string `json:"colors"`
	ImageURL        string   `json:"image_url"`
	CardURL         string   `json:"card_url"`
	ScryfallURI     string   `json:"scryfall_uri"`
}

// Key returns the face's checkpoint identity, derived from its FaceID.
func (f *Face) Key() ID {
	return IDFromContent(f.FaceID)
}
