package catalog

import (
	"fmt"

	"github.com/poiesic/mtgindex/core"
)

// pickImageURL returns the best rendition for embedding.
// Prefer higher-res sources for better embedding accuracy.
func pickImageURL(uris *ImageURIs) string {
	if uris == nil {
		return ""
	}
	for _, u := range []string{uris.PNG, uris.Large, uris.Normal, uris.Small, uris.BorderCrop} {
		if u != "" {
			return u
		}
	}
	return ""
}

// Faces flattens cards into one record per usable image. A card with
// top-level image renditions contributes one face keyed by the card id; each
// printed face carrying its own renditions contributes a face keyed by
// "<card id>:face:<i>", its name falling back to the card name. Cards with no
// usable image URL are skipped.
func Faces(cards []Card) []core.Face {
	faces := make([]core.Face, 0, len(cards))
	for _, card := range cards {
		if url := pickImageURL(card.ImageURIs); url != "" {
			faces = append(faces, newFace(card, card.Name, card.ID, url))
		}

		for i, f := range card.CardFaces {
			url := pickImageURL(f.ImageURIs)
			if url == "" {
				continue
			}
			name := f.Name
			if name == "" {
				name = card.Name
			}
			faceID := fmt.Sprintf("%s:face:%d", card.ID, i)
			faces = append(faces, newFace(card, name, faceID, url))
		}
	}
	return faces
}

func newFace(card Card, name, faceID, imageURL string) core.Face {
	return core.Face{
		Name:            name,
		ScryfallID:      card.ID,
		FaceID:          faceID,
		Set:             card.Set,
		CollectorNumber: card.CollectorNumber,
		Frame:           card.Frame,
		Layout:          card.Layout,
		Lang:            card.Lang,
		Colors:          card.Colors,
		ImageURL:        imageURL, // used for embedding (full card)
		CardURL:         imageURL, // used for display
		ScryfallURI:     card.ScryfallURI,
	}
}
