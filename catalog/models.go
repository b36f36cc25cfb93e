package catalog

// ImageURIs holds the image renditions the catalog offers for a card or a
// single face of a card.
type ImageURIs struct {
	PNG        string `json:"png"`
	Large      string `json:"large"`
	Normal     string `json:"normal"`
	Small      string `json:"small"`
	BorderCrop string `json:"border_crop"`
}

// CardFace is one printed face of a multi-faced card. Only faces that carry
// their own image renditions contribute records to the index.
type CardFace struct {
	Name      string     `json:"name"`
	ImageURIs *ImageURIs `json:"image_uris,omitempty"`
}

// Card is a single record from a bulk data file. Fields not needed for
// indexing or display are ignored during decoding.
type Card struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Set             string     `json:"set"`
	CollectorNumber string     `json:"collector_number"`
	Frame           string     `json:"frame"`
	Layout          string     `json:"layout"`
	Lang            string     `json:"lang"`
	Colors          []string   `json:"colors"`
	ScryfallURI     string     `json:"scryfall_uri"`
	ImageURIs       *ImageURIs `json:"image_uris,omitempty"`
	CardFaces       []CardFace `json:"card_faces,omitempty"`
}

// bulkEntry is one entry of the bulk data listing.
type bulkEntry struct {
	Type        string `json:"type"`
	DownloadURI string `json:"download_uri"`
}
