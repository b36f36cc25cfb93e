// Package catalog reads card records from the catalog's bulk data API.
//
// The Client resolves a bulk data kind to its download URI, streams the bulk
// JSON array (gunzipping when needed) without holding the whole file in
// memory, and flattens cards into embeddable faces:
//   - Discovering the download URI for a bulk kind
//   - Streaming and decoding card records, optionally capped at a limit
//   - Extracting one face per usable image URL
//
// All transport goes through the retrying fetch client.
package catalog
