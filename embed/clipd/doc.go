// Package clipd implements embed.ImageEmbedder against a CLIP sidecar
// service speaking a small JSON protocol:
//
//   - GET  /api/model  returns the served model id and vector dimension
//   - POST /api/embed  embeds a batch of base64 PNG images
//   - GET  /health     liveness probe
//
// The model info is queried once at construction; a mismatch with the
// configured model is a construction error, not a runtime surprise.
package clipd
