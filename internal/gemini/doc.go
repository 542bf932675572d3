// Package gemini owns the wire contract for one Gemini exchange.
//
// Ownership boundary:
// - request line framing (CRLF within 1024 bytes)
// - absolute URL validation
// - status taxonomy and response serialization
//
// One request per connection. Nothing here touches the filesystem.
package gemini
