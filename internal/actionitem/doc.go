// Package actionitem defines the records that flow through the extraction
// pipeline: transcript chunks, action items, and the per-stage result
// envelopes.
//
// Items are values. A stage that changes an item copies it, sets the new
// field values and appends a Stamp naming itself, so the final record
// carries an audit trail of which stage wrote which field:
//
//	scored := item.WithConfidence(0.8, "confidence")
//	scored.Trail // [..., {Stage: "confidence", Field: "confidence"}]
//
// Coerce turns one untrusted JSON element (as returned by the text
// generation service) into an ActionItem, applying defaults and rejecting
// elements with missing or mistyped fields.
package actionitem
