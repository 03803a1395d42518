// Package protocol is the schema-driven BSON codec.
//
// Ownership boundary:
// - envelope settings (reserved name and sequence keys)
// - Encoder: native record -> BSON document
// - Decoder: BSON document -> message, sequence, native record
//
// Scalar conversions live in rules, the definition graph in schema and the
// native value model in value. Framing and channels are in frame and session.
package protocol
