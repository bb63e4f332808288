// Package payload decodes and encodes the fixed binary records carried inside
// response and command frames.
//
// All integers and floats are little-endian. String fields are fixed-width,
// null padded byte arrays; decoding never fails on invalid UTF-8. Records that
// exist in more than one layout carry an explicit version or schema tag instead
// of being guessed from their size at the call site.
package payload
