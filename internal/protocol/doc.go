// Package protocol groups the plant monitor wire contract.
//
// Layers, bottom up:
//   - schema: command identifiers, status codes and the payload each
//     command returns
//   - frame: command and response headers
//   - payload: fixed-layout records carried in frame payloads
//   - session: one outstanding command at a time over a notification link
package protocol
