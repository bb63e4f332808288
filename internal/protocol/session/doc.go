// Package session owns the host side of one connected device link.
//
// Ownership boundary:
// - sequence counter and single-slot response mailbox
// - send-and-await with per-command timeout
// - response decoding keyed by the command that was sent
// - retry/backoff policy used by connect and command callers
//
// A Session allows one outstanding command. The response to that command is, by
// protocol discipline, the next notification the transport delivers; anything
// delivered while no command is outstanding is dropped.
package session
