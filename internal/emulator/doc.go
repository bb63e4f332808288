// Package emulator implements a firmware-like plant monitor that answers
// command frames the way the device does, and a bridge that exposes it over a
// websocket so host tools can be exercised without hardware.
package emulator
