// Package assembler rebuilds device transmissions and authenticates them.
//
// A multi-frame transmission opens with a header frame (sequence 0) and
// closes with a final frame carrying the frame count and the cipher tag.
// When the transmission is encrypted, its first payload frame carries the
// IV. The assembler then runs one ACORN-128 instance keyed with the device
// shared secret, bound to the first 22 header bytes, and decrypts bytes
// [4:32] of every later frame through it.
//
// The cipher is sequential, so frames are consumed strictly in order: frame
// N is decrypted only once frame N-1 has been consumed. Frames arriving
// early are buffered undecrypted and drained when the gap fills. Nothing is
// surfaced until the final tag verifies.
//
// Self-contained messages (class 0x02) are handled by Single. They carry
// ciphertext and a truncated tag in one frame and are keyed with the device
// IV bookkeeping: the candidate IV is tried first, then the current IV, and
// the one that verifies becomes current.
//
// An Assembler is owned by a single worker and is not safe for concurrent
// use.
package assembler
