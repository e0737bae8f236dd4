// Package transport frames byte streams for pkg/remote.
//
// Every message travels as one frame: a 4-byte big-endian payload length
// followed by the payload. Frames are bounded by a maximum size so a
// corrupt length cannot make the reader allocate arbitrary memory. Frame
// readers and writers can report every frame to a log.Logger.
package transport
