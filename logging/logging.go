// SPDX-License-Identifier: Apache-2.0

// Package logging wires the engine's structured logging facade. Every
// component logs through the same *logiface.Logger[*stumpy.Event] instance
// rather than calling fmt or the log stdlib package directly, so that log
// output stays uniform JSON regardless of which component emitted it.
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete event type used throughout the engine.
type Logger = logiface.Logger[*stumpy.Event]

// L is the process-wide logger. It defaults to writing leveled JSON events
// to stderr at info level; callers that need a different sink or level call
// Configure before the engine starts stepping.
var L = New(os.Stderr, logiface.LevelInformational)

// New constructs a logger writing stumpy-encoded JSON events to w at or
// above the given level. cmd/stflow installs one through Configure, using
// the level resolved from config.Config.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(),
		stumpy.L.WithWriter(w),
		stumpy.L.WithLevel(level),
	)
}

// Configure replaces the process-wide logger. It is not safe to call once
// the engine has begun stepping, mirroring the single-threaded, cooperative
// scheduling model of the engine as a whole (§5): there is exactly one
// "owner" of mutable shared state at any time.
func Configure(w io.Writer, level logiface.Level) {
	L = New(w, level)
}
