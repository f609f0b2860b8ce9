// Package live implements the realtime voice-session engine: the session
// state machine that owns one streaming connection to a speech model, the
// capture pipeline pumping microphone frames into it, the gapless playback
// scheduler for the model's streamed reply audio, and the per-turn
// transcript accumulator.
//
// The package defines the interfaces it consumes (Transport, Source, Sink,
// EventSink); concrete implementations live under pkg/transport, pkg/audio
// and pkg/eventlog.
package live
