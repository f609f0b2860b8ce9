// Package geminilive connects voice sessions directly to the Gemini Live
// API over the official genai SDK. It adapts the SDK's bidirectional
// stream to the transport contract in pkg/core/live.
package geminilive
