// Package sink provides the engine's output adapters. Each implements
// engine.Output.
//
// Log writes every state to the structured log at debug level. Speech
// announces collapse transitions through Amazon Polly and stores each clip
// as an mp3 file; synthesis runs on its own goroutine so a slow network call
// never holds up a tick.
package sink
