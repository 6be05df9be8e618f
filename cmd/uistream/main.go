// Command uistream serves agent runs as Vercel AI SDK UI message streams and
// provides tools around the stream format.
//
// Usage:
//
//	uistream serve                      # HTTP API on :5001
//	uistream chat                       # terminal client for a running server
//	uistream convert < chunks.jsonl     # producer chunks to an SSE body
//	uistream normalize < messages.json  # stored messages to UIMessages
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
