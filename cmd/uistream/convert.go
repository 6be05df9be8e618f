package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/history"
	"github.com/nstogner/uistream/pkg/stream"
	"github.com/nstogner/uistream/pkg/transport"
)

func newConvertCmd(a *app) *cobra.Command {
	var chunkSize int
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert JSONL producer chunks on stdin to an SSE UI message stream on stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("chunk-size") {
				chunkSize = a.cfg.Stream.ToolOutputChunkSize
			}
			coord, err := stream.New(
				stream.WithToolOutputChunkSize(chunkSize),
				stream.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}
			sink := transport.NewSSEWriter(cmd.OutOrStdout())
			return coord.Stream(cmd.Context(), stream.Decode(cmd.InOrStdin()), sink)
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "split tool output deltas into pieces of at most this many runes")
	return cmd
}

func newNormalizeCmd() *cobra.Command {
	var indent bool
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize a JSON array of stored messages on stdin into UIMessages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var msgs []domain.Message
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&msgs); err != nil {
				return fmt.Errorf("decoding messages: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if indent {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(history.Normalize(msgs))
		},
	}
	cmd.Flags().BoolVar(&indent, "indent", false, "indent the output")
	return cmd
}
