package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/SachioKuro/mqs/internal/codec"
	"github.com/SachioKuro/mqs/internal/protocol"
	"github.com/SachioKuro/mqs/internal/queue"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <queue> <payload>",
	Short: "Append a payload to one queue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *queue.QueueClient) error {
			if err := c.Enqueue(ctx, args[0], parsePayload(args[1])); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued to %s\n", args[0])
			return nil
		})
	},
}

var enqueueAnyCmd = &cobra.Command{
	Use:   "enqueue-any <payload>",
	Short: "Append a payload to every existing queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *queue.QueueClient) error {
			delivered, err := c.EnqueueAny(ctx, parsePayload(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "delivered to %d queue(s)\n", delivered)
			return nil
		})
	},
}

var readAllCmd = &cobra.Command{
	Use:   "read-all",
	Short: "Drain every queue and print the messages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *queue.QueueClient) error {
			entries, err := c.ReadAll(ctx)
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		})
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain <queue>",
	Short: "Drain one queue and print its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *queue.QueueClient) error {
			entries, err := c.Drain(ctx, args[0])
			if err != nil {
				return err
			}
			return printEntries(cmd.OutOrStdout(), entries)
		})
	},
}

func withClient(cmd *cobra.Command, fn func(context.Context, *queue.QueueClient) error) error {
	client, err := queue.NewQueueClient(brokerAddr)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	return fn(ctx, client)
}

// parsePayload keeps valid JSON as-is and wraps anything else as a string.
func parsePayload(arg string) any {
	if json.Valid([]byte(arg)) {
		return json.RawMessage(arg)
	}
	return arg
}

func printEntries(w io.Writer, entries []protocol.Entry) error {
	if jsonOutput {
		enc := codec.NewEncoder(w)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Queue", "Payload"})
	for i, e := range entries {
		t.AppendRow(table.Row{i + 1, e.Queue, string(e.Payload)})
	}
	t.AppendFooter(table.Row{"", "Total", len(entries)})
	t.Render()
	return nil
}
