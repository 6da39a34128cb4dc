package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/mtzanidakis/storecrew/internal/natsbus"
)

func newWatchCmd() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print pipeline events published by run or serve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := natsbus.NewClientFromURL(url)
			if err != nil {
				return err
			}
			defer client.Close()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			sub, err := client.Subscribe(natsbus.TopicEventsPipeline, func(msg *nats.Msg) {
				ev, err := natsbus.DecodeEvent(msg.Data)
				if err != nil {
					slog.Warn("skipping malformed event", "subject", msg.Subject, "error", err)
					return
				}
				mu.Lock()
				defer mu.Unlock()
				writeEvent(out, ev)
			})
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer func() { _ = sub.Unsubscribe() }()

			slog.Info("watching pipeline events", "url", url)
			<-cmd.Context().Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", nats.DefaultURL, "NATS server URL")
	return cmd
}

func writeEvent(w io.Writer, ev natsbus.Event) {
	line := fmt.Sprintf("%s  %-16s  run=%s", ev.Timestamp, ev.Type, ev.RunID)
	if len(ev.Data) > 0 {
		if data, err := json.Marshal(ev.Data); err == nil {
			line += "  " + string(data)
		}
	}
	fmt.Fprintln(w, line)
}
