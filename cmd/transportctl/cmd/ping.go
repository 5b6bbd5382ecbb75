package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/strand-protocol/strand-transport/pkg/config"
	"github.com/strand-protocol/strand-transport/pkg/dispatch"
	"github.com/strand-protocol/strand-transport/pkg/driver/udp"
	"github.com/strand-protocol/strand-transport/pkg/transport"
)

var pingTimeout time.Duration
var pingPayload string

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Send one request to --target and report the round-trip time",
	RunE: func(cmd *cobra.Command, args []string) error {
		drv, err := udp.Listen(":0")
		if err != nil {
			return fmt.Errorf("open local socket: %w", err)
		}
		defer drv.Close()

		target, err := drv.ParseAddress(udpAddr)
		if err != nil {
			return fmt.Errorf("parse target %q: %w", udpAddr, err)
		}

		disp := dispatch.New(time.Millisecond)
		tr := transport.New(drv, config.Default(), nil, 0, disp, nil)
		defer tr.Close()

		type result struct {
			response []byte
			err      error
		}
		done := make(chan result, 1)
		start := time.Now()
		if _, err := tr.SendRequest(target, []byte(pingPayload), func(resp []byte, err error) {
			done <- result{resp, err}
		}); err != nil {
			return fmt.Errorf("send request: %w", err)
		}

		deadline := time.Now().Add(pingTimeout)
		for time.Now().Before(deadline) {
			disp.Tick()
			select {
			case r := <-done:
				if r.err != nil {
					return fmt.Errorf("ping failed: %w", r.err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reply from %s: %d bytes, time=%s\n", udpAddr, len(r.response), time.Since(start))
				return nil
			default:
			}
			time.Sleep(time.Millisecond)
		}
		return fmt.Errorf("ping to %s timed out after %s", udpAddr, pingTimeout)
	},
}

func init() {
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 5*time.Second, "how long to wait for a reply")
	pingCmd.Flags().StringVar(&pingPayload, "payload", "ping", "request payload to send")
	rootCmd.AddCommand(pingCmd)
}
