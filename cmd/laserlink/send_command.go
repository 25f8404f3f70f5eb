package main

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"laserlink/internal/serialport"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	var expect string
	var collect bool
	var capture bool
	var verbose bool
	cmd := &cobra.Command{
		Use:   "send <port> <text>",
		Short: "Write one line to a serial port and print the reply",
		Long: "Write text (CRLF appended) to a serial port and wait for the reply frame.\n" +
			"With --collect or --expect every line is gathered until the expected line\n" +
			"arrived and the port went quiet.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			var pattern *regexp.Regexp
			if strings.TrimSpace(expect) != "" {
				pattern, err = regexp.Compile(expect)
				if err != nil {
					return fmt.Errorf("--expect: %w", err)
				}
			}
			link, settings, err := openBenchLink(cmd.Context(), cfg, benchLinkOptions{
				Port:    args[0],
				Capture: capture,
				Logger:  toolLogger(verbose),
			})
			if err != nil {
				return err
			}
			defer link.Close()

			if timeout <= 0 {
				timeout = settings.LaserTimeout
			}
			stdout := cmd.OutOrStdout()
			if collect || pattern != nil {
				result, err := link.Collect(cmd.Context(), args[1], serialport.CollectOptions{
					Timeout: timeout,
					Expect:  pattern,
					Clear:   true,
					Tag:     "send",
				})
				if err != nil {
					return err
				}
				return printCollect(stdout, result, pattern != nil)
			}

			resp, err := link.Exchange(cmd.Context(), args[1], serialport.ExchangeOptions{
				ReceiveOptions: serialport.ReceiveOptions{Timeout: timeout, Tag: "send"},
				Clear:          true,
			})
			return printResponse(stdout, resp, err)
		},
	}
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Reply timeout (default timeouts.laser_tx_sec)")
	cmd.Flags().StringVar(&expect, "expect", "", "Regular expression the reply must match (implies --collect)")
	cmd.Flags().BoolVar(&collect, "collect", false, "Print every line received until the port goes quiet")
	cmd.Flags().BoolVar(&capture, "capture", false, "Write raw .bin/.hex captures to paths.capture_dir")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log serial traffic to stderr")
	return cmd
}

func printResponse(stdout io.Writer, resp serialport.Response, err error) error {
	switch {
	case errors.Is(err, serialport.ErrNoResponse):
		fmt.Fprintln(stdout, serialport.NoResponseText)
		return err
	case errors.Is(err, serialport.ErrIncomplete):
		fmt.Fprintln(stdout, resp.Text)
		return fmt.Errorf("reply incomplete after %s: %w", resp.Elapsed.Round(time.Millisecond), err)
	case err != nil:
		return err
	}
	fmt.Fprintln(stdout, resp.Text)
	for _, line := range resp.Tail {
		fmt.Fprintf(stdout, "(tail) %s\n", line.Text)
	}
	return nil
}

func printCollect(stdout io.Writer, result serialport.CollectResult, expected bool) error {
	if len(result.Lines) == 0 {
		fmt.Fprintln(stdout, serialport.NoResponseText)
		return serialport.ErrNoResponse
	}
	for _, line := range result.Lines {
		fmt.Fprintln(stdout, line.Text)
	}
	if expected && !result.OK {
		return errors.New("expected reply not received")
	}
	return nil
}
