package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"laserlink/internal/bridge"
	"laserlink/internal/config"
	"laserlink/internal/serialport"
	"laserlink/internal/simulator"
)

type simulateFlags struct {
	scenario    string
	trigger     string
	delay       time.Duration
	stepTimeout time.Duration
	verbose     bool
}

func (f *simulateFlags) register(cmd *cobra.Command, laser bool, sfc bool) {
	cmd.Flags().StringVar(&f.scenario, "scenario", "", "Response pool: pass or fail (default simulator.scenario)")
	if laser {
		cmd.Flags().StringVar(&f.trigger, "trigger", "", "Trigger line the laser sends (default "+simulator.TriggerLine+")")
		cmd.Flags().DurationVar(&f.stepTimeout, "step-timeout", 0, "Maximum wait for each SFC reply (default simulator.step_timeout_sec)")
	}
	if sfc {
		cmd.Flags().DurationVar(&f.delay, "delay", -1, "Delay before each SFC reply (default simulator.response_delay_ms)")
	}
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Log simulator traffic to stderr")
}

func (f *simulateFlags) resolve(cfg *config.Config) (simulator.Scenario, time.Duration, time.Duration, error) {
	value := f.scenario
	if strings.TrimSpace(value) == "" {
		value = cfg.Simulator.Scenario
	}
	scenario, err := simulator.ParseScenario(value)
	if err != nil {
		return "", 0, 0, err
	}
	delay := f.delay
	if delay < 0 {
		delay = time.Duration(cfg.Simulator.ResponseDelayMS) * time.Millisecond
	}
	step := f.stepTimeout
	if step <= 0 {
		step = time.Duration(cfg.Simulator.StepTimeoutSec) * time.Second
	}
	return scenario, delay, step, nil
}

func newSimulateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "simulate",
		Aliases: []string{"sim"},
		Short:   "Play the laser or SFC side of the handshake",
	}
	cmd.AddCommand(newSimulateSFCCommand(ctx))
	cmd.AddCommand(newSimulateLaserCommand(ctx))
	cmd.AddCommand(newSimulatePairCommand(ctx))
	return cmd
}

func newSimulateSFCCommand(ctx *commandContext) *cobra.Command {
	var flags simulateFlags
	var port string
	cmd := &cobra.Command{
		Use:   "sfc",
		Short: "Answer triggers and carve results like the SFC host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			scenario, delay, _, err := flags.resolve(cfg)
			if err != nil {
				return err
			}
			if strings.TrimSpace(port) == "" {
				port = cfg.Serial.SFC.Port
			}
			logger := toolLogger(flags.verbose)
			link, _, err := openBenchLink(cmd.Context(), cfg, benchLinkOptions{Port: port, Name: "sim-sfc", Logger: logger})
			if err != nil {
				return err
			}
			defer link.Close()

			stdout := cmd.OutOrStdout()
			fmt.Fprintf(stdout, "Simulating SFC on %s (scenario %s); press Ctrl+C to stop\n", port, scenario)
			sfc := simulator.NewSFC(link, simulator.SFCOptions{Scenario: scenario, ResponseDelay: delay, Logger: logger})
			err = sfc.Serve(cmd.Context())
			triggers, finals := sfc.Counts()
			fmt.Fprintf(stdout, "Answered %d triggers, sent %d finals\n", triggers, finals)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	flags.register(cmd, false, true)
	cmd.Flags().StringVar(&port, "port", "", "Serial port to serve (default serial.sfc.port)")
	return cmd
}

func newSimulateLaserCommand(ctx *commandContext) *cobra.Command {
	var flags simulateFlags
	var port string
	var count int
	cmd := &cobra.Command{
		Use:   "laser",
		Short: "Run handshake cycles like the laser marker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			scenario, _, step, err := flags.resolve(cfg)
			if err != nil {
				return err
			}
			if strings.TrimSpace(port) == "" {
				port = cfg.Serial.Laser.Port
			}
			logger := toolLogger(flags.verbose)
			link, _, err := openBenchLink(cmd.Context(), cfg, benchLinkOptions{Port: port, Name: "sim-laser", Logger: logger})
			if err != nil {
				return err
			}
			defer link.Close()

			stdout := cmd.OutOrStdout()
			if count <= 0 {
				count = 1
			}
			failures := 0
			for i := 1; i <= count; i++ {
				laser := simulator.NewLaser(link, simulator.LaserOptions{
					Scenario:    scenario,
					Trigger:     flags.trigger,
					StepTimeout: step,
					Logger:      logger,
				})
				transcript, runErr := laser.Run(cmd.Context())
				if count > 1 {
					fmt.Fprintf(stdout, "Cycle %d/%d\n", i, count)
				}
				printTranscript(stdout, transcript)
				if runErr != nil {
					if cmd.Context().Err() != nil {
						return runErr
					}
					failures++
					fmt.Fprintf(stdout, "Cycle failed: %v\n", runErr)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d cycles failed", failures, count)
			}
			return nil
		},
	}
	flags.register(cmd, true, false)
	cmd.Flags().StringVar(&port, "port", "", "Serial port to drive (default serial.laser.port)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of handshake cycles")
	return cmd
}

func newSimulatePairCommand(ctx *commandContext) *cobra.Command {
	var flags simulateFlags
	var laserPort, sfcPort string
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Run one handshake between a simulated laser and SFC",
		Long: "Run both simulated peers. With --laser and --sfc they talk over two real\n" +
			"serial ports (a null-modem pair); without them they talk in memory and the\n" +
			"transcript is checked against the reference handshake.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			scenario, delay, step, err := flags.resolve(cfg)
			if err != nil {
				return err
			}
			settings, err := bridge.SettingsFromConfig(cfg)
			if err != nil {
				return err
			}
			laserSide, sfcSide, err := openPair(settings, laserPort, sfcPort)
			if err != nil {
				return err
			}
			transcript, err := simulator.Run(cmd.Context(), laserSide, sfcSide, simulator.RunOptions{
				LaserScenario: scenario,
				SFCScenario:   scenario,
				Trigger:       flags.trigger,
				ResponseDelay: delay,
				StepTimeout:   step,
				Framing:       settings.Framing,
				Logger:        toolLogger(flags.verbose),
			})
			stdout := cmd.OutOrStdout()
			printTranscript(stdout, transcript)
			if err != nil {
				return err
			}
			if laserPort == "" && scenario == simulator.ScenarioPass && strings.TrimSpace(flags.trigger) == "" {
				if err := simulator.Verify(simulator.DefaultTranscript(), transcript); err != nil {
					return fmt.Errorf("transcript mismatch: %w", err)
				}
				fmt.Fprintln(stdout, "Transcript matches the reference handshake")
			}
			return nil
		},
	}
	flags.register(cmd, true, true)
	cmd.Flags().StringVar(&laserPort, "laser", "", "Port the simulated laser uses")
	cmd.Flags().StringVar(&sfcPort, "sfc", "", "Port the simulated SFC uses")
	return cmd
}

// openPair opens both serial ports, or an in-memory pipe when neither is set.
func openPair(settings bridge.Settings, laserPort, sfcPort string) (io.ReadWriteCloser, io.ReadWriteCloser, error) {
	laserPort, sfcPort = strings.TrimSpace(laserPort), strings.TrimSpace(sfcPort)
	if laserPort == "" && sfcPort == "" {
		a, b := net.Pipe()
		return a, b, nil
	}
	if laserPort == "" || sfcPort == "" {
		return nil, nil, errors.New("--laser and --sfc must be set together")
	}
	laserDev, err := serialport.Open(benchPortConfig(settings, laserPort))
	if err != nil {
		return nil, nil, err
	}
	sfcDev, err := serialport.Open(benchPortConfig(settings, sfcPort))
	if err != nil {
		_ = laserDev.Close()
		return nil, nil, err
	}
	return laserDev, sfcDev, nil
}

func printTranscript(stdout io.Writer, transcript simulator.Transcript) {
	if len(transcript) == 0 {
		fmt.Fprintln(stdout, "No messages exchanged")
		return
	}
	rows := make([][]string, 0, len(transcript))
	for _, step := range transcript {
		rows = append(rows, []string{fmt.Sprintf("%d", step.Index), string(step.Direction), step.Payload})
	}
	fmt.Fprintln(stdout, renderTable([]string{"#", "Direction", "Payload"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft}))
}
