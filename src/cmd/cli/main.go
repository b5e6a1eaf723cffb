package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"snapcap/src/capture"
	"snapcap/src/ipc"
)

const detectTimeout = 300 * time.Millisecond

var captureModes = map[string]string{
	"copy":   "Select a region and copy it to the clipboard",
	"save":   "Select a region and save it as an image file",
	"record": "Select a region and start or stop a recording",
}

type cliOptions struct {
	verbose bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(os.Args)
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"snapcap-cli"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "snapcap-cli",
		Short:         "Drive a running snapcap instance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")

	for _, mode := range []string{"copy", "save", "record"} {
		mode := mode
		cmd.AddCommand(&cobra.Command{
			Use:           mode,
			Short:         captureModes[mode],
			SilenceUsage:  true,
			SilenceErrors: true,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCapture(mode, *opts)
			},
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "sources",
		Short:         "List capturable displays",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSources(cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "status",
		Short:         "Check whether a snapcap instance is running",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.OutOrStdout(), *opts)
		},
	})

	return cmd
}

func runCapture(mode string, opts cliOptions) error {
	configureLogging(opts)

	client, err := detectResident(opts)
	if err != nil {
		return err
	}

	if err := client.Capture(mode); err != nil {
		return fmt.Errorf("%s request failed: %w", mode, err)
	}

	if opts.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] %s request accepted on port %d\n", mode, client.Port())
	}
	return nil
}

func runStatus(out io.Writer, opts cliOptions) error {
	configureLogging(opts)

	client, err := detectResident(opts)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "snapcap is running on port %d\n", client.Port())
	return nil
}

func runSources(out io.Writer) error {
	sources, err := capture.ListSources()
	if err != nil {
		return err
	}
	writeSources(out, sources)
	return nil
}

func writeSources(out io.Writer, sources []capture.Source) {
	for _, s := range sources {
		b := s.Bounds
		fmt.Fprintf(out, "%d\t%s\t%dx%d at (%d,%d)\n", s.ID, s.Name, b.Dx(), b.Dy(), b.Min.X, b.Min.Y)
	}
}

func detectResident(opts cliOptions) (*ipc.Client, error) {
	if opts.verbose {
		r := ipc.ControlPorts()
		fmt.Fprintf(os.Stderr, "[verbose] Scanning ports %d-%d\n", r.Start, r.End)
	}

	client, err := ipc.Detect(ipc.ControlPorts(), detectTimeout)
	if err != nil {
		return nil, fmt.Errorf("snapcap is not running: %w", err)
	}
	return client, nil
}

func configureLogging(opts cliOptions) {
	if !opts.verbose {
		log.SetOutput(io.Discard)
	} else {
		log.SetOutput(os.Stderr)
	}
}
