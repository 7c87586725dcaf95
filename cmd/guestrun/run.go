package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	guestsys "github.com/kmrgirish/guestsys"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] program [args...]",
	Short: "Run a guest program and exit with its status",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		path := args[0]
		if !strings.Contains(path, "/") {
			path = "/bin/" + path
		}

		sys, err := guestsys.New(cfg, guestsys.Stdio{
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
			Log:    os.Stderr,
		})
		if err != nil {
			return err
		}
		status, err := sys.Run(path, args)
		if cerr := sys.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if status != 0 {
			return exitStatus(status)
		}
		return nil
	},
}

var programsCmd = &cobra.Command{
	Use:   "programs",
	Short: "List the bundled guest programs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range guestsys.Programs() {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	// Flags after the program name belong to the guest.
	runCmd.Flags().SetInterspersed(false)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(programsCmd)
	rootCmd.AddCommand(configCmd)
}
