package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

// rootCmd is the base of every tuntcp subcommand.
var rootCmd = &cobra.Command{
	Use:   "tuntcp",
	Short: "A user-space TCP/IPv4 stack over a TUN device",
	Long: `tuntcp opens a point-to-point TUN interface and speaks TCP over it
without involving the kernel's own TCP implementation. Subcommands
bind a listening port or dial out to a peer.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(v.GetString("log-level"))
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tuntcp: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	v.SetEnvPrefix("TUNTCP")
	v.AutomaticEnv()

	pf := rootCmd.PersistentFlags()
	pf.String("iface", "", "TUN interface name (empty lets the OS choose)")
	pf.String("local-ip", "10.0.0.1", "local point-to-point address")
	pf.String("remote-ip", "10.0.0.2", "remote point-to-point address")
	pf.Int("mtu", 1500, "interface MTU")
	pf.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	pf.String("log-level", "info", "logrus level (trace, debug, info, warn, error)")

	_ = v.BindPFlags(pf)
}
