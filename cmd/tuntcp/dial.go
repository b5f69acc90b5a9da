package main

import (
	"bufio"
	"fmt"
	"net"
	"os"

	tuntcp "github.com/lirlia/tuntcp"
	"github.com/lirlia/tuntcp/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Actively open a connection and relay stdin/stdout",
	RunE:  runDial,
}

func init() {
	dialCmd.Flags().Uint16("port", 7000, "remote TCP port")
	dialCmd.Flags().Uint16("local-port", 40000, "local TCP port to dial from")
	_ = v.BindPFlags(dialCmd.Flags())
	rootCmd.AddCommand(dialCmd)
}

func runDial(cmd *cobra.Command, args []string) error {
	// serve also binds a "port" flag on the shared viper; rebind to this
	// command's flags so dial's --port is the one read below.
	_ = v.BindPFlags(cmd.Flags())
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	port := uint16(v.GetInt("port"))
	localPort := uint16(v.GetInt("local-port"))
	log := logrus.NewEntry(logrus.StandardLogger()).WithField("cmd", "dial")

	iface, err := tuntcp.New(cfg.Iface, net.ParseIP(cfg.LocalIP), net.ParseIP(cfg.RemoteIP), tuntcp.Options{MTU: cfg.MTU, Log: log})
	if err != nil {
		return err
	}
	defer iface.Close()

	stream, err := iface.Dial(net.ParseIP(cfg.LocalIP), net.ParseIP(cfg.RemoteIP), localPort, port)
	if err != nil {
		return err
	}
	defer stream.Close()

	log.WithField("quad", stream.Quad().String()).Info("dialed")

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stream.Read(buf)
			if n > 0 {
				os.Stdout.Write(buf[:n])
			}
			if err != nil || n == 0 {
				return
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := append(scanner.Bytes(), '\n')
		if _, err := stream.Write(line); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return stream.Flush()
}
