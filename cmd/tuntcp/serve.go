package main

import (
	"net"
	"net/http"

	tuntcp "github.com/lirlia/tuntcp"
	"github.com/lirlia/tuntcp/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Bind a port and echo back everything received",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Uint16("port", 7000, "TCP port to bind")
	_ = v.BindPFlags(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	port := uint16(v.GetInt("port"))
	log := logrus.NewEntry(logrus.StandardLogger()).WithField("cmd", "serve")

	opts := tuntcp.Options{MTU: cfg.MTU, Log: log}
	if cfg.MetricsAddr != "" {
		opts.Registry = prometheus.NewRegistry()
	}

	iface, err := tuntcp.New(cfg.Iface, net.ParseIP(cfg.LocalIP), net.ParseIP(cfg.RemoteIP), opts)
	if err != nil {
		return err
	}
	defer iface.Close()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, opts.Registry, log)
	}

	listener, err := iface.Bind(port)
	if err != nil {
		return err
	}
	defer listener.Close()

	log.WithFields(logrus.Fields{"iface": iface.Name(), "port": port}).Info("listening")

	for {
		stream, err := listener.Accept()
		if err != nil {
			return err
		}
		if stream == nil {
			return nil // listener closed
		}
		go echo(stream, log)
	}
}

func echo(s *tuntcp.Stream, log *logrus.Entry) {
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				log.WithError(werr).Warn("echo write failed")
				return
			}
		}
		if err != nil {
			log.WithError(err).Debug("connection aborted")
			return
		}
		if n == 0 {
			_ = s.Close()
			return
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	log.WithField("addr", addr).Info("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("metrics server stopped")
	}
}
