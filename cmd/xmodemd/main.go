// Command xmodemd is the XMODEM gateway daemon: it owns one serial port and
// lets any number of TCP control clients drive send/receive sessions over
// it (one transfer at a time) or watch transfer progress, optionally
// advertising itself over mDNS and exposing Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/kstaniek/go-xmodem/internal/gateway"
	"github.com/kstaniek/go-xmodem/internal/hub"
	"github.com/kstaniek/go-xmodem/internal/metrics"
	"github.com/kstaniek/go-xmodem/internal/serialport"
	"github.com/kstaniek/go-xmodem/internal/xmodem"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("xmodemd %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	port, err := serialport.Open(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		l.Error("serial_open_failed", "device", cfg.serialDev, "error", err)
		return
	}
	transport := serialport.NewTransport(port, 0)
	defer func() { _ = transport.Close() }()
	l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)

	h := hub.New[gateway.Event]()

	srv := gateway.NewServer(
		gateway.WithListenAddr(cfg.listenAddr),
		gateway.WithLogger(l),
		gateway.WithHandshakeTimeout(cfg.handshakeTO),
		gateway.WithSerial(transport),
		gateway.WithHub(h),
		gateway.WithXModemOptions(
			xmodem.WithMaxRetrans(cfg.maxRetrans),
			xmodem.WithPacketSize(cfg.packetSize),
			xmodem.WithLogger(l),
		),
	)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
		}
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		addr := srv.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 {
			lastColon := strings.LastIndex(addr, ":")
			if lastColon >= 0 {
				if pn, perr := strconv.Atoi(addr[lastColon+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	_ = srv.Shutdown(context.Background())
	wg.Wait()
}
