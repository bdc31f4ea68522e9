package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-xmodem/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"packets_sent", snap.PacketsSent,
					"packets_received", snap.PacketsReceived,
					"packets_rejected", snap.PacketsRejected,
					"retransmits", snap.Retransmits,
					"sync_attempts", snap.SyncAttempts,
					"bytes_sent", snap.BytesSent,
					"bytes_received", snap.BytesReceived,
					"watcher_clients", snap.WatcherClients,
					"hub_drops", snap.HubDrops,
					"hub_kicks", snap.HubKicks,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
