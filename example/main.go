package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jpalmerr/badgesink"
	"github.com/jpalmerr/badgesink/example/internal/mockapi"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start mock badge API (see internal/mockapi)
	mock := mockapi.New()
	go mock.Generate(ctx, time.Second)
	go func() {
		if err := http.ListenAndServe(":9999", mock.Handler()); err != nil {
			slog.Error("mock server error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	sink, err := badgesink.New("demo-app", "demo-secret", "http://localhost:9999",
		badgesink.WithBackoff(2*time.Second),
		badgesink.WithTokenReuse(),
	)
	if err != nil {
		slog.Error("failed to create sink", "error", err)
		os.Exit(1)
	}

	var total atomic.Int64
	show := func(ev badgesink.BadgeEvent) error {
		fmt.Printf("%s  %-10s %-14s %s\n", ev.At.Format(time.TimeOnly), ev.RiderID, ev.StopName, ev.VehicleName)
		return nil
	}
	count := func(ev badgesink.BadgeEvent) error {
		if n := total.Add(1); n%10 == 0 {
			slog.Info("badges received", "total", n, "mode", sink.Status().Mode)
		}
		return nil
	}

	fmt.Println()
	fmt.Println("  badgesink demo: polling a mock badge API on :9999")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	if err := sink.Start(ctx, badgesink.MultiHandler(show, count)); err != nil {
		slog.Error("failed to start sink", "error", err)
		os.Exit(1)
	}

	<-sink.Done()
	if err := sink.Err(); err != nil && ctx.Err() == nil {
		slog.Error("badge polling failed", "error", err)
		os.Exit(1)
	}
}
