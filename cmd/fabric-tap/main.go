// fabric-tap connects to a fabric broker and streams events to console.
// Usage: go run ./cmd/fabric-tap --url ws://localhost:7113/fabric --topic /market/trades
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/skaldan/fabriclink/internal/fabric"
)

func main() {
	url := flag.String("url", "ws://localhost:7113/fabric", "fabric broker URL")
	topic := flag.String("topic", "", "topic to tap (empty = all topics)")
	send := flag.String("send", "", "publish this payload as an event on --topic after connecting")
	request := flag.String("request", "", "send this payload as a request on --topic and print the response")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg := fabric.DefaultClientConfig()
	cfg.URL = *url
	cfg.ClientID = fmt.Sprintf("fabric-tap-%d", os.Getpid())

	client := fabric.NewClient(cfg, logger)
	defer client.Destroy()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// Surface connection-state changes so reconnects are visible
	go func() {
		for ev := range client.Events() {
			fmt.Fprintf(os.Stderr, "# state: %s\n", ev)
		}
	}()

	var count atomic.Int64
	client.Subscribe(*topic, func(evt *fabric.Event) {
		count.Add(1)
		if *verbose {
			out, _ := json.Marshal(evt)
			fmt.Println(string(out))
			return
		}
		fmt.Printf("%s %s %dB\n", time.Now().Format("15:04:05.000"), evt.Topic, len(evt.Payload))
	})

	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	err := client.Connect(dialCtx)
	dialCancel()
	if err != nil {
		logger.Error("connect failed", "url", *url, "error", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "# connected to %s\n", *url)

	if *send != "" {
		evt := &fabric.Event{Topic: *topic, Payload: []byte(*send)}
		if err := client.SendEvent(evt); err != nil {
			logger.Error("send event", "error", err)
		}
	}

	if *request != "" {
		start := time.Now()
		req := &fabric.Request{Topic: *topic, Payload: []byte(*request)}
		err := client.SendRequest(req, func(resp *fabric.Response) {
			fmt.Printf("# response in %v: %s\n", time.Since(start), resp.Payload)
		})
		if err != nil {
			logger.Error("send request", "error", err)
		}
	}

	<-ctx.Done()
	fmt.Fprintf(os.Stderr, "# %d events seen\n", count.Load())
}
