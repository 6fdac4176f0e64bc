// Command respkv-server runs the key-value server: a TCP listener
// speaking the wire protocol, and an optional HTTP observability
// dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"syscall"
	"time"

	"os/signal"

	"github.com/ashgrove/respkv/internal/activity"
	"github.com/ashgrove/respkv/internal/hotkey"
	"github.com/ashgrove/respkv/internal/server"
	"github.com/ashgrove/respkv/internal/store"
	"github.com/ashgrove/respkv/internal/web"
)

const version = "0.1.0"

func main() {
	fs := flag.NewFlagSet("respkv-server", flag.ExitOnError)
	listen := fs.String("listen", ":6379", "TCP address to listen on")
	httpAddr := fs.String("http", "", "HTTP dashboard address (empty disables it)")
	readBufSize := fs.Int("read-buf-size", 4096, "per-connection read chunk size in bytes")
	decoderCap := fs.Int("decoder-cap", 4<<20, "max buffered-but-undecoded bytes before a connection is dropped")
	hotkeyThreshold := fs.Int("hotkey-threshold", 20, "repeat count within the window that triggers a hot-command alert")
	hotkeyWindow := fs.Duration("hotkey-window", time.Second, "sliding window for hot-command detection")
	hotkeyCooldown := fs.Duration("hotkey-cooldown", 10*time.Second, "minimum time between repeated alerts for the same shape")
	showVersion := fs.Bool("version", false, "print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		return
	}

	if err := run(*listen, *httpAddr, *readBufSize, *decoderCap, *hotkeyThreshold, *hotkeyWindow, *hotkeyCooldown); err != nil {
		log.Fatal(err)
	}
}

func run(listen, httpAddr string, readBufSize, decoderCap, hotkeyThreshold int, hotkeyWindow, hotkeyCooldown time.Duration) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	engine := store.NewEngine()
	broker := activity.New(256)
	hot := hotkey.New(hotkeyThreshold, hotkeyWindow, hotkeyCooldown)

	srv := server.New(engine, broker, hot, server.Config{
		ReadBufSize: readBufSize,
		DecoderCap:  decoderCap,
	})

	errCh := make(chan error, 2)

	go func() {
		log.Printf("respkv server listening on %s", listen)
		errCh <- srv.Serve(ctx, listen)
	}()

	if httpAddr != "" {
		dash := web.New(srv, broker)
		go func() {
			log.Printf("HTTP dashboard listening on %s", httpAddr)
			errCh <- dash.Serve(ctx, httpAddr)
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
