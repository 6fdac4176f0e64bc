// Command respkv-tui is an interactive console client: it connects to a
// running respkv-server over the wire protocol and, optionally, to its
// HTTP dashboard for a live activity feed.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashgrove/respkv/internal/activity"
	"github.com/ashgrove/respkv/internal/tui"
)

func main() {
	fs := flag.NewFlagSet("respkv-tui", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:6379", "server address to connect to")
	httpAddr := fs.String("http", "", "dashboard address to stream activity from (empty disables the activity view)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	if err := monitor(*addr, *httpAddr); err != nil {
		log.Fatal(err)
	}
}

// monitor dials addr, launches the Bubble Tea program, and on ctrl+c
// closes the connection before quitting.
func monitor(addr, httpAddr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var eventCh <-chan activity.Event
	if httpAddr != "" {
		eventCh, err = tui.SubscribeEvents(ctx, httpAddr)
		if err != nil {
			log.Printf("activity feed unavailable: %v", err)
		}
	}

	model := tui.New(conn, eventCh)
	p := tea.NewProgram(model)
	_, err = p.Run()
	return err
}
