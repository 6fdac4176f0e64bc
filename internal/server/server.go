// Package server implements the per-connection read/decode/dispatch/reply
// loop (C5): it owns no storage semantics of its own, translating wire
// frames to internal/store.Engine calls and back, the way the teacher's
// relay goroutines translate wire packets to captured events without
// themselves deciding protocol semantics.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ashgrove/respkv/internal/activity"
	"github.com/ashgrove/respkv/internal/hotkey"
	"github.com/ashgrove/respkv/internal/shape"
	"github.com/ashgrove/respkv/internal/store"
	"github.com/ashgrove/respkv/resp"
)

// Config holds the tunables exposed by cmd/respkv-server's flags.
type Config struct {
	ReadBufSize int
	DecoderCap  int
}

// DefaultConfig returns the server's out-of-the-box tunables.
func DefaultConfig() Config {
	return Config{ReadBufSize: 4096, DecoderCap: 4 << 20}
}

// Server owns the storage engine and drives one goroutine per accepted
// connection against it. Broker and Hotkey are optional observers: either
// may be nil, in which case that concern is simply not exercised.
type Server struct {
	Engine *store.Engine
	Broker *activity.Broker
	Hotkey *hotkey.Detector
	cfg    Config

	startTime time.Time
	connCount atomic.Int64
	cmdCount  atomic.Int64
}

// New returns a Server ready to Serve. broker and hot may be nil.
func New(engine *store.Engine, broker *activity.Broker, hot *hotkey.Detector, cfg Config) *Server {
	if cfg.ReadBufSize <= 0 {
		cfg.ReadBufSize = 4096
	}
	if cfg.DecoderCap <= 0 {
		cfg.DecoderCap = 4 << 20
	}
	return &Server{
		Engine:    engine,
		Broker:    broker,
		Hotkey:    hot,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// Serve accepts connections on addr until ctx is canceled, handling each
// on its own goroutine. It returns nil on a clean shutdown via ctx.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(conn)
	}
}

// Stats is the snapshot the dashboard's /api/stats endpoint serves.
type Stats struct {
	UptimeSeconds    float64 `json:"uptime_seconds"`
	CommandsTotal    int64   `json:"commands_total"`
	KeysTotal        int     `json:"keys_total"`
	ConnectedClients int64   `json:"connected_clients"`
}

// Stats returns a point-in-time snapshot of server activity.
func (s *Server) Stats() Stats {
	return Stats{
		UptimeSeconds:    time.Since(s.startTime).Seconds(),
		CommandsTotal:    s.cmdCount.Load(),
		KeysTotal:        s.Engine.KeyCount(),
		ConnectedClients: s.connCount.Load(),
	}
}

func (s *Server) handleConn(conn net.Conn) {
	s.connCount.Add(1)
	defer s.connCount.Add(-1)
	defer conn.Close()

	dec := resp.NewDecoder()
	dec.MaxBuffered = s.cfg.DecoderCap
	buf := make([]byte, s.cfg.ReadBufSize)

	for {
		n, readErr := conn.Read(buf)
		if n > 0 {
			dec.Feed(buf[:n])
			if !s.drain(conn, dec) {
				return
			}
		}
		if readErr != nil {
			return
		}
	}
}

// drain decodes and dispatches every complete frame currently buffered,
// writing replies as it goes. It returns false if the connection must be
// closed (a protocol error, or a write failure).
func (s *Server) drain(conn net.Conn, dec *resp.Decoder) bool {
	for {
		v, n, err := dec.Decode()
		if errors.Is(err, resp.ErrIncomplete) {
			return true
		}
		if err != nil {
			conn.Write(resp.Encode(resp.NewError(err.Error())))
			return false
		}
		dec.Consume(n)

		reply := s.dispatch(v)
		if _, werr := conn.Write(resp.Encode(reply)); werr != nil {
			return false
		}
	}
}

func (s *Server) dispatch(v resp.Value) resp.Value {
	args, err := commandArgs(v)
	if err != nil {
		return resp.NewError(err.Error())
	}

	name := strings.ToUpper(string(args[0]))
	handler, ok := handlers[name]
	if !ok {
		return resp.NewError(unknownCommandErr(string(args[0])).Error())
	}

	start := time.Now()
	reply, key, cmdErr := handler(s.Engine, args)
	duration := time.Since(start)

	s.cmdCount.Add(1)
	s.recordEvent(name, key, args, start, duration, cmdErr)

	if cmdErr != nil {
		return resp.NewError(cmdErr.Error())
	}
	return reply
}

// commandArgs validates that v is a non-empty array of bulk-string-like
// elements and extracts their raw bytes.
func commandArgs(v resp.Value) ([][]byte, error) {
	if v.Kind != resp.Array || v.IsNull() || len(v.Elems) == 0 {
		return nil, invalidCommandFormatErr()
	}
	args := make([][]byte, len(v.Elems))
	for i, elem := range v.Elems {
		switch elem.Kind {
		case resp.BulkString:
			if elem.Null {
				return nil, invalidCommandFormatErr()
			}
			args[i] = elem.Bulk
		case resp.SimpleString:
			args[i] = []byte(elem.Str)
		default:
			return nil, invalidCommandFormatErr()
		}
	}
	return args, nil
}

// recordEvent publishes an activity.Event and feeds the hot-command
// detector, after the reply has already been computed — these observers
// must never be able to delay a reply.
func (s *Server) recordEvent(name, key string, args [][]byte, start time.Time, duration time.Duration, cmdErr error) {
	if s.Broker == nil && s.Hotkey == nil {
		return
	}

	var hot bool
	if s.Hotkey != nil {
		res := s.Hotkey.Record(shape.Of(name, args), start)
		if res.Alert != nil {
			hot = true
			log.Printf("hotkey: shape %q seen %d times in window", res.Alert.Shape, res.Alert.Count)
		}
	}

	if s.Broker == nil {
		return
	}
	errText := ""
	if cmdErr != nil {
		errText = cmdErr.Error()
	}
	s.Broker.Publish(activity.Event{
		ID:        uuid.NewString(),
		Command:   name,
		Key:       key,
		StartTime: start,
		Duration:  duration,
		Err:       errText,
		HotKey:    hot,
	})
}
