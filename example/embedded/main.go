// Command embedded is a traffic generator: it dials a running respkv
// server and issues a steady mix of commands, the way the teacher's mysql
// and postgres examples drive traffic against a proxied database so
// there is something worth watching on the dashboard.
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/ashgrove/respkv/resp"
)

func defaultAddr() string {
	if v := os.Getenv("RESPKV_ADDR"); v != "" {
		return v
	}
	return "127.0.0.1:6379"
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addr := defaultAddr()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	fmt.Printf("connected to respkv server at %s\n", addr)

	dec := resp.NewDecoder()
	send := func(parts ...string) (resp.Value, error) {
		elems := make([]resp.Value, len(parts))
		for i, p := range parts {
			elems[i] = resp.NewBulkStringFromString(p)
		}
		if _, err := conn.Write(resp.Encode(resp.NewArray(elems))); err != nil {
			return resp.Value{}, err
		}
		buf := make([]byte, 4096)
		for {
			v, n, derr := dec.Decode()
			if derr == nil {
				dec.Consume(n)
				return v, nil
			}
			rn, rerr := conn.Read(buf)
			if rn > 0 {
				dec.Feed(buf[:rn])
			}
			if rerr != nil {
				return resp.Value{}, rerr
			}
		}
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for i := 1; ; i++ {
		doStrings(send, i)
		doLists(send, i)
		doBlockingConsumer(ctx, addr, i)
		doStream(send, i)

		if i%3 == 0 {
			doHotKeyBurst(send, i)
		}

		select {
		case <-ctx.Done():
			fmt.Println("shutting down")
			return nil
		case <-ticker.C:
		}
	}
}

func doStrings(send func(...string) (resp.Value, error), i int) {
	key := fmt.Sprintf("user:%d", i)
	if _, err := send("SET", key, fmt.Sprintf("value-%d", i), "EX", "60"); err != nil {
		log.Printf("set: %v", err)
		return
	}
	v, err := send("GET", key)
	if err != nil {
		log.Printf("get: %v", err)
		return
	}
	fmt.Printf("[%d] set+get %s -> %s\n", i, key, v.String())
}

func doLists(send func(...string) (resp.Value, error), i int) {
	key := "queue:jobs"
	if _, err := send("RPUSH", key, fmt.Sprintf("job-%d", i)); err != nil {
		log.Printf("rpush: %v", err)
		return
	}
	if _, err := send("LRANGE", key, "0", "-1"); err != nil {
		log.Printf("lrange: %v", err)
	}
}

// doBlockingConsumer dials its own connection so BLPOP's wait never
// blocks the main connection. The main traffic loop still waits for the
// consumer to finish, which takes at most the 1-second BLPOP timeout.
func doBlockingConsumer(ctx context.Context, addr string, i int) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		defer conn.Close()

		dec := resp.NewDecoder()
		req := resp.NewArray([]resp.Value{
			resp.NewBulkStringFromString("BLPOP"),
			resp.NewBulkStringFromString("queue:jobs"),
			resp.NewBulkStringFromString("1"),
		})
		if _, err := conn.Write(resp.Encode(req)); err != nil {
			return
		}
		buf := make([]byte, 4096)
		for {
			v, n, derr := dec.Decode()
			if derr == nil {
				dec.Consume(n)
				fmt.Printf("[%d] blpop consumed %s\n", i, v.String())
				return
			}
			rn, rerr := conn.Read(buf)
			if rn > 0 {
				dec.Feed(buf[:rn])
			}
			if rerr != nil {
				return
			}
		}
	}()
	wg.Wait()
}

func doStream(send func(...string) (resp.Value, error), i int) {
	key := "events:log"
	v, err := send("XADD", key, "*", "kind", "tick", "n", fmt.Sprintf("%d", i))
	if err != nil {
		log.Printf("xadd: %v", err)
		return
	}
	fmt.Printf("[%d] xadd %s -> %s\n", i, key, v.String())
}

func doHotKeyBurst(send func(...string) (resp.Value, error), i int) {
	for j := 0; j < 25; j++ {
		if _, err := send("GET", "user:1"); err != nil {
			return
		}
	}
	fmt.Printf("[%d] hot-key burst done (25 repeated GETs)\n", i)
}
