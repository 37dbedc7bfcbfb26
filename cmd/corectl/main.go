// Command corectl is a thin client over the manager's control socket. It
// exercises the abstract verb set internal/control defines; it is
// deliberately not a full systemctl-equivalent CLI (no unit-file editing,
// no transient-unit property parsing beyond a flat key=value list), per
// spec.md §6's scope for sctl.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/corevisor/corevisor/internal/control"
)

func main() {
	socketPath := flag.String("socket", "/run/corevisor/sctl", "control socket path")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: corectl [-socket path] <verb> [unit] [key=value ...]")
		os.Exit(2)
	}

	if err := run(*socketPath, args); err != nil {
		fmt.Fprintln(os.Stderr, "corectl:", err)
		os.Exit(1)
	}
}

func run(socketPath string, args []string) error {
	verb := control.Verb(args[0])
	rest := args[1:]

	req := control.Request{Verb: verb, Flags: map[string]string{}}
	for _, a := range rest {
		if k, v, ok := strings.Cut(a, "="); ok {
			req.Flags[k] = v
			continue
		}
		req.Args = append(req.Args, a)
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer conn.Close()

	if err := control.WriteRequest(conn, req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	resp, err := control.ReadResponse(bufio.NewReader(conn))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.Code != 0 {
		fmt.Fprintf(os.Stderr, "error (%d): %s\n", resp.Code, resp.Message)
		os.Exit(1)
	}

	if resp.Message != "" {
		fmt.Println(resp.Message)
	}
	if resp.Payload != nil {
		printPayload(resp.Payload)
	}
	return nil
}

func printPayload(payload interface{}) {
	switch v := payload.(type) {
	case []interface{}:
		for _, item := range v {
			printPayload(item)
		}
	case map[string]interface{}:
		var keys []string
		for k := range v {
			keys = append(keys, k)
		}
		for _, k := range keys {
			fmt.Printf("%s=%v\n", k, v[k])
		}
	default:
		fmt.Printf("%v\n", v)
	}
}
