// Command axterm is an interactive packet-radio terminal: it drives a
// connected-mode AX.25 session and the AXDP chat/file-transfer layer
// over a KISS TNC reached by TCP, the same localhost:8001 target
// kissutil.go dials by default, generalized from kissutil's raw
// monitor-format passthrough into a stateful terminal session.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/axterm/internal/axdp"
	"github.com/doismellburning/axterm/internal/config"
	"github.com/doismellburning/axterm/internal/coordinator"
	"github.com/doismellburning/axterm/internal/logging"
	"github.com/doismellburning/axterm/internal/session"
	"github.com/doismellburning/axterm/internal/transport"
)

func main() {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "axterm:", err)
		os.Exit(1)
	}

	logger := logging.For("axterm")

	tr := transport.NewTCPTransport(5 * time.Second)
	conn, err := tr.Connect(cfg.Host, cfg.Port)
	if err != nil {
		logger.Fatal("connecting to TNC", "host", cfg.Host, "port", cfg.Port, "err", err)
	}
	defer conn.Close()

	current := ""

	coord := coordinator.New(cfg, conn, coordinator.Callbacks{
		OnChat: func(from, text string) {
			fmt.Printf("\n%s: %s\n> ", from, text)
		},
		OnSessionState: func(peer string, prev, next session.State) {
			fmt.Printf("\n[%s] %s -> %s\n> ", peer, prev, next)
		},
		OnTransferRequest: func(req coordinator.IncomingTransferRequest) {
			fmt.Printf("\nincoming file %q (%d bytes) from %s, accept? [y/N] ",
				req.Meta.FileName, req.Meta.FileSize, req.Key.Remote)
			accepted := readYesNo()
			req.Accept(accepted)
		},
		OnTransferUpdate: func(b coordinator.BulkTransfer) {
			fmt.Printf("\n[transfer %08x] %s %.0f%%\n> ", b.SessionID, b.Status, b.Progress*100)
		},
		OnCapability: func(peer string, cap axdp.Capability) {
			logger.Debug("peer capability", "peer", peer, "cap", cap)
		},
	}, nil)

	go readLoop(coord, conn, logger)
	go tickLoop(coord)

	fmt.Println("axterm connected to", cfg.Host, cfg.Port, "as", cfg.Callsign)
	fmt.Println(`commands: connect CALL[-SSID], disconnect, chat TEXT, send FILE, status, quit`)

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			current = runCommand(coord, current, line, logger)
		}
		fmt.Print("> ")
	}
}

// readLoop feeds raw TCP bytes into the coordinator's KISS parser,
// mirroring kissutil.go's tnc_listen_net byte-at-a-time read loop.
func readLoop(coord *coordinator.Coordinator, conn transport.Conn, logger *log.Logger) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			coord.HandleInboundBytes(buf[:n])
		}
		if err != nil {
			logger.Error("TNC connection closed", "err", err)
			return
		}
	}
}

// tickLoop drives T1/T3 expiry on a steady interval; the coordinator
// has no internal goroutine of its own (spec.md §5's single-threaded
// model), so something external must call Tick.
func tickLoop(coord *coordinator.Coordinator) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for t := range ticker.C {
		coord.Tick(t)
	}
}

func runCommand(coord *coordinator.Coordinator, current, line string, logger *log.Logger) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return current
	}

	switch strings.ToLower(fields[0]) {
	case "connect":
		if len(fields) < 2 {
			fmt.Println("usage: connect CALL[-SSID] [via DIGI1,DIGI2]")
			return current
		}
		remote := fields[1]
		via := parseViaPath(fields[2:])
		coord.Connect(remote, via)
		return remote

	case "disconnect":
		if current == "" {
			fmt.Println("not connected")
			return current
		}
		coord.Disconnect(current, nil)
		return current

	case "chat":
		if current == "" {
			fmt.Println("not connected; use: connect CALL")
			return current
		}
		coord.SendChat(current, nil, strings.TrimPrefix(line, fields[0]+" "))
		return current

	case "send":
		if current == "" {
			fmt.Println("not connected; use: connect CALL")
			return current
		}
		if len(fields) < 2 {
			fmt.Println("usage: send FILE")
			return current
		}
		data, err := os.ReadFile(fields[1])
		if err != nil {
			fmt.Println("read error:", err)
			return current
		}
		sid := coord.SendFile(current, nil, fields[1], data)
		fmt.Printf("offered %s as transfer %08x\n", fields[1], sid)
		return current

	case "status":
		if current == "" {
			fmt.Println("no active peer")
			return current
		}
		fmt.Println(current, "is", coord.State(current, nil))
		return current

	case "quit", "exit":
		os.Exit(0)
		return current

	default:
		logger.Warn("unrecognized command", "line", line)
		return current
	}
}

// parseViaPath accepts an optional "via DIGI1,DIGI2" suffix.
func parseViaPath(rest []string) []string {
	if len(rest) < 2 || strings.ToLower(rest[0]) != "via" {
		return nil
	}
	return strings.Split(rest[1], ",")
}

func readYesNo() bool {
	var answer string
	fmt.Scanln(&answer)
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
