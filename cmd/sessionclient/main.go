package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/models"
	"studyhub-backend/internal/reconnect"
)

// Reads commands from stdin, one per line:
//
//	start [subject]
//	pause | resume | break_start | break_end | end  [sessionId]
//	metrics key=value ...  [sessionId]
//
// The session id defaults to the last session started.
func main() {
	var (
		apiURL = flag.String("api", "http://localhost:8080", "API base URL")
		wsURL  = flag.String("ws", "", "WebSocket URL (default derived from -api)")
		token  = flag.String("token", os.Getenv("STUDYHUB_TOKEN"), "access token")
		debug  = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	if *token == "" {
		fmt.Fprintln(os.Stderr, "an access token is required (-token or STUDYHUB_TOKEN)")
		os.Exit(2)
	}
	if *wsURL == "" {
		*wsURL = "ws" + strings.TrimPrefix(strings.TrimRight(*apiURL, "/"), "http") + "/api/v1/ws"
	}

	mode := "production"
	if *debug {
		mode = "development"
	}
	log, err := logger.New(mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var (
		mu      sync.Mutex
		current string
	)
	onMessage := func(m models.ServerMessage) {
		if m.Type == models.MsgSessionStarted {
			mu.Lock()
			current = m.SessionID
			mu.Unlock()
		}
		out, _ := json.Marshal(m)
		fmt.Println(string(out))
	}

	ctrl := reconnect.NewController(
		&reconnect.WSDialer{URL: *wsURL},
		reconnect.TicketSource(nil, *apiURL, *token),
		reconnect.WithLogger(log),
		reconnect.WithMessageHandler(onMessage),
		reconnect.WithStateHandler(func(s reconnect.State) {
			fmt.Fprintf(os.Stderr, "[%s]\n", s)
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			mu.Lock()
			last := current
			mu.Unlock()

			msg, err := parseCommand(scanner.Text(), last)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				continue
			}
			if msg == nil {
				continue
			}
			if err := ctrl.Send(msg); err != nil {
				fmt.Fprintf(os.Stderr, "not sent: %v\n", err)
			}
		}
		ctrl.Close()
	}()

	if err := ctrl.Run(ctx); err != nil {
		switch {
		case errors.Is(err, reconnect.ErrUnauthorized):
			fmt.Fprintln(os.Stderr, "server rejected the connection; check the access token")
		case errors.Is(err, reconnect.ErrReconnectExhausted):
			fmt.Fprintln(os.Stderr, "connection lost; giving up after", reconnect.MaxAttempts, "attempts")
		default:
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func parseCommand(line, lastSession string) (*models.ClientMessage, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case models.MsgStart:
		data, _ := json.Marshal(models.StartData{Subject: strings.Join(args, " ")})
		return &models.ClientMessage{Type: cmd, Data: data}, nil

	case models.MsgPause, models.MsgResume, models.MsgBreakStart, models.MsgBreakEnd, models.MsgEnd:
		id := lastSession
		if len(args) > 0 {
			id = args[0]
		}
		if id == "" {
			return nil, fmt.Errorf("%s: no session id", cmd)
		}
		return &models.ClientMessage{Type: cmd, SessionID: id}, nil

	case "metrics":
		metrics := make(map[string]interface{})
		id := lastSession
		for _, a := range args {
			k, v, ok := strings.Cut(a, "=")
			if !ok {
				id = a
				continue
			}
			var val interface{}
			if err := json.Unmarshal([]byte(v), &val); err != nil {
				val = v
			}
			metrics[k] = val
		}
		if id == "" {
			return nil, fmt.Errorf("metrics: no session id")
		}
		data, _ := json.Marshal(models.MetricsData{Metrics: metrics})
		return &models.ClientMessage{Type: models.MsgUpdateMetrics, SessionID: id, Data: data}, nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}
