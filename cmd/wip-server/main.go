// Wip-server is a standalone widget MCP server.
//
// It publishes the widget manifests found in a directory as wip://
// resources and exposes a small set of demo tools, over either stdio
// (for subprocess use by wip-agent) or HTTP.
//
// Usage:
//
//	wip-server --input-dir resources/widgets --transport stdio
//	wip-server --input-dir resources/widgets --transport http --listen :9100
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/wiplab/wip-agent/internal/wipserver"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdin io.Reader, stdout io.Writer, stderr io.Writer, args []string) error {
	inputDir := "resources/widgets"
	transport := "stdio"
	listen := ":9100"

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--input-dir" && i+1 < len(args):
			inputDir = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--input-dir="):
			inputDir = strings.TrimPrefix(args[i], "--input-dir=")
		case args[i] == "--transport" && i+1 < len(args):
			transport = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--transport="):
			transport = strings.TrimPrefix(args[i], "--transport=")
		case args[i] == "--listen" && i+1 < len(args):
			listen = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--listen="):
			listen = strings.TrimPrefix(args[i], "--listen=")
		case args[i] == "-h" || args[i] == "--help":
			fmt.Fprintln(stdout, "usage: wip-server [--input-dir dir] [--transport stdio|http] [--listen addr]")
			return nil
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	// On stdio, stdout carries the protocol; logs must go to stderr.
	logOut := stdout
	if transport == "stdio" {
		logOut = stderr
	}
	logger := slog.New(slog.NewTextHandler(logOut, nil))

	registry, err := demoRegistry()
	if err != nil {
		return err
	}
	server := wipserver.New(registry, nil, logger)
	if err := server.LoadManifests(inputDir); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch transport {
	case "stdio":
		return server.RunStdio(ctx, stdin, stdout)
	case "http":
		logger.Info("wip-server listening", "addr", listen)
		httpSrv := &http.Server{Addr: listen, Handler: server, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			<-ctx.Done()
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			httpSrv.Shutdown(shutdownCtx)
		}()
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport %q", transport)
	}
}

// demoRegistry builds the built-in demo tools: a deterministic stock
// quote, a canned calendar, and an appointment-booking stub, enough to
// exercise the tool loop end-to-end without external services.
func demoRegistry() (*wipserver.Registry, error) {
	reg := wipserver.NewRegistry()

	tools := []*wipserver.Tool{demoStockTool(), demoCalendarTool(), demoBookingTool()}
	for _, t := range tools {
		if err := reg.Register(t); err != nil {
			return nil, fmt.Errorf("register demo tools: %w", err)
		}
	}
	return reg, nil
}

func demoStockTool() *wipserver.Tool {
	return &wipserver.Tool{
		Name:        "get-stock-price",
		Description: "Get the current price for a stock ticker symbol",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{"type": "string", "description": "Ticker symbol, e.g. ACME"},
			},
			"required": []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol, _ := args["symbol"].(string)
			if symbol == "" {
				return "", fmt.Errorf("symbol is required")
			}
			symbol = strings.ToUpper(symbol)
			out, _ := json.Marshal(map[string]any{
				"symbol":   symbol,
				"price":    quote(symbol),
				"currency": "USD",
				"as_of":    time.Now().UTC().Format(time.RFC3339),
			})
			return string(out), nil
		},
	}
}

func demoCalendarTool() *wipserver.Tool {
	return &wipserver.Tool{
		Name:        "list-calendar-events",
		Description: "List upcoming calendar events",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"days": map[string]any{"type": "integer", "description": "Lookahead window in days (default 7)"},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			days := 7
			if d, ok := args["days"].(float64); ok && d > 0 {
				days = int(d)
			}
			now := time.Now()
			events := []map[string]any{
				{"title": "Team standup", "start": now.Add(18 * time.Hour).Format(time.RFC3339), "duration_minutes": 15},
				{"title": "Quarterly review", "start": now.Add(49 * time.Hour).Format(time.RFC3339), "duration_minutes": 60},
				{"title": "Dentist", "start": now.Add(96 * time.Hour).Format(time.RFC3339), "duration_minutes": 45},
			}
			var within []map[string]any
			cutoff := now.AddDate(0, 0, days)
			for _, e := range events {
				start, _ := time.Parse(time.RFC3339, e["start"].(string))
				if start.Before(cutoff) {
					within = append(within, e)
				}
			}
			out, _ := json.Marshal(map[string]any{"events": within})
			return string(out), nil
		},
	}
}

func demoBookingTool() *wipserver.Tool {
	return &wipserver.Tool{
		Name:        "create-appointment",
		Description: "Book a new appointment on the calendar",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":            map[string]any{"type": "string", "description": "Appointment title"},
				"start":            map[string]any{"type": "string", "description": "Start time, RFC 3339"},
				"duration_minutes": map[string]any{"type": "integer", "description": "Length in minutes (default 30)"},
			},
			"required": []string{"title", "start"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			title, _ := args["title"].(string)
			if title == "" {
				return "", fmt.Errorf("title is required")
			}
			startStr, _ := args["start"].(string)
			start, err := time.Parse(time.RFC3339, startStr)
			if err != nil {
				return "", fmt.Errorf("start must be RFC 3339: %w", err)
			}
			duration := 30
			if d, ok := args["duration_minutes"].(float64); ok && d > 0 {
				duration = int(d)
			}
			out, _ := json.Marshal(map[string]any{
				"status":           "confirmed",
				"id":               uuid.NewString(),
				"title":            title,
				"start":            start.UTC().Format(time.RFC3339),
				"duration_minutes": duration,
			})
			return string(out), nil
		},
	}
}

// quote derives a stable pseudo-price from the symbol so repeated
// calls in a demo session agree with each other.
func quote(symbol string) float64 {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	cents := 1000 + h.Sum32()%99000
	return float64(cents) / 100
}
