// cmd/logtriggerd/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/colebrumley/logtrigger/internal/config"
	"github.com/colebrumley/logtrigger/internal/daemon"
	"github.com/colebrumley/logtrigger/internal/mcp"
)

const defaultMCPPort = "9878"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "mcp-server":
			runMCPServer()
			return
		case "mcp-http-server":
			runMCPHTTPServer()
			return
		}
	}

	runDaemon()
}

func configPath() string {
	if p := os.Getenv("LOGTRIGGER_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(config.ExpandHome("~/.logtrigger"), "config.yaml")
}

func newMCPServer() (*mcp.Server, error) {
	cfg, err := config.LoadGlobal(configPath())
	if err != nil {
		return nil, err
	}
	triggersPath := os.Getenv("LOGTRIGGER_TRIGGERS")
	if triggersPath == "" {
		triggersPath = cfg.Daemon.TriggersFile
	}
	var dbPath string
	if cfg.History.Enabled {
		dbPath = cfg.History.Path
	}
	return mcp.NewServer(dbPath, triggersPath)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func runMCPServer() {
	server, err := newMCPServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating MCP server: %v\n", err)
		os.Exit(1)
	}
	defer server.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if err := server.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func runMCPHTTPServer() {
	server, err := newMCPServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating MCP server: %v\n", err)
		os.Exit(1)
	}
	defer server.Close()

	port := os.Getenv("LOGTRIGGER_MCP_PORT")
	if port == "" {
		port = defaultMCPPort
	}
	addr := "127.0.0.1:" + port

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Fprintf(os.Stderr, "MCP HTTP server listening on %s\n", addr)
	if err := server.RunHTTP(ctx, addr); err != nil {
		fmt.Fprintf(os.Stderr, "MCP HTTP server error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon() {
	d := daemon.New(configPath(), os.Getenv("LOGTRIGGER_TRIGGERS"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nReceived shutdown signal")
		cancel()
	}()

	if err := d.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
		os.Exit(1)
	}
}
