package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/macroforge/macroforge/internal/config"
	"github.com/macroforge/macroforge/internal/engine"
	"github.com/macroforge/macroforge/internal/httpapi"
	"github.com/macroforge/macroforge/internal/instance"
)

func main() {
	configPath := flag.String("config", "configs/macroforge.yaml", "service configuration file")
	status := flag.Bool("status", false, "show status of the running instance and exit")
	stop := flag.Bool("stop", false, "stop the running instance gracefully and exit")
	forceStop := flag.Bool("force-stop", false, "force-kill the running instance and exit")
	flag.Parse()

	basePath, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: determine working directory: %v\n", err)
		os.Exit(1)
	}
	if !filepath.IsAbs(*configPath) {
		*configPath = filepath.Join(basePath, *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: %v\n", err)
		os.Exit(1)
	}

	pidFilePath := filepath.Join(cfg.DataDir, "macroforge.pid")
	port := listenPort(cfg.ListenAddr)
	mgr := instance.NewManager(pidFilePath, port)

	if *status {
		printInstanceStatus(mgr)
		return
	}
	if *stop || *forceStop {
		stopRunningInstance(mgr, *forceStop)
		return
	}

	existing, err := mgr.CheckExisting()
	if err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: check existing instance: %v\n", err)
		os.Exit(1)
	}
	if existing != nil {
		resolver := instance.NewConflictResolver(mgr, instance.IsInteractive())
		if err := resolver.Resolve(existing); err != nil {
			fmt.Fprintf(os.Stderr, "macroforge: resolve instance conflict: %v\n", err)
			os.Exit(1)
		}
	}

	if err := mgr.AcquireLock(); err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: acquire instance lock: %v\n", err)
		os.Exit(1)
	}
	defer mgr.ReleaseLock()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: create data directory: %v\n", err)
		os.Exit(1)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: start engine: %v\n", err)
		os.Exit(1)
	}
	defer eng.Close()

	if err := mgr.WritePIDFile(os.Getpid(), port, cfg.DataDir); err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: write pid file: %v\n", err)
	}
	defer mgr.RemovePIDFile()

	srv := httpapi.New(eng)

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("macroforge listening on %s\n", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "macroforge: server error: %v\n", err)
			os.Exit(1)
		}
	case <-sigCh:
		fmt.Println("\nmacroforge shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "macroforge: graceful shutdown: %v\n", err)
		}
	}
}

func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 8787
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 8787
	}
	return port
}

func printInstanceStatus(mgr *instance.Manager) {
	info, err := mgr.CheckExisting()
	if err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: %v\n", err)
		os.Exit(1)
	}
	if info == nil {
		fmt.Println("no instance is running")
		return
	}
	fmt.Printf("running: pid %d, port %d, started %s, responding=%v\n", info.PID, info.Port, info.StartTime.Format(time.RFC3339), info.IsResponding)
}

func stopRunningInstance(mgr *instance.Manager, force bool) {
	info, err := mgr.CheckExisting()
	if err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: %v\n", err)
		os.Exit(1)
	}
	if info == nil {
		fmt.Println("no instance is running")
		return
	}
	if !force {
		if err := instance.SendShutdownRequest(info.Port); err == nil {
			fmt.Println("shutdown request sent")
			return
		}
		fmt.Println("graceful shutdown failed, force killing")
	}
	if err := instance.KillProcess(info.PID); err != nil {
		fmt.Fprintf(os.Stderr, "macroforge: %v\n", err)
		os.Exit(1)
	}
	_ = mgr.RemovePIDFile()
	fmt.Println("instance stopped")
}
