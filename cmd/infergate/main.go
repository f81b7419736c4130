package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/infergate/infergate/proxy"
	"github.com/infergate/infergate/proxy/config"
)

var (
	version = "0"
	commit  = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the gateway config file")
	watchConfig := flag.Bool("watch-config", true, "rebuild the gateway when the config file changes")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		log.Printf("infergate %s (%s)", version, commit)
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// The gateway itself is immutable; config changes swap in a whole new
	// one. Requests in flight keep the gateway they started with.
	var gateway atomic.Pointer[proxy.Gateway]
	gateway.Store(proxy.New(cfg))

	server := &http.Server{
		Addr: cfg.Listen,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gateway.Load().ServeHTTP(w, r)
		}),
	}

	if *watchConfig {
		stopWatch, err := watchConfigFile(*configPath, &gateway)
		if err != nil {
			log.Printf("config watch disabled: %v", err)
		} else {
			defer stopWatch()
		}
	}

	go func() {
		log.Printf("infergate listening on %s, upstream %s", cfg.Listen, cfg.Upstream.BaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown incomplete: %v", err)
	}
}

// watchConfigFile reloads the config whenever the file is rewritten and, if
// it still validates, swaps a freshly built gateway into place. A broken
// config keeps the previous gateway running.
func watchConfigFile(path string, gateway *atomic.Pointer[proxy.Gateway]) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory: editors replace files rather than write in place
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := config.LoadConfig(path)
				if err != nil {
					log.Printf("ignoring config change: %v", err)
					continue
				}
				gateway.Store(proxy.New(cfg))
				log.Printf("config reloaded from %s", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config watch error: %v", err)
			}
		}
	}()

	return watcher.Close, nil
}
