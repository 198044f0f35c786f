// Command receiver-discovery finds Yamaha AV receivers on the local network and
// keeps them in a discovery inbox served over HTTP.
//
// Usage:
//
//	receiver-discovery [serve]
//	receiver-discovery recognize -file desc.xml -location http://192.168.1.50:49154/desc.xml
//	receiver-discovery token -subject panel
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/strefethen/receiver-discovery-go/internal/config"
	"github.com/strefethen/receiver-discovery-go/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		err = serve(cfg)
	case "recognize":
		err = runRecognize(cfg, args, os.Stdout)
	case "token":
		err = runToken(cfg, args, os.Stdout)
	default:
		err = fmt.Errorf("unknown command %q (want serve, recognize or token)", command)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func serve(cfg config.Config) error {
	addr := cfg.Host + ":" + cfg.Port

	handler, shutdownHandler, err := server.NewHandler(cfg, server.Options{})
	if err != nil {
		return fmt.Errorf("server init: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-shutdownCh
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := shutdownHandler(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("receiver-discovery listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	<-done
	return nil
}
