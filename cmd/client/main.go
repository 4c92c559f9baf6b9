package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/viralforge/fieldcapture/internal/app/bootstrap"
)

func main() {
	configPath := flag.String("config", "configs/client.yaml", "client config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runtime, err := bootstrap.NewClientRuntime(*configPath)
	if err != nil {
		log.Fatalf("bootstrap client: %v", err)
	}
	if err := runtime.Run(ctx); err != nil {
		log.Fatalf("run client: %v", err)
	}
}
