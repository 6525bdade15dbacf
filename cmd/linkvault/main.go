package main

import (
	"context"
	"log"

	"github.com/MrSnakeDoc/linkvault/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("❌ linkvault: %v", err)
	}
}
