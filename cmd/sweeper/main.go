package main

import (
	"context"
	"log"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/okanat/filedock/internal/app"
)

// Retention sweep entrypoint. Deployed as a scheduled lambda; runs once and
// exits when invoked locally with DEV_MODE=true.
func main() {
	application := app.NewApp(context.Background())

	if os.Getenv("DEV_MODE") == "true" {
		if err := application.RunSweep(context.Background()); err != nil {
			log.Fatalf("sweep failed: %v", err)
		}
		return
	}

	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) error {
		return application.RunSweep(ctx)
	})
}
