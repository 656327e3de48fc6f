package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/reelpulse/reels_backend/apify"
	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/ingest"
	"bitbucket.org/reelpulse/reels_backend/models"
	"bitbucket.org/reelpulse/reels_backend/utils"
)

func main() {
	loop := flag.Bool("loop", false, "Keep draining until the inbox is empty instead of one batch.")
	flag.Parse()

	ctx := context.Background()

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	processor := ingest.NewProcessor(settings, apify.NewClient(settings))

	for {
		result, err := processor.Drain(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "drain failed: %v\n", err)
			os.Exit(1)
		}
		out, _ := utils.MarshalToJSON(result)
		fmt.Println(out)

		if !*loop {
			return
		}
		remaining, err := models.CountUnprocessedWebhooks(ctx, db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "count unprocessed: %v\n", err)
			os.Exit(1)
		}
		if remaining == 0 {
			return
		}
	}
}
