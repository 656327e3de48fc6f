package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"bitbucket.org/reelpulse/reels_backend/config"
	"bitbucket.org/reelpulse/reels_backend/models"
	"bitbucket.org/reelpulse/reels_backend/utils"
)

// Seeds a workspace with a set of tracked accounts. Intended for new
// environments and local development.
func main() {
	name := flag.String("name", "", "Workspace name to create (required unless -workspace-id is given).")
	workspaceID := flag.String("workspace-id", "", "Existing workspace uuid to seed into.")
	usernames := flag.String("usernames", "", "Comma-separated usernames to track.")
	flag.Parse()

	ctx := context.Background()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	var wid uuid.UUID
	if strings.TrimSpace(*workspaceID) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(*workspaceID))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid workspace id: %v\n", err)
			os.Exit(1)
		}
		if _, err := models.GetWorkspaceById(ctx, db, parsed); err != nil {
			fmt.Fprintf(os.Stderr, "workspace %s: %v\n", parsed, err)
			os.Exit(1)
		}
		wid = parsed
	} else {
		if strings.TrimSpace(*name) == "" {
			fmt.Fprintln(os.Stderr, "-name or -workspace-id is required")
			os.Exit(1)
		}
		w := models.Workspace{Name: strings.TrimSpace(*name)}
		if err := db.WithContext(ctx).Create(&w).Error; err != nil {
			fmt.Fprintf(os.Stderr, "create workspace: %v\n", err)
			os.Exit(1)
		}
		wid = w.ID
		fmt.Printf("created workspace %s (%s)\n", w.Name, w.ID)
	}

	var created int
	for _, u := range utils.SplitAndTrim(*usernames) {
		m := models.Model{
			WorkspaceId: wid,
			Username:    u,
			Status:      models.ModelStatusPending,
		}
		if err := db.WithContext(ctx).Create(&m).Error; err != nil {
			fmt.Fprintf(os.Stderr, "create model %s: %v\n", u, err)
			continue
		}
		created++
		fmt.Printf("created model %s (%s)\n", m.Username, m.ID)
	}
	fmt.Printf("seeded %d models into workspace %s\n", created, wid)
}
