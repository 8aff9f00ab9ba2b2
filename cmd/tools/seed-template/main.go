// Command seed-template seeds or updates a channel's default stream template
// in the datastore.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"streampulse/internal/models"
	"streampulse/internal/storage"
)

func main() {
	var (
		jsonPath    string
		postgresDSN string
		channelID   string
		title       string
		description string
		category    string
	)

	flag.StringVar(&jsonPath, "json", "", "Path to the JSON datastore (store.json)")
	flag.StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string")
	flag.StringVar(&channelID, "channel", "", "Channel identifier the template belongs to")
	flag.StringVar(&title, "title", "", "Default stream title")
	flag.StringVar(&description, "description", "", "Default stream description")
	flag.StringVar(&category, "category", "", "Default stream category (defaults to OTHER)")
	flag.Parse()

	if jsonPath == "" && postgresDSN == "" {
		fatalf("either --json or --postgres-dsn must be provided")
	}
	if jsonPath != "" && postgresDSN != "" {
		fatalf("only one datastore option may be provided")
	}
	if strings.TrimSpace(channelID) == "" {
		fatalf("--channel is required")
	}
	if strings.TrimSpace(title) == "" {
		fatalf("--title is required")
	}

	parsedCategory := models.CategoryOther
	if strings.TrimSpace(category) != "" {
		parsed, err := models.ParseCategory(category)
		if err != nil {
			fatalf("invalid category %q: %v", category, err)
		}
		parsedCategory = parsed
	}

	repo, err := openRepository(jsonPath, postgresDSN)
	if err != nil {
		fatalf("open datastore: %v", err)
	}
	defer closeRepository(repo)

	channelID = strings.TrimSpace(channelID)

	created, err := templateMissing(repo, channelID)
	if err != nil {
		fatalf("check existing template: %v", err)
	}

	template, err := repo.UpsertTemplate(storage.UpsertTemplateParams{
		ChannelID:   channelID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Category:    parsedCategory,
	})
	if err != nil {
		fatalf("seed template: %v", err)
	}

	state := "updated"
	if created {
		state = "created"
	}
	fmt.Printf("Template for channel %s %s successfully (category %s).\n", template.ChannelID, state, template.Category)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func openRepository(jsonPath, postgresDSN string) (storage.Repository, error) {
	if jsonPath != "" {
		return storage.NewStorage(jsonPath)
	}
	return storage.NewPostgresRepository(postgresDSN)
}

func closeRepository(repo storage.Repository) {
	type closer interface {
		Close(context.Context) error
	}
	if c, ok := repo.(closer); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	}
}

func templateMissing(repo storage.Repository, channelID string) (bool, error) {
	_, err := repo.TemplateByChannel(channelID)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return false, nil
}
