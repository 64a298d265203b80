// Command main runs the database seeder for Oristagram.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bearkuang/oristagram/internal/config"
	"github.com/bearkuang/oristagram/internal/database"
	"github.com/bearkuang/oristagram/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 50, "Number of users to create")
	numPosts := flag.Int("posts", 200, "Number of posts to create")
	numReels := flag.Int("reels", 40, "Number of reels to create")
	conversations := flag.Int("conversations", 20, "Number of chat conversations to create")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	fastHash := flag.Bool("fast-hash", false, "Hash the shared password with minimum bcrypt cost")
	dryRun := flag.Bool("dry-run", false, "Generate data without writing to the database")
	preset := flag.String("preset", "", "Apply a named seeder preset (see -list-presets)")
	listPresets := flag.Bool("list-presets", false, "Print the built-in presets and exit")
	flag.Parse()

	if *listPresets {
		for _, name := range seed.PresetNames() {
			log.Println(name)
		}
		return
	}

	log.Println("🌱 Database Seeder")
	log.Println("==================")

	if *preset != "" {
		log.Printf("Applying preset: %s (ignoring size flags)\n", *preset)
	} else {
		log.Printf("Target: %d users, %d posts, %d reels, clean=%v\n", *numUsers, *numPosts, *numReels, *shouldClean)
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	s := seed.NewSeeder(db, seed.Options{
		NumUsers:      *numUsers,
		NumPosts:      *numPosts,
		NumReels:      *numReels,
		Conversations: *conversations,
		ShouldClean:   *shouldClean,
		FastHash:      *fastHash,
		DryRun:        *dryRun,
	})

	ctx := context.Background()
	if *preset != "" {
		err = s.ApplyPreset(ctx, *preset)
	} else {
		err = s.Run(ctx)
	}
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✨ All done! Your database is now populated with test data.")
	log.Printf("📧 All test users have the password: %s", seed.DefaultPassword)
}
