package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/mtbar/concerts/internal/auth"
	"github.com/mtbar/concerts/internal/migrations"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "concertsctl",
		Usage: "Concerts bot admin client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://localhost:8080",
				Usage:   "Admin API base URL",
				EnvVars: []string{"CONCERTS_SERVER"},
			},
			&cli.Int64Flag{
				Name:    "telegram-user-id",
				Aliases: []string{"u"},
				Usage:   "Telegram user ID for JWT token",
				EnvVars: []string{"CONCERTS_ADMIN_ID"},
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Usage:   "JWT secret for token generation",
				EnvVars: []string{"JWT_SECRET"},
			},
			&cli.DurationFlag{
				Name:  "token-duration",
				Value: 10 * time.Minute,
				Usage: "Validity of the token used for API calls",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "generate-token",
				Usage: "Generate JWT token",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "duration",
						Value: 24 * time.Hour,
						Usage: "Token validity duration",
					},
				},
				Action: generateTokenAction,
			},
			{
				Name:  "events",
				Usage: "List events",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Filter by status: draft, published or cancelled",
					},
					&cli.Int64Flag{
						Name:  "id",
						Usage: "Show a single event",
					},
				},
				Action: eventsAction,
			},
			{
				Name:  "digest",
				Usage: "Print the digest",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "send",
						Usage: "Send the digest to all subscribed chats instead of printing it",
					},
				},
				Action: digestAction,
			},
			{
				Name:  "migrate",
				Usage: "Apply database migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "dsn",
						Usage:    "Postgres DSN",
						EnvVars:  []string{"PG_DSN"},
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "status",
						Usage: "Only print migration status",
					},
				},
				Action: migrateAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// generateTokenForUser creates a JWT token using the provided context
func generateTokenForUser(c *cli.Context, duration time.Duration) (string, error) {
	telegramUserID := c.Int64("telegram-user-id")
	jwtSecret := c.String("jwt-secret")

	if telegramUserID == 0 {
		return "", fmt.Errorf("--telegram-user-id is required")
	}
	if jwtSecret == "" {
		return "", fmt.Errorf("JWT_SECRET is required (set via env var or --jwt-secret flag)")
	}

	token, err := auth.NewJWTManager(jwtSecret).GenerateToken(telegramUserID, duration)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}

func generateTokenAction(c *cli.Context) error {
	duration := c.Duration("duration")

	token, err := generateTokenForUser(c, duration)
	if err != nil {
		return err
	}

	fmt.Printf("Generated JWT token for user %d (valid for %v):\n%s\n", c.Int64("telegram-user-id"), duration, token)
	return nil
}

func newClientFromContext(c *cli.Context) (*adminClient, error) {
	token, err := generateTokenForUser(c, c.Duration("token-duration"))
	if err != nil {
		return nil, err
	}
	return newAdminClient(c.String("server"), token), nil
}

func eventsAction(c *cli.Context) error {
	client, err := newClientFromContext(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	if id := c.Int64("id"); id > 0 {
		ev, err := client.Event(ctx, id)
		if err != nil {
			return err
		}
		printEventDetails(os.Stdout, ev)
		return nil
	}

	events, err := client.Events(ctx, c.String("status"))
	if err != nil {
		return err
	}
	printEvents(os.Stdout, events)
	return nil
}

func digestAction(c *cli.Context) error {
	client, err := newClientFromContext(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()

	if c.Bool("send") {
		if err := client.BroadcastDigest(ctx); err != nil {
			return err
		}
		fmt.Println("Digest queued for all subscribers")
		return nil
	}

	text, err := client.Digest(ctx)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func migrateAction(c *cli.Context) error {
	ctx := c.Context

	pool, err := pgxpool.New(ctx, c.String("dsn"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close connection: %v\n", closeErr)
		}
	}()

	if c.Bool("status") {
		return migrations.Status(ctx, db)
	}

	if err := migrations.Run(ctx, db); err != nil {
		return err
	}

	version, err := migrations.Version(ctx, db)
	if err != nil {
		return err
	}
	fmt.Printf("Database is at version %d\n", version)
	return nil
}
