package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/customeros/mailsync/config"
	"github.com/customeros/mailsync/internal/database"
	"github.com/customeros/mailsync/server"
)

func main() {
	app := &cli.App{
		Name:  "mailsync",
		Usage: "mirror IMAP mailboxes into a local store",
		Before: func(c *cli.Context) error {
			log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.InitConfig()
	if err != nil {
		return nil, cli.Exit("Config initialization failed: "+err.Error(), 1)
	}
	return cfg, nil
}

func migrate(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.NewConnection(server.DatabaseConfig(cfg.MailsyncDatabaseConfig))
	if err != nil {
		return cli.Exit("Mailsync database initialization failed: "+err.Error(), 1)
	}
	if err := database.Migrate(db); err != nil {
		return cli.Exit("Database migration failed: "+err.Error(), 1)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Println("Mailsync starting up...")
	srv, err := server.NewServer(cfg)
	if err != nil {
		return cli.Exit("Server setup failed: "+err.Error(), 1)
	}
	if err := srv.Run(); err != nil {
		return cli.Exit("Server startup failed: "+err.Error(), 1)
	}
	log.Println("Shutdown complete")
	return nil
}
