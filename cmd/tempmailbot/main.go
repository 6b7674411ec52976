// Command tempmailbot runs the Telegram temp-mail bot.
package main

import (
	"log"

	"github.com/m3rciful/tempmailbot/core/bootstrap"
	corecmd "github.com/m3rciful/tempmailbot/core/cmd"
	coreconfig "github.com/m3rciful/tempmailbot/core/config"
	"github.com/m3rciful/tempmailbot/internal/app"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("tempmailbot: %v", err)
	}
}

func run() error {
	var application *app.App
	defer func() {
		if application == nil {
			return
		}
		if err := application.Close(); err != nil {
			log.Printf("journal close: %v", err)
		}
	}()

	return corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		Bootstrap: func(cfg *coreconfig.Config) (corecmd.TelegramApp, error) {
			infra, err := bootstrap.Run(bootstrap.Options{Config: cfg})
			if err != nil {
				return nil, err
			}
			a, err := app.New(cfg, infra)
			if err != nil {
				_ = infra.Close()
				return nil, err
			}
			application = a
			return a, nil
		},
	})
}
