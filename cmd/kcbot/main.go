package main

import (
	"log"

	"github.com/m3rciful/kcbot/bot"
	corecmd "github.com/m3rciful/kcbot/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        bot.LoadConfig,
		Bootstrap:         bot.Bootstrap,
	})
	if err != nil {
		log.Fatalf("kcbot: %v", err)
	}
}
