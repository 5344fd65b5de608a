package database

import (
	coreconfig "github.com/m3rciful/kcbot/core/config"
)

// Config is the database section of the application configuration.
type Config = coreconfig.DatabaseConfig
