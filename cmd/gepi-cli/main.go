package main

import (
	"context"

	"gepi-backend/cmd/gepi-cli/commands"
	"gepi-backend/lib/telemetry"
)

func main() {
	telemetry.SetupFromEnv(context.Background(), "gepi-cli")
	telemetry.InitSlog(true)
	commands.ExecuteContext(context.Background())
}
