package main

import (
	"context"
	"log/slog"
	"os"

	"gepi-backend/lib/restyutil"
	"gepi-backend/lib/scrapers/gepi/core"
	"gepi-backend/lib/serviceutil"
	"gepi-backend/lib/telemetry"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)

	_, err := telemetry.SetupFromEnv(ctx, "gepi-server")
	if os.IsNotExist(err) {
		slog.Warn("no telemetry.json5 found, traces and metrics go nowhere")
	} else if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	telemetry.InstrumentPerfStats(ctx)

	if !verbose {
		return
	}
	core.SetRestyInstrumentOutput(
		restyutil.NewFilesystemOutput("resty_telemetry/gepi_core"),
	)
}
