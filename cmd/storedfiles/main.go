package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"stored-file-api/internal"
)

func main() {
	ctx := context.Background()

	app, err := internal.NewApp(ctx)
	if err != nil {
		log.Fatalf("init app failed: %v", err)
	}
	defer app.Close()

	if err = app.InitMQ(ctx); err != nil {
		app.Logger().Error("init message broker failed", zap.Error(err))
		app.Close()
		os.Exit(1)
	}
	app.InitControllers()

	if err = app.Run(ctx); err != nil {
		app.Logger().Sugar().Errorf("storedfiles stopped with error: %v", err)
		app.Close()
		os.Exit(1)
	}
}
