package worker

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"orderengine/src/database"
	"orderengine/src/executors"
)

type Worker struct {
}

func (w *Worker) Start() error {
	_ = GetConfig()
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to main database")
		return err
	}

	logrus.Info("Starting order engine worker")

	if err := executors.StartWorker(ctx, nil); err != nil {
		logrus.WithError(err).Error("Failed to start worker")
		return err
	}

	return nil
}
