package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"orderengine/cmd/worker"
	"orderengine/src/database"
	"orderengine/src/instances"
	"orderengine/src/repository"
	"orderengine/src/server"
	"orderengine/src/taskqueue"
	"orderengine/src/trigger"
)

var Version string

func main() {
	app := cli.NewApp()
	app.Name = "Order Engine CMD"
	app.Usage = "The order engine command line interface"

	app.Commands = []cli.Command{
		serverCMD,
		workerCMD,
		restoreCMD,
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	serverCMD = cli.Command{
		Name:        "server",
		Usage:       "run the operator API server",
		Action:      serverAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the operator-facing HTTP API`,
	}
	workerCMD = cli.Command{
		Name:        "worker",
		Usage:       "run the task queue worker",
		Action:      workerAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `Run the task queue workers and the broker status stream`,
	}
	restoreCMD = cli.Command{
		Name:        "restore",
		Usage:       "list tasks that survived a restart",
		Action:      restoreAction,
		ArgsUsage:   "",
		Flags:       []cli.Flag{},
		Description: `List persisted tasks waiting for an operator resume`,
	}
)

func serverAction(_ *cli.Context) error {

	logrus.Info("Starting server CMD")
	logrus.WithField("cmd", "server")

	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	orders := repository.NewOrderRepository()
	transactions := repository.NewTransactionRepository()

	manager := instances.NewManager()
	triggerService := trigger.NewService(orders, transactions, manager)

	// The task endpoints are served by the worker process, which owns the
	// live queue.
	config := server.GetConfig()
	server.StartServer(config.Port, server.Dependencies{
		Orders:  orders,
		Trigger: triggerService,
		Manager: manager,
	})

	return nil
}

func workerAction(_ *cli.Context) error {

	logrus.Info("Starting worker CMD")
	logrus.WithField("cmd", "worker")

	w := &worker.Worker{}
	err := w.Start()
	if err != nil {
		logrus.WithError(err).Error("Starting cmd")
		return err
	}

	return nil
}

// restoreAction prints the persisted tasks a crashed worker left behind.
func restoreAction(_ *cli.Context) error {

	logrus.Info("Starting restore CMD")
	if err := database.InitMainDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	queue := taskqueue.New(repository.NewTaskRepository())
	restored, err := queue.RestoreOnStartup(context.Background())
	if err != nil {
		logrus.WithError(err).Error("Failed to restore tasks")
		return err
	}

	for i := range restored {
		logrus.WithFields(logrus.Fields{
			"task_id":   restored[i].TaskID,
			"task_type": restored[i].TaskType,
			"status":    restored[i].Status,
			"priority":  restored[i].Priority,
		}).Info("Restorable task")
	}
	logrus.WithField("count", len(restored)).Info("Restore scan complete")

	return nil
}
