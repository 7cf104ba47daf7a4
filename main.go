package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	logger "github.com/sirupsen/logrus"

	"orderengine/src/database"
	"orderengine/src/instances"
	"orderengine/src/repository"
	"orderengine/src/server"
	"orderengine/src/trigger"
)

var (
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
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
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
