package executors

import (
	"context"

	logger "github.com/sirupsen/logrus"

	"orderengine/src/connectors"
	"orderengine/src/instances"
	"orderengine/src/model"
	"orderengine/src/repository"
	"orderengine/src/server"
	"orderengine/src/taskqueue"
	"orderengine/src/trigger"
)

// StartWorker wires the task queue, the dependency resolver, the broker
// status stream and the operator HTTP API, then runs the worker pool until the
// context is canceled. extraHandlers lets callers plug task types this package
// does not own (analysis, instrument_expansion).
func StartWorker(ctx context.Context, extraHandlers map[string]taskqueue.Handler) error {
	config := GetConfig()
	connConfig := connectors.GetConfig()

	orders := repository.NewOrderRepository()
	transactions := repository.NewTransactionRepository()
	tasks := repository.NewTaskRepository()

	manager := instances.NewManager()
	triggerService := trigger.NewService(orders, transactions, manager)
	oracle := connectors.NewGoexPriceOracle()

	queue := taskqueue.New(tasks)

	riskManager := NewRiskManager(transactions, orders, triggerService, oracle)
	queue.RegisterHandler(model.TaskTypeSmartRiskManager, riskManager.Run)
	for taskType, handler := range extraHandlers {
		queue.RegisterHandler(taskType, handler)
	}
	for _, taskType := range []string{model.TaskTypeAnalysis, model.TaskTypeInstrumentExpansion} {
		if _, ok := extraHandlers[taskType]; !ok {
			logger.WithField("task_type", taskType).Warn("No handler registered for task type")
		}
	}

	restored, err := queue.RestoreOnStartup(ctx)
	if err != nil {
		return err
	}
	for i := range restored {
		logger.WithFields(map[string]interface{}{
			"task_id":   restored[i].TaskID,
			"task_type": restored[i].TaskType,
			"status":    restored[i].Status,
		}).Warn("Task survived restart, waiting for operator resume")
	}

	if connConfig.StreamURL != "" {
		stream := connectors.NewStatusStream(
			connConfig.StreamURL,
			config.StreamAPIKey,
			statusEventHandler(orders, triggerService),
		)
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Order status stream stopped")
			}
		}()
	} else {
		logger.Warn("BROKER_STREAM_URL not set, order status updates must arrive via API")
	}

	// The operator API lives with the queue: resume and cancel must act on
	// the live heap, not on another process's empty copy.
	serverConfig := server.GetConfig()
	go server.Serve(ctx, serverConfig.Port, server.Dependencies{
		Orders:  orders,
		Trigger: triggerService,
		Queue:   queue,
		Manager: manager,
	})

	logger.WithField("concurrency", config.WorkerConcurrency).Info("Starting task queue workers")
	queue.Run(ctx, config.WorkerConcurrency)
	return nil
}

// statusEventHandler maps broker stream events onto local orders and feeds
// them to the resolver. Unknown broker ids are skipped: the broker may push
// events for orders placed outside this engine.
func statusEventHandler(orders *repository.OrderRepository, triggerService *trigger.Service) connectors.StatusHandler {
	return func(ctx context.Context, event connectors.OrderStatusEvent) {
		order, err := orders.FindByBrokerOrderID(ctx, event.BrokerOrderID)
		if err != nil {
			logger.WithError(err).WithField("broker_order_id", event.BrokerOrderID).
				Error("Failed to resolve stream event")
			return
		}
		if order == nil {
			logger.WithField("broker_order_id", event.BrokerOrderID).
				Debug("Stream event for unknown order, skipping")
			return
		}

		if event.FilledQty > 0 {
			err = triggerService.ProcessFill(ctx, order.ID, event.FilledQty, event.FillPrice, event.Status)
		} else {
			err = triggerService.ProcessStatusChange(ctx, order.ID, event.Status, event.Reason)
		}
		if err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{
				"order_id": order.ID,
				"status":   event.Status,
			}).Error("Failed to process stream event")
		}
	}
}
