package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"orderengine/src/handler"
	"orderengine/src/instances"
	"orderengine/src/repository"
	"orderengine/src/taskqueue"
	"orderengine/src/trigger"
)

// Dependencies carries the services the HTTP surface is built from. Queue and
// Manager are optional: the task and registry routes are only mounted in the
// process that owns them, so a resume or cancel always reaches the live queue.
type Dependencies struct {
	Orders  *repository.OrderRepository
	Trigger *trigger.Service
	Queue   *taskqueue.Queue
	Manager *instances.Manager
}

// NewRouter wires the operator-facing routes.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})

	r.Get("/orders", handler.SearchOrdersHandler(deps.Orders))
	r.Post("/orders/{orderID}/retry", handler.RetryOrderHandler(deps.Trigger))
	r.Post("/transactions/{transactionID}/ensure-protective", handler.EnsureProtectiveOrdersHandler(deps.Trigger))

	if deps.Queue != nil {
		r.Get("/tasks/{taskID}", handler.TaskStatusHandler(deps.Queue))
		r.Delete("/tasks/{taskID}", handler.CancelTaskHandler(deps.Queue))
		r.Post("/tasks/{taskID}/resume", handler.ResumeTaskHandler(deps.Queue))
		r.Get("/queue/size", handler.QueueSizeHandler(deps.Queue))
	}
	if deps.Manager != nil {
		r.Get("/registry/stats", handler.RegistryStatsHandler(deps.Manager))
	}

	return r
}

// Serve runs the HTTP server until the context is canceled, then shuts down
// gracefully.
func Serve(ctx context.Context, port string, deps Dependencies) {
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(deps),
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}

// StartServer runs the HTTP server until SIGINT or SIGTERM.
func StartServer(port string, deps Dependencies) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	Serve(ctx, port, deps)
}
