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

	"tradeledger/src/connectors"
	"tradeledger/src/gate"
	"tradeledger/src/handler"
	"tradeledger/src/repository"
	"tradeledger/src/valuation"
)

// Deps carries the wired services the HTTP surface exposes.
type Deps struct {
	Gate      *gate.Service
	Valuation *valuation.Service
	Orders    *repository.OrderRepository
	GateAudit *repository.GateRepository
	Venue     *connectors.Client
}

// NewRouter builds the API routes.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthcheck", handler.DefaultHealthHandler(deps.Venue))

	r.Route("/v2", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.SubmitOrderHandler(deps.Gate))
			r.Get("/", handler.ListOrdersHandler(deps.Orders))
			r.Get("/statistics", handler.OrderStatisticsHandler(deps.Orders))
			r.Get("/{id}", handler.GetOrderHandler(deps.Orders))
			r.Delete("/{id}", handler.CancelOrderHandler(deps.Gate))
		})

		r.Route("/gate", func(r chi.Router) {
			r.Get("/", handler.GateStatusHandler(deps.Gate))
			r.Post("/activate", handler.GateActivateHandler(deps.Gate))
			r.Post("/deactivate", handler.GateDeactivateHandler(deps.Gate))
			r.Get("/transitions", handler.GateTransitionsHandler(deps.GateAudit))
			r.Post("/emergency-stop", handler.EmergencyStopHandler(deps.Gate))
		})

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", handler.PortfolioSummaryHandler(deps.Valuation))
			r.Post("/close", handler.ClosePositionHandler(deps.Gate))
		})

		r.Get("/account", handler.AccountHandler(deps.Venue))
	})

	return r
}

// StartServer serves the API until SIGINT or SIGTERM, then shuts down
// gracefully.
func StartServer(port string, deps Deps) {
	r := NewRouter(deps)

	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
