// Package fxcrier provides the bus to uber-go/fx applications. Handlers
// provided into the crier.handlers value group are registered before the bus
// starts, and the bus is stopped with the application.
//
//	app := fx.New(
//		fxcrier.Module,
//		fx.Provide(fxcrier.AsHandler(NewAuditHandler)),
//	)
package fxcrier

import (
	"log/slog"

	"github.com/casualjim/crier"
	"github.com/casualjim/crier/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// HandlerGroup is the value group the module collects handlers from.
const HandlerGroup = "crier.handlers"

// Module provides a *crier.Bus bound to the application lifecycle.
var Module = fx.Module("crier",
	fx.Provide(New),
	fx.Invoke(func(*crier.Bus) {}),
)

// Params are the optional dependencies of the bus. Without a config the bus
// uses its defaults; without a logger it logs to slog.Default().
type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Config     *config.Config        `optional:"true"`
	Logger     *slog.Logger          `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
	Handlers   []crier.Handler       `group:"crier.handlers"`
}

// New builds the bus, registers the grouped handlers and hooks Start and Stop
// into the lifecycle.
func New(p Params) (*crier.Bus, error) {
	var options []crier.Option
	if p.Config != nil {
		options = append(options, p.Config.BusOptions(p.Logger)...)
	} else {
		options = append(options, crier.WithLogger(p.Logger))
	}
	if p.Registerer != nil {
		options = append(options, crier.WithMetrics(p.Registerer))
	}

	bus, err := crier.New(options...)
	if err != nil {
		return nil, err
	}
	for _, h := range p.Handlers {
		if err := bus.Register(h); err != nil {
			return nil, err
		}
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: bus.Start,
		OnStop:  bus.Stop,
	})
	return bus, nil
}

// AsHandler annotates a handler constructor so its result joins the handler
// group.
func AsHandler(constructor any) any {
	return fx.Annotate(
		constructor,
		fx.As(new(crier.Handler)),
		fx.ResultTags(`group:"`+HandlerGroup+`"`),
	)
}
