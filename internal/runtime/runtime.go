package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/acapi/internal/runtime/broker"
	configpkg "github.com/drblury/acapi/internal/runtime/config"
	errspkg "github.com/drblury/acapi/internal/runtime/errors"
	"github.com/drblury/acapi/internal/runtime/instrument"
	loggingpkg "github.com/drblury/acapi/internal/runtime/logging"
	"github.com/drblury/acapi/internal/runtime/payload"
	"github.com/drblury/acapi/internal/runtime/publisher"
)

var serveHTTP = func(srv *http.Server) error {
	return srv.ListenAndServe()
}

const shutdownTimeout = 5 * time.Second

// Dependencies holds optional collaborators for Boot. Leave fields nil for
// the defaults.
type Dependencies struct {
	// Notifier, when set, gets the publisher's handlers attached for the
	// configured namespace.
	Notifier *instrument.Notifier

	// Broker replaces the AMQP connection the publisher would open.
	Broker publisher.Broker
	// Dial replaces broker.DialFactory for the publisher's connection.
	Dial broker.DialFunc

	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Tracer     trace.Tracer
}

// Runtime is the lifecycle context for event forwarding. It is built once at
// process start and handed to whatever emits events. A Runtime without a
// publisher is disabled and every forwarding call is a no-op.
type Runtime struct {
	Conf   configpkg.Config
	Logger loggingpkg.ServiceLogger

	mu         sync.RWMutex
	publisher  *publisher.Publisher
	attachment *instrument.Attachment
	metrics    *publisher.Metrics

	httpServers   map[int]*http.ServeMux
	running       []*http.Server
	httpServersMu sync.Mutex
}

// Boot validates conf and, when forwarding is switched on, builds the
// publisher. An unspecified switch is not an error: forwarding stays off and
// an informational message is logged.
func Boot(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps Dependencies) (*Runtime, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	cfg := conf.WithDefaults()
	if err := configpkg.ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	r := &Runtime{Conf: cfg, Logger: log}

	switch {
	case !cfg.Specified():
		log.Info(fmt.Sprintf("No setting specified for '%s' - disabling publishing of events to local AMQP instance", configpkg.SettingName), nil)
		return r, nil
	case !cfg.Enabled():
		log.Info("Publishing of events to local AMQP instance is disabled", loggingpkg.LogFields{"setting": configpkg.SettingName})
		return r, nil
	}

	if cfg.MetricsEnabled {
		if err := r.setupMetrics(deps); err != nil {
			return nil, err
		}
	}

	pub, err := publisher.New(publisher.Options{
		AppID:     cfg.AppID,
		Namespace: cfg.Namespace,
		Logger:    log,
		Metrics:   r.metrics,
		Tracer:    deps.Tracer,
		Broker:    deps.Broker,
		BrokerOptions: broker.Options{
			URL:            cfg.AMQPURL,
			ConnectTimeout: cfg.ConnectTimeout,
			PublishTimeout: cfg.PublishTimeout,
			Logger:         log,
			Dial:           deps.Dial,
		},
	})
	if err != nil {
		return nil, err
	}
	r.publisher = pub

	if deps.Notifier != nil {
		attachment, err := instrument.Attach(deps.Notifier, cfg.Namespace, pub.Handlers(), log)
		if err != nil {
			_ = pub.Close()
			return nil, err
		}
		r.attachment = attachment
	}

	log.Info("Publishing of events to local AMQP instance enabled", loggingpkg.LogFields{
		"config":   cfg,
		"exchange": broker.ExchangeName,
		"queue":    broker.QueueName,
	})
	r.startHTTPServers()
	return r, nil
}

func (r *Runtime) setupMetrics(deps Dependencies) error {
	r.metrics = publisher.NewMetrics(deps.Registerer)
	if err := r.metrics.Register(); err != nil {
		return fmt.Errorf("register publisher metrics: %w", err)
	}
	if r.Conf.MetricsPort == 0 {
		return nil
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		if g, ok := deps.Registerer.(prometheus.Gatherer); ok {
			gatherer = g
		} else {
			gatherer = prometheus.DefaultGatherer
		}
	}
	r.RegisterHTTPHandler(r.Conf.MetricsPort, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return nil
}

// Enabled reports whether a publisher is held.
func (r *Runtime) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publisher != nil
}

// Publisher returns the active publisher, or nil when disabled.
func (r *Runtime) Publisher() *publisher.Publisher {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publisher
}

// Log forwards an event through the publisher. Payload keys are normalised
// first. When disabled it does nothing, including for a call that raced
// with Disable.
func (r *Runtime) Log(ctx context.Context, name string, startedAt, finishedAt time.Time, correlationID string, p map[string]any) error {
	pub := r.Publisher()
	if pub == nil {
		return nil
	}
	err := pub.Log(ctx, name, startedAt, finishedAt, correlationID, payload.FromMap(p))
	if errors.Is(err, errspkg.ErrBrokerClosed) {
		return nil
	}
	return err
}

// Disable detaches and closes the publisher. Later calls to Log and
// Reconnect do nothing.
func (r *Runtime) Disable() {
	r.mu.Lock()
	pub := r.publisher
	attachment := r.attachment
	r.publisher = nil
	r.attachment = nil
	r.mu.Unlock()

	if pub == nil {
		return
	}
	attachment.Detach()
	if err := pub.Close(); err != nil {
		r.Logger.Error("Failed to close broker connection", err, nil)
	}
	r.Logger.Info("Publishing of events to local AMQP instance disabled", nil)
}

// Reconnect makes the publisher reconnect on its next event. Call it in a
// forked child before the child emits anything.
func (r *Runtime) Reconnect() {
	if pub := r.Publisher(); pub != nil {
		pub.Reconnect()
	}
}

// Close disables forwarding and stops the HTTP servers.
func (r *Runtime) Close() error {
	r.Disable()
	return r.stopHTTPServers()
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start
// when Boot finishes.
func (r *Runtime) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	r.httpServersMu.Lock()
	defer r.httpServersMu.Unlock()

	if r.httpServers == nil {
		r.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := r.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		r.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (r *Runtime) startHTTPServers() {
	r.httpServersMu.Lock()
	defer r.httpServersMu.Unlock()

	for port, mux := range r.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.running = append(r.running, srv)
		r.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func(srv *http.Server) {
			if err := serveHTTP(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}(srv)
	}
}

func (r *Runtime) stopHTTPServers() error {
	r.httpServersMu.Lock()
	servers := r.running
	r.running = nil
	r.httpServersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
