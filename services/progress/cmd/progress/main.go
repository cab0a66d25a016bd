package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/example/lems/internal/platform/amqpconn"
	"github.com/example/lems/internal/platform/auth"
	"github.com/example/lems/internal/platform/config"
	"github.com/example/lems/internal/platform/httpserver"
	"github.com/example/lems/internal/platform/logging"
	"github.com/example/lems/internal/platform/mongoconn"
	"github.com/example/lems/internal/platform/natsconn"
	"github.com/example/lems/internal/platform/run"
	"github.com/example/lems/internal/progression"
	svcconfig "github.com/example/lems/services/progress/internal/config"
	"github.com/example/lems/services/progress/internal/grpcapi"
	"github.com/example/lems/services/progress/internal/handlers"
	"github.com/example/lems/services/progress/internal/outline"
	"github.com/example/lems/services/progress/internal/ratelimit"
	"github.com/example/lems/services/progress/internal/relay"
	"github.com/example/lems/services/progress/internal/store"
	"github.com/example/lems/services/progress/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	log = logging.ForService(log, cfg.ServiceName)
	defer func() { _ = log.Sync() }()

	svcCfg, err := svcconfig.Load()
	if err != nil {
		log.Error("config", zap.Error(err))
		run.Exit(1)
	}

	courseOutline, err := outline.Load(svcCfg.OutlineFile)
	if err != nil {
		log.Error("load outline", zap.Error(err))
		run.Exit(1)
	}

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 15*time.Second)
	backend, err := store.Open(openCtx, store.Options{
		Backend:     svcCfg.StoreBackend,
		Production:  cfg.IsProduction(),
		DatabaseURL: svcCfg.DatabaseURL,
		RedisURL:    svcCfg.RedisURL,
		Mongo:       mongoconn.LoadConfig(),
		Breaker: store.BreakerSettings{
			MaxRequests:      svcCfg.CBMaxRequests,
			Interval:         svcCfg.CBInterval,
			Timeout:          svcCfg.CBTimeout,
			FailureThreshold: svcCfg.CBFailureThreshold,
		},
		Logger: log,
	})
	cancelOpen()
	if err != nil {
		log.Error("open progress store", zap.String("backend", svcCfg.StoreBackend), zap.Error(err))
		run.Exit(1)
	}
	log.Info("progress store ready", zap.String("backend", backend.Name), zap.Int("sections", len(courseOutline.Sections)))

	tracker, err := progression.New(backend, courseOutline, progression.WithLogger(log))
	if err != nil {
		log.Error("tracker", zap.Error(err))
		run.Exit(1)
	}

	var (
		nc       *nats.Conn
		js       nats.JetStreamContext
		amqpConn *amqpconn.Client
		pub      relay.Publisher
	)
	switch svcCfg.Relay {
	case svcconfig.RelayNATS:
		nc, err = natsconn.Connect(natsconn.Options{URL: svcCfg.NATSURL, Name: cfg.ServiceName})
		if err != nil {
			log.Error("nats connect", zap.Error(err))
			run.Exit(1)
		}
		jsPub, err := relay.NewJetStream(nc)
		if err != nil {
			log.Error("jetstream", zap.Error(err))
			run.Exit(1)
		}
		js = jsPub.Context()
		pub = jsPub
	case svcconfig.RelayAMQP:
		amqpConn, err = amqpconn.Dial(svcCfg.AMQPURL, svcCfg.AMQPExchange, log)
		if err != nil {
			log.Error("amqp dial", zap.Error(err))
			run.Exit(1)
		}
		pub = amqpConn
	}

	var changes *relay.Relay
	if pub != nil {
		changes = relay.New(pub, log)
		changes.Attach(tracker.Notifier())
		log.Info("change relay enabled", zap.String("relay", svcCfg.Relay))
	}

	limiter := ratelimit.New(svcCfg.RateLimitRPS, svcCfg.RateLimitBurst)
	verifier := auth.JWTVerifier{Secret: []byte(svcCfg.JWTSecret), Issuer: svcCfg.JWTIssuer}

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{
		Logger: log,
		ReadyFunc: func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return backend.Ping(ctx)
		},
	})
	handlers.Register(r, handlers.Deps{
		Tracker:  tracker,
		Verifier: verifier,
		Limiter:  limiter,
		Log:      log,
	})
	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Logger: log, Router: r})

	lis, err := net.Listen("tcp", svcCfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		grpcapi.AccessLog(log),
		grpcapi.RateLimit(limiter),
	))
	healthSrv := grpcapi.Register(grpcSrv, &grpcapi.Service{Tracker: tracker, Log: log})

	relayDone := make(chan struct{})
	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			defer close(relayDone)
			changes.Run(ctx)
		}()

		if js != nil {
			consumer := &worker.Consumer{Tracker: tracker, Log: log}
			if err := consumer.Start(ctx, js); err != nil {
				// Commands are optional; the HTTP and gRPC APIs still work.
				log.Warn("progress command consumer disabled", zap.Error(err))
			}
		}

		go func() {
			log.Info("grpc server starting", zap.String("addr", svcCfg.GRPCAddr))
			if err := grpcSrv.Serve(lis); err != nil {
				log.Error("grpc serve", zap.Error(err))
			}
		}()
		return srv.Start()
	})

	runner.Graceful(
		srv.Shutdown,
		func(ctx context.Context) error {
			healthSrv.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
			stopped := make(chan struct{})
			go func() {
				grpcSrv.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-ctx.Done():
				grpcSrv.Stop()
			}
			return nil
		},
		func(ctx context.Context) error {
			select {
			case <-relayDone:
			case <-ctx.Done():
			}
			return nil
		},
		func(context.Context) error {
			if nc != nil {
				return nc.Drain()
			}
			return nil
		},
		func(context.Context) error {
			if amqpConn != nil {
				return amqpConn.Close()
			}
			return nil
		},
		backend.Close,
	)

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}
