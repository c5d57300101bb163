package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/suPer8Hu/kel/internal/ai"
	"github.com/suPer8Hu/kel/internal/capture"
	"github.com/suPer8Hu/kel/internal/chat"
	"github.com/suPer8Hu/kel/internal/config"
	"github.com/suPer8Hu/kel/internal/db"
	"github.com/suPer8Hu/kel/internal/folders"
	"github.com/suPer8Hu/kel/internal/httpapi"
	"github.com/suPer8Hu/kel/internal/httpapi/handlers"
	"github.com/suPer8Hu/kel/internal/settings"
	"github.com/suPer8Hu/kel/internal/store/rabbitmq"
	"github.com/suPer8Hu/kel/internal/store/redisstore"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb := db.Connect(cfg.DBDriver, cfg.DBDSN)
	models := append(chat.Models(), &settings.Settings{}, &folders.Folder{})
	if err := db.Migrate(gdb, models...); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	st := settings.NewStore(gdb)
	if err := st.Initialize(ctx); err != nil {
		log.Fatalf("settings init: %v", err)
	}

	repo := chat.NewRepo(gdb)
	gateway := ai.NewGateway(st, ai.NewDefaultRegistry(cfg.ProviderEndpoints()), cfg.DefaultModel)
	events := chat.NewBroadcaster()

	g, gctx := errgroup.WithContext(ctx)

	var opts []chat.Option
	if cmd, err := capture.NewCommand(cfg.CaptureCommand); err != nil {
		log.Printf("desktop capture disabled: %v", err)
	} else {
		var guard capture.WindowGuard = capture.NoopGuard{}
		if cfg.CaptureHideCommand != "" || cfg.CaptureShowCommand != "" {
			guard = capture.HookGuard{
				Exclude: capture.Hook(cfg.CaptureHideCommand),
				Include: capture.Hook(cfg.CaptureShowCommand),
			}
		}
		opts = append(opts, chat.WithCapture(capture.NewDesktop(cmd, guard)))
	}

	var inline *chat.InlineTitleQueue
	if cfg.TitlePolicy == config.TitlePolicySummary {
		if cfg.RabbitURL != "" {
			pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
			if err != nil {
				log.Fatalf("rabbit publisher: %v", err)
			}
			defer pub.Close()
			opts = append(opts, chat.WithTitleQueue(pub))
			log.Printf("title refinement via queue=%s", cfg.RabbitQueue)
		} else {
			inline = chat.NewInlineTitleQueue(chat.NewTitleRefiner(repo, gateway))
			opts = append(opts, chat.WithTitleQueue(inline))
			log.Printf("title refinement in-process")
		}
	}

	if cfg.RedisAddr != "" {
		client := redisstore.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer client.Close()
		if err := redisstore.Ping(ctx, client); err != nil {
			log.Fatalf("redis: %v", err)
		}
		relay := redisstore.NewRelay(client, cfg.RedisChannel, 256)
		unsubscribe := events.Subscribe(relay.Handle)
		defer unsubscribe()
		g.Go(func() error { return relay.Run(gctx) })
		log.Printf("relaying chat events to redis channel=%s", cfg.RedisChannel)
	}

	orch := chat.NewOrchestrator(repo, gateway, events, opts...)
	h := handlers.NewHandler(orch, chat.NewService(repo), events, st, folders.NewRepo(gdb))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end when the process is asked to stop
		BaseContext: func(net.Listener) context.Context { return gctx },
	}

	g.Go(func() error {
		log.Printf("kel listening addr=%s db=%s", cfg.HTTPAddr, cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Printf("kel shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := orch.Shutdown(sctx); err != nil {
			log.Printf("orchestrator shutdown: %v", err)
		}
		if inline != nil {
			inline.Wait()
		}
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("kel: %v", err)
	}
}
