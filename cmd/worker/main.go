package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/kel/internal/ai"
	"github.com/suPer8Hu/kel/internal/chat"
	"github.com/suPer8Hu/kel/internal/config"
	"github.com/suPer8Hu/kel/internal/db"
	"github.com/suPer8Hu/kel/internal/settings"
	"github.com/suPer8Hu/kel/internal/store/rabbitmq"
)

const titleTimeout = 60 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.RabbitURL == "" {
		log.Fatalf("RABBIT_URL is required for the title worker")
	}

	gdb := db.Connect(cfg.DBDriver, cfg.DBDSN)
	models := append(chat.Models(), &settings.Settings{})
	if err := db.Migrate(gdb, models...); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	repo := chat.NewRepo(gdb)
	st := settings.NewStore(gdb)
	gateway := ai.NewGateway(st, ai.NewDefaultRegistry(cfg.ProviderEndpoints()), cfg.DefaultModel)
	refiner := chat.NewTitleRefiner(repo, gateway)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareQueues(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settler := rabbitmq.Settler{Ch: rabbitmq.Locked(ch), Queue: cfg.RabbitQueue}
	handle := func(ctx context.Context, job rabbitmq.TitleJob) error {
		jctx, cancel := context.WithTimeout(ctx, titleTimeout)
		defer cancel()
		return refiner.Refine(jctx, job.ConversationID)
	}

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				start := time.Now()
				err := settler.Settle(ctx, d, handle)
				switch {
				case errors.Is(err, rabbitmq.ErrBadMessage):
					log.Printf("worker=%d bad message: %v", workerID, err)
				case err != nil:
					log.Printf("title_job_failed worker=%d cost=%s err=%v", workerID, time.Since(start), err)
				default:
					if cost := time.Since(start); cost > 2*time.Second {
						log.Printf("title_job_timing worker=%d total=%s", workerID, cost)
					}
				}
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				close(jobs)
				wg.Wait()
				return
			}
			jobs <- d
		}
	}
}
