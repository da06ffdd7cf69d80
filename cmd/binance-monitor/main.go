package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/iamOgunyinka/binance-monitor/internal/bootstrap"
	"github.com/iamOgunyinka/binance-monitor/internal/control"
	"github.com/iamOgunyinka/binance-monitor/internal/feed"
	"github.com/iamOgunyinka/binance-monitor/internal/gateway"
	"github.com/iamOgunyinka/binance-monitor/internal/notify"
	"github.com/iamOgunyinka/binance-monitor/internal/persistence"
	"github.com/iamOgunyinka/binance-monitor/internal/pipeline"
	"github.com/iamOgunyinka/binance-monitor/internal/pricetable"
	"github.com/iamOgunyinka/binance-monitor/internal/reconcile"
	"github.com/iamOgunyinka/binance-monitor/internal/scheduler"
	"github.com/iamOgunyinka/binance-monitor/pkg/config"
	"github.com/iamOgunyinka/binance-monitor/pkg/crypto"
	"github.com/iamOgunyinka/binance-monitor/pkg/db"
	"github.com/iamOgunyinka/binance-monitor/pkg/exchanges/binance/spot"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	flags, err := bootstrap.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("❌ parse flags: %v", err)
	}

	appConfig, err := bootstrap.Load(flags.ConfigPath)
	if err != nil {
		log.Fatalf("❌ load config %s: %v", flags.ConfigPath, err)
	}

	dbCreds, err := appConfig.SelectDatabase(flags.LaunchType)
	if err != nil {
		log.Fatalf("❌ select database for launch type %q: %v", flags.LaunchType, err)
	}

	env := config.Load()
	dbPath := dbCreds.DBDNS
	if env.DBPathOverride != "" {
		dbPath = env.DBPathOverride
	}
	log.Printf("🔄 starting binance-monitor, launch type %q, db %s", flags.LaunchType, dbPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("❌ open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("❌ apply migrations: %v", err)
	}

	keys, err := crypto.NewKeyManager()
	if err != nil {
		log.Fatalf("❌ load encryption keys: %v", err)
	}

	// C7 queues: one carries decoded user-stream events (C3 -> C8+C9),
	// the other carries reconciler events (C5 -> C6), and the last is
	// the scheduler's self-feeding task/result queue.
	userStreamQueue := pipeline.NewQueue[any]()
	hostEventQueue := pipeline.NewQueue[any]()
	taskQueue := pipeline.NewQueue[any]()

	// C9 + C11: chat-id resolver and notifier, sharing the user-stream
	// queue's single consumer loop with C8's persistence sink.
	resolver := notify.NewChatResolver(ctx, appConfig.BotToken, database)
	notifier := notify.NewNotifier(appConfig.BotToken, resolver)
	sink := persistence.New(database, userStreamQueue)
	go notify.RunPipeline(ctx, userStreamQueue, notifier, sink)
	go persistence.RunKeepalive(ctx, database)

	// C6: stream supervisor, fed by C5's reconciler. Bootstrap first so
	// every account on file is already streaming before the reconciler's
	// first diff tick.
	testnet := isTestnetLaunch(flags.LaunchType)
	supervisor := gateway.New(database, keys, userStreamQueue, testnet)
	if err := supervisor.Bootstrap(ctx); err != nil {
		log.Fatalf("❌ bootstrap gateway: %v", err)
	}
	reconciler := reconcile.New(database, hostEventQueue)
	go reconciler.Run(ctx)
	go supervisor.ConsumeFrom(ctx, hostEventQueue)

	// C1 + C2: shared price table fed by the public ticker stream.
	table := pricetable.New()
	restClient := spot.New(spot.Config{Testnet: testnet})
	marketFeed := feed.New(table, restClient, testnet)
	marketFeed.Start(ctx)

	// C10: task scheduler, sharing the price table and its own queue.
	sched := scheduler.New(database, table, taskQueue)
	go sched.Run(ctx)
	go sched.Bootstrap(ctx)

	// Control plane: thin HTTP surface forwarding into C5's authoritative
	// table (accounts) and C10's input queue (tasks).
	server := control.NewServer(database, keys, taskQueue, appConfig.JWT)
	go func() {
		addr := flags.IP + ":" + flags.Port
		if err := server.Start(addr); err != nil {
			log.Fatalf("❌ control plane: %v", err)
		}
	}()
	log.Printf("✅ control plane listening on %s:%s", flags.IP, flags.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("🔄 shutting down")
	cancel()
	supervisor.Stop()
	userStreamQueue.Close()
	hostEventQueue.Close()
	taskQueue.Close()
}

// isTestnetLaunch has no operator-facing flag of its own; the YAML
// config carries one database entry per launch type, so
// testnet-vs-mainnet is fixed by which -y value was handed in rather
// than a runtime switch.
func isTestnetLaunch(launchType string) bool {
	return launchType == "development" || launchType == "testnet"
}
