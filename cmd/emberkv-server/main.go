package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberkv/emberkv/pkg/catalog"
	"github.com/emberkv/emberkv/pkg/config"
	"github.com/emberkv/emberkv/pkg/kvstore"
	"github.com/emberkv/emberkv/pkg/logging"
	"github.com/emberkv/emberkv/pkg/maintenance"
	"github.com/emberkv/emberkv/pkg/server"
	"github.com/emberkv/emberkv/pkg/server/httpapi"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML configuration file")
		address    = flag.String("addr", "", "server address (overrides config)")
	)
	flag.Parse()

	log := logging.Default().Named("main")

	opts := config.DefaultOptions()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		opts = loaded
	}
	if *address != "" {
		opts.Address = *address
	}

	store := kvstore.NewStore[string]()
	cat := catalog.New(store)
	if err := cat.CreateDatabase("default", time.Now().Unix()); err != nil {
		log.Fatalf("failed to seed default database: %v", err)
	}

	log.Infof("emberkv server starting...")
	log.Infof("listening on: %s", opts.Address)

	srvConfig := &server.Config{Address: opts.Address}
	if opts.AdminToken != "" {
		hash, err := server.HashAdminToken(opts.AdminToken)
		if err != nil {
			log.Fatalf("failed to hash admin token: %v", err)
		}
		srvConfig.AdminTokenHash = hash
	}

	srv, err := server.New(store, srvConfig)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	router := httpapi.NewRouter(store)
	httpSrv := &http.Server{Addr: opts.HTTP.Address, Handler: router}
	go func() {
		log.Infof("http status API listening on: %s", opts.HTTP.Address)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("http server error: %v", err)
		}
	}()

	sched := maintenance.New(store)
	if err := sched.ScheduleOccupancyLog(opts.Maintenance.Schedule); err != nil {
		log.Fatalf("failed to schedule maintenance job: %v", err)
	}
	sched.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Infof("shutting down...")
		sched.Stop()
		httpSrv.Close()
		srv.Close()
	}()

	if err := srv.Listen(opts.Address); err != nil {
		log.Errorf("server error: %v", err)
	}
}
