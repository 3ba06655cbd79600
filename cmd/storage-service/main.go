package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/konorlevich/resource_center/internal/config"
	"github.com/konorlevich/resource_center/internal/storage-service/handler"
	"github.com/konorlevich/resource_center/internal/storage-service/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file, using the environment only")
	}
	c, err := config.LoadStorage()
	if err != nil {
		log.WithError(err).Fatal("can't load config")
	}
	logger := log.New()
	if lvl, err := log.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	l := logger.WithFields(log.Fields{
		"storage_port": c.Port,
		"storage_dir":  c.Dir,
	})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s, err := storage.NewStorage(c.Dir, l)
	if err != nil {
		l.WithError(err).Fatal("can't open storage directory")
	}
	server := &http.Server{Addr: ":" + c.Port, Handler: handler.NewHandler(s, l)}

	go func() {
		l.Printf("listening to port %s\n", c.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.WithError(err).Fatal("listen and serve returned err")
		}
	}()
	defer func() {
		if err := server.Shutdown(context.Background()); err != nil {
			l.WithError(err).Error("handler shutdown returned an err")
		}
	}()

	<-ctx.Done()
	l.Println("got interruption signal")
}
