package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/konorlevich/resource_center/internal/config"
	"github.com/konorlevich/resource_center/internal/rest-service/acl"
	"github.com/konorlevich/resource_center/internal/rest-service/cache"
	"github.com/konorlevich/resource_center/internal/rest-service/database"
	"github.com/konorlevich/resource_center/internal/rest-service/events"
	"github.com/konorlevich/resource_center/internal/rest-service/handler"
	"github.com/konorlevich/resource_center/internal/rest-service/handler/middleware"
	"github.com/konorlevich/resource_center/internal/rest-service/hierarchy"
	"github.com/konorlevich/resource_center/internal/rest-service/ledger"
	"github.com/konorlevich/resource_center/internal/rest-service/reminder"
	"github.com/konorlevich/resource_center/internal/rest-service/sharing"
	"github.com/konorlevich/resource_center/internal/rest-service/storage"
	"github.com/konorlevich/resource_center/internal/rest-service/storage/files"
	local "github.com/konorlevich/resource_center/internal/storage-service/storage"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file, using the environment only")
	}
	c, err := config.LoadRest()
	if err != nil {
		log.WithError(err).Fatal("can't load config")
	}
	logger := log.New()
	if lvl, err := log.ParseLevel(c.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	l := logger.WithFields(log.Fields{
		"rest_port": c.Port,
		"db_driver": c.DBDriver,
		"auth_mode": c.AuthMode,
	})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer l.Println("got interruption signal")

	var db *gorm.DB
	if c.DBDriver == config.DriverPostgres {
		db, err = database.NewPostgresDb(c.DBFile)
	} else {
		db, err = database.NewDb(c.DBFile)
	}
	if err != nil {
		l.WithError(err).Fatal("failed to open database")
	}
	repo := database.NewRepository(db)

	var backend storage.Backend
	if c.StorageURL != "" {
		l.WithField("storage_url", c.StorageURL).Info("using remote blob storage")
		backend = files.NewFiles(c.StorageURL, l)
	} else {
		s, err := local.NewStorage(c.BlobDir, l)
		if err != nil {
			l.WithError(err).Fatal("can't open blob directory")
		}
		backend = s
	}
	blobs := storage.NewBlobs(backend, l)

	unseen := cache.NewUnseen(nil, l)
	if c.RedisAddr != "" {
		client, err := cache.Connect(ctx, c.RedisAddr, c.RedisPassword, c.RedisDB)
		if err != nil {
			l.WithError(err).Warn("redis is unavailable, unseen counts won't be cached")
		} else {
			defer client.Close()
			unseen = cache.NewUnseen(client, l)
		}
	}

	var pub events.Publisher = events.Nop{}
	if len(c.KafkaBrokers) > 0 {
		p := events.NewProducer(c.KafkaBrokers, c.KafkaTopic, l)
		defer func() {
			if err := p.Close(); err != nil {
				l.WithError(err).Error("can't close event producer")
			}
		}()
		pub = p
	}

	auth := middleware.CheckAuth(repo, l)
	if c.AuthMode == config.AuthJWT {
		auth = middleware.JWTAuth(repo, []byte(c.JWTSecret), l)
	}

	access := acl.NewEvaluator(repo, l)
	server := &http.Server{Addr: ":" + c.Port, Handler: handler.NewHandler(
		hierarchy.NewManager(repo, blobs, access, l),
		ledger.NewLedger(repo, blobs, access, pub, l),
		sharing.NewLedger(repo, unseen, pub, l),
		reminder.NewScheduler(repo, access, l),
		auth,
		l,
	)}

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
}
