package wire

import (
	"Homestead/internal/api"
	"Homestead/internal/api/config"
	"Homestead/internal/api/handler"
	"Homestead/internal/job"
	"Homestead/internal/pkg/cron"
	"Homestead/internal/pkg/kafka"
	"Homestead/internal/pkg/mongo"
	"Homestead/internal/pkg/redis"
	"Homestead/internal/pkg/util"
	"Homestead/internal/pkg/ws"
	"Homestead/internal/service"
	"time"

	"github.com/gin-gonic/gin"
	mongoDB "go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/time/rate"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router              *gin.Engine
	Registry            *ws.Registry
	NotificationRepo    mongo.NotificationRepo
	NotificationService service.NotificationService
	KafkaManager        *kafka.ConsumerManager // 未启用 Kafka 时为 nil
	CronMgr             *cron.Manager
}

func BuildApplication(db *mongoDB.Database, cfg *config.Config) (*ApplicationContainer, error) {
	notificationRepo := mongo.NewNotificationRepo(db)
	registry := ws.NewRegistry()

	var snapshotCache service.SnapshotCache
	if redis.Enabled() {
		snapshotCache = redis.NewSnapshotCache(util.SecDuration(cfg.Broadcast.SnapshotCacheTTL, 5*time.Minute))
	}

	notificationService := service.NewNotificationService(notificationRepo, registry, snapshotCache, service.NotificationOptions{
		GraceDelay: util.MsDuration(cfg.Broadcast.GraceDelayMs, 100*time.Millisecond),
	})

	handlers := &api.HandlersGroup{
		NotificationHandler: handler.NewNotificationHandler(notificationService),
		WSHandler: handler.NewWsHandler(registry, notificationService, ws.ClientOptions{
			SendBuffer:   cfg.Broadcast.SendBuffer,
			WriteTimeout: util.SecDuration(cfg.Broadcast.WriteTimeout, ws.WriteWait),
			SnapshotRate: rate.Limit(cfg.Broadcast.SnapshotRate),
			PongWait:     util.SecDuration(cfg.Broadcast.PongWait, ws.PongWait),
		}),
	}

	router := api.SetupRouter(handlers)

	var kafkaMgr *kafka.ConsumerManager
	if cfg.Kafka.Enable {
		var err error
		kafkaMgr, err = kafka.NewConsumerManager(cfg, notificationService)
		if err != nil {
			return nil, err
		}
	}

	cronMgr := cron.NewCronManager(
		cfg.Cron,
		job.NewSnapshotResyncJob(notificationService),
		job.NewNotificationRetentionJob(notificationService, cfg.Cron.RetentionDays),
	)

	return &ApplicationContainer{
		Router:              router,
		Registry:            registry,
		NotificationRepo:    notificationRepo,
		NotificationService: notificationService,
		KafkaManager:        kafkaMgr,
		CronMgr:             cronMgr,
	}, nil
}
