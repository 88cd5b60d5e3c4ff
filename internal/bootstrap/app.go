package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/cache"
	"gopherai-docqa/internal/config"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/pkg/logging"
	"gopherai-docqa/internal/pkg/pdfextract"
	"gopherai-docqa/internal/pkg/textsplit"
	"gopherai-docqa/internal/platform/database"
	rabbitmqClient "gopherai-docqa/internal/platform/rabbitmq"
	redisClient "gopherai-docqa/internal/platform/redis"
	"gopherai-docqa/internal/rag"
	"gopherai-docqa/internal/repository"
	"gopherai-docqa/internal/storage"
	"gopherai-docqa/internal/vectorindex"
	"gopherai-docqa/internal/vision"
	"gopherai-docqa/internal/worker"
)

type App struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	PurgeWorker *worker.StoragePurgeWorker
	Classifier  *vision.Classifier

	AuthService     *app.AuthService
	SessionService  *app.SessionService
	DocumentService *app.DocumentService
	ChatService     *app.ChatService

	StartedAt time.Time
}

type migratingIndex interface {
	vectorindex.Index
	Migrate(ctx context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logging.Init(cfg.App.LogLevel)

	a := &App{Config: cfg, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := database.New(ctx, cfg.Database.Driver, cfg.DSN())
	if err != nil {
		return err
	}
	a.DB = db
	if err := db.AutoMigrate(&model.User{}, &model.Session{}, &model.Document{}, &model.Message{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	var index migratingIndex
	if cfg.Index.Backend == "pgvector" {
		index = vectorindex.NewPGVectorIndex(db, cfg.LLM.EmbeddingDimension)
	} else {
		index = vectorindex.NewSQLIndex(db, cfg.LLM.EmbeddingDimension)
	}
	if err := index.Migrate(ctx); err != nil {
		return err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	a.Redis = redisCli
	historyCache := cache.NewHistoryCache(redisCli,
		time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	store, err := storage.NewMinioStore(ctx, storage.MinioOptions{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return err
	}

	mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	a.MQConn = mqConn
	purger := rabbitmqClient.NewPurgePublisher(mqConn, cfg.RabbitMQ.StoragePurgeQueue)
	a.PurgeWorker = worker.NewStoragePurgeWorker(mqConn, store, cfg.RabbitMQ.StoragePurgeQueue)
	if err := a.PurgeWorker.Start(ctx); err != nil {
		return fmt.Errorf("start storage purge worker failed: %w", err)
	}

	splitter, err := textsplit.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	if err != nil {
		return err
	}

	client := ai.NewOpenAICompatibleClient()
	embedder := ai.NewTextEmbedder(client, ai.EmbeddingConfig{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.EmbeddingModel,
		Dimensions: cfg.LLM.EmbeddingDimension,
	})
	generator := ai.NewGenerator(client, ai.ChatConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   1000,
		Temperature: 0.1,
	})

	var captioner app.Captioner
	if cfg.Caption.Provider == "onnx" {
		a.Classifier = vision.NewClassifier(cfg.Vision.ModelPath, cfg.Vision.LabelsPath, cfg.Vision.ONNXSharedLibPath, cfg.Vision.TopK)
		captioner = vision.NewLabelCaptioner(a.Classifier)
	} else {
		captioner = ai.NewImageCaptioner(client, ai.ChatConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.VisionModel,
			Temperature: 0.1,
		})
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	documentRepo := repository.NewDocumentRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	a.AuthService = app.NewAuthService(userRepo, cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.JWTExpireMinute)*time.Minute)
	a.SessionService = app.NewSessionService(sessionRepo, documentRepo, messageRepo, index, historyCache, purger)
	a.DocumentService = app.NewDocumentService(sessionRepo, documentRepo,
		app.ExtractorFunc(pdfextract.Extract), store, captioner, embedder, index, splitter,
		app.DocumentOptions{
			MaxUploadBytes:   cfg.Upload.MaxBytes,
			EmbedConcurrency: cfg.LLM.EmbedConcurrency,
			PresignTTL:       time.Duration(cfg.Storage.PresignMinutes) * time.Minute,
		})
	retriever := rag.NewRetriever(embedder, index, cfg.Index.TopK)
	a.ChatService = app.NewChatService(sessionRepo, messageRepo, historyCache, retriever,
		rag.NewAnswerer(generator), cfg.Index.TopK, cfg.LLM.MaxContextMessage)

	resumed, err := a.SessionService.ResumePendingDeletes(ctx)
	if err != nil {
		slog.Warn("resume pending session deletes incomplete", "resumed", resumed, "err", err)
	} else if resumed > 0 {
		slog.Info("resumed pending session deletes", "resumed", resumed)
	}
	return nil
}

func (a *App) Close() error {
	var closeErr error
	if a.PurgeWorker != nil {
		a.PurgeWorker.Close()
	}
	if a.Classifier != nil {
		a.Classifier.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		sqlDB, err := a.DB.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	return closeErr
}
