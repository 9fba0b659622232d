package cli

import (
	"context"
	"fmt"

	"anniversary_server/clock"
	"anniversary_server/config"
	"anniversary_server/logger"
	"anniversary_server/services"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
)

// App is the wired service graph shared by every command.
type App struct {
	Config config.Config
	Clock  clock.Clock

	Store      services.KeyPathStore
	ChangeFeed services.ChangeNotifier
	Redis      *redis.Client

	Pairing    *services.PairingService
	Messages   *services.MessageStore
	Tracker    *services.DeliveryStatusTracker
	Feed       *services.FeedService
	Scheduler  *services.DeliveryScheduler
	Runner     *services.TickRunner
	Media      *services.MediaService
	Dispatcher services.NotificationDispatcher

	closers []func() error
}

// NewApp connects the configured backends and builds the services.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg, Clock: clock.System()}
	log := logger.Get()

	if cfg.RedisAddr != "" {
		app.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		app.closers = append(app.closers, app.Redis.Close)
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		app.ChangeFeed = services.NewRedisChangeFeed(app.Redis, "")
		log.Info().Str("addr", cfg.RedisAddr).Msg("✅ connected to redis")
	} else {
		app.ChangeFeed = services.NewLocalChangeFeed()
	}

	switch cfg.StoreBackend {
	case config.StoreDynamoDB:
		client, err := services.InitializeDynamoDBClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Store = services.NewDynamoStore(client, cfg.TablePrefix, app.ChangeFeed)
		log.Info().Str("region", cfg.AWSRegion).Str("tablePrefix", cfg.TablePrefix).Msg("✅ DynamoDB store ready")
	default:
		app.Store = services.NewMemoryStore(app.ChangeFeed)
		log.Warn().Msg("⚠️ using in-memory store, data is lost on exit")
	}

	if cfg.AMQPURL != "" {
		dispatcher, closeFn, err := services.DialAMQPDispatcher(cfg.AMQPURL, cfg.NotificationQueue)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Dispatcher = dispatcher
		app.closers = append(app.closers, closeFn)
	} else {
		app.Dispatcher = services.LogDispatcher{}
	}

	var locker services.TickLocker = services.NewLocalTickLocker()
	if app.Redis != nil {
		locker = services.NewRedisTickLocker(app.Redis, cfg.TickLockTTL)
	}

	app.Pairing = services.NewPairingService(app.Store, app.Clock)
	app.Messages = services.NewMessageStore(app.Store, app.Clock)
	app.Tracker = services.NewDeliveryStatusTracker(app.Store, app.Messages, app.Clock)
	app.Feed = services.NewFeedService(app.Store, app.Messages, app.Tracker)
	app.Scheduler = services.NewDeliveryScheduler(app.Pairing, app.Messages, app.Dispatcher, locker)
	app.Scheduler.Backlog = services.BacklogPolicy(cfg.BacklogPolicy)
	app.Runner = services.NewTickRunner(app.Scheduler, app.Pairing, app.Clock, cfg.TickInterval, cfg.TickRetryInterval, cfg.TickWorkers)

	if cfg.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		app.Media = services.NewMediaService(s3.NewFromConfig(awsCfg), cfg.S3Bucket, app.Clock)
	}

	return app, nil
}

// RedisFeed returns the cross-instance change feed, or nil without Redis.
func (a *App) RedisFeed() *services.RedisChangeFeed {
	feed, _ := a.ChangeFeed.(*services.RedisChangeFeed)
	return feed
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Get().Warn().Err(err).Msg("⚠️ close failed")
		}
	}
	a.closers = nil
}
