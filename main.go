package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/siparmail/sipar-server/apiroutes"
	"github.com/siparmail/sipar-server/global"
	"github.com/siparmail/sipar-server/queue"
	"github.com/siparmail/sipar-server/repository"
	"github.com/siparmail/sipar-server/types"
)

func initRedisClient(conf global.Config) *redis.Client {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Host + ":" + strconv.Itoa(conf.Redis.Port),
		Username: conf.Redis.Username,
		Password: conf.Redis.Password,
		DB:       1,
	})

	rCtx, rCancel := context.WithTimeout(context.Background(), time.Second*10)
	defer rCancel()

	if pErr := redisClient.Ping(rCtx).Err(); pErr != nil {
		panic(fmt.Sprintf("failed to connect to redis: %v", pErr))
	}

	return redisClient
}

// calculates the retry delay using exponential backoff
// Here, baseDelay is the initial delay, and maxDelay caps the delay duration
func asyncRetryDelayFunc(attempt int, err error, t *asynq.Task) time.Duration {
	baseDelay := 1 * time.Minute // Starting from 1 minute
	maxDelay := 60 * time.Minute // Max delay capped at 60 minutes

	// in retry(3), this should be 2, 4, 8 (left shifting 0001)
	delay := baseDelay * time.Duration(1<<attempt) // Double the delay with each retry
	if delay > maxDelay {
		delay = maxDelay
	}

	return delay
}

// initalizes the async queue
func initAsyncQueue(dbSelector *repository.CouchDBSelector, env *types.Environment) (*asynq.Server, *asynq.Client) {
	queueRedisClient := asynq.RedisClientOpt{
		Addr:     global.Conf.Redis.Host + ":" + strconv.Itoa(global.Conf.Redis.Port),
		Username: global.Conf.Redis.Username,
		Password: global.Conf.Redis.Password,
		DB:       2,
	}

	logLevel := asynq.InfoLevel
	if global.Conf.Mode != "debug" {
		logLevel = asynq.WarnLevel
	}
	concurrency := 50
	if global.Conf.Queue.Concurrency > 0 {
		concurrency = global.Conf.Queue.Concurrency
	}

	taskClient := asynq.NewClient(queueRedisClient)
	// start a task queue server
	taskServer := asynq.NewServer(
		queueRedisClient,
		asynq.Config{
			Concurrency:    concurrency,
			LogLevel:       logLevel,
			RetryDelayFunc: asyncRetryDelayFunc, // overriding the default retry delay function
		},
	)

	taskService := queue.NewMessageQueue(dbSelector, env)
	// start a task processing server
	mux := asynq.NewServeMux()
	mux.HandleFunc(types.QueueTypeArchiveRaw, taskService.ProcessArchiveTask)
	mux.HandleFunc(types.QueueTypeDeleteBlobs, taskService.ProcessDeleteBlobsTask)
	mux.HandleFunc(types.QueueTypeResetEmail, taskService.ProcessResetEmailTask)

	if err := taskServer.Start(mux); err != nil {
		log.Fatalf("could not start server: %v", err)
	}
	return taskServer, taskClient
}

func main() {
	// loading configuration from the environment (and a local .env file
	// in development)
	if cErr := global.LoadConfig(); cErr != nil {
		global.Logger.Log("error", "failed to load configuration", "error", cErr.Error())
		panic(cErr)
	}

	redisClient := initRedisClient(global.Conf)
	defer redisClient.Close()

	env := types.NewEnvironment(redisClient)
	defer env.Cron.Stop()

	// server wait to shutdown monitoring channels
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// init routing (for RESTful API endpoints)
	gin.SetMode(global.Conf.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	if global.Conf.Mode == "debug" {
		router.Use(gin.Logger())
	}

	dbSelector := ConfigDBSelector()
	ConfigDBIndexing(dbSelector.(*repository.CouchDBSelector), env)

	// configure S3 storage (optional raw message archive)
	ConfigS3Storage(&global.Conf, env)

	// initialize the async queue
	taskServer, taskClient := initAsyncQueue(dbSelector.(*repository.CouchDBSelector), env)
	defer taskClient.Close()
	env.TaskClient = taskClient

	// configure routes
	router = apiroutes.ConfigRoutes(router, dbSelector.(*repository.CouchDBSelector), env)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", global.Conf.Host, global.Conf.Port),
		Handler: router,
	}

	go func() {
		global.Logger.Log("msg", "server is ready to handle requests", "port", global.Conf.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(fmt.Sprintf("%v\n", err))
		}
	}()

	<-quit
	global.Logger.Log("msg", "shutting down")

	// stop accepting new tasks, then drain the in-flight ones
	taskServer.Stop()
	taskServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if sErr := srv.Shutdown(ctx); sErr != nil {
		global.Logger.Log("error", "server shutdown failed", "error", sErr.Error())
	}
}
