package main

import (
	"context"
	"flag"
	"net/http"
	"os"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/openflock/flockbase/app_config"
	"github.com/openflock/flockbase/archive"
	"github.com/openflock/flockbase/job"
	"github.com/openflock/flockbase/server"
	"github.com/openflock/flockbase/store"
	"github.com/openflock/flockbase/twitter"
	"github.com/openflock/flockbase/utils"
	"github.com/openflock/flockbase/utils/dotenv"
	. "github.com/openflock/flockbase/utils/flag"
	. "github.com/openflock/flockbase/utils/log"
)

var (
	AppConfigPath *string
	// Configuration to customize binary startup.
	AppConfig app_config.FlockdAppConfig
)

func init() {
	AppConfigPath = flag.String("app_config_path", "cmd/flockd/config.yaml", "path to flockd app config")
}

func cleanup() {
	utils.CloseProfiler()
	utils.CloseTracer()
	Log.Info("job daemon shutdown")
}

func NewDogStatsdClient() *statsd.Client {
	statsd, err := statsd.New("127.0.0.1:8125")
	if err != nil {
		Log.Fatal("fail to build statsd client : ", err)
	}
	return statsd
}

// archiveFromEnv builds the optional page archive. A daemon without archive
// configuration runs fine, jobs simply skip archiving.
func archiveFromEnv() (archive.Store, error) {
	if dir := os.Getenv("ARCHIVE_DIR"); dir != "" {
		return archive.NewLocalStore(dir)
	}
	if bucket := os.Getenv("ARCHIVE_S3_BUCKET"); bucket != "" {
		region := os.Getenv("ARCHIVE_S3_REGION")
		if region == "" {
			region = "us-west-1"
		}
		return archive.NewS3Store(region, bucket, os.Getenv("ARCHIVE_S3_PREFIX"))
	}
	return nil, nil
}

func main() {
	defer cleanup()
	ParseFlags()
	InitLogger()
	utils.StartTracer()
	utils.StartProfiler()

	if err := dotenv.LoadDotEnvs(); err != nil {
		panic(err)
	}
	AppConfig = app_config.ParseFlockdAppConfig(*AppConfigPath)

	db, err := utils.GetDBConnection()
	if err != nil {
		Log.Fatal("fail to connect database : ", err)
	}

	ctx := context.Background()
	creds, err := twitter.LoadCredentialsFromEnv(ctx)
	if err != nil {
		Log.Fatal("fail to load api credentials : ", err)
	}
	pool, err := twitter.NewCredentialPool(creds)
	if err != nil {
		Log.Fatal("fail to build credential pool : ", err)
	}

	pages, err := archiveFromEnv()
	if err != nil {
		Log.Fatal("fail to open page archive : ", err)
	}

	busBuffer := AppConfig.EVENT_BUS_BUFFER
	if busBuffer <= 0 {
		busBuffer = 100
	}
	eventbus := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            busBuffer,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewStdLogger(false, false),
	)

	daemon := server.NewServer(job.Config{
		Store:   store.NewStore(db),
		Client:  twitter.NewClient(http.DefaultClient, pool),
		Archive: pages,
		Bus:     eventbus,
	}, AppConfig.JOB_QUEUE_DEPTH, NewDogStatsdClient())
	if err := daemon.Start(ctx); err != nil {
		Log.Fatal("fail to start the job worker : ", err)
	}

	addr := AppConfig.LISTEN_ADDR
	if addr == "" {
		addr = ":8080"
	}
	Log.Info("job daemon starts up")
	daemon.NewRouter().Run(addr)
}
