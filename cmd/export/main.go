package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"example.com/wellness/internal/app"
	"example.com/wellness/internal/config"
	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/export"
)

func main() {
	fromFlag := flag.String("from", "", "first day to export (YYYY-MM-DD); defaults to the configured window")
	toFlag := flag.String("to", "", "last day to export (YYYY-MM-DD); defaults to today")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Export.Bucket == "" {
		log.Fatal("WELLNESS_EXPORT__BUCKET is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	logger := log.New(os.Stderr, "[wellness-export] ", log.LstdFlags|log.Lshortfile)
	rt, err := app.Build(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to build runtime: %v", err)
	}
	defer rt.Close()

	to := domain.StartOfDay(time.Now(), cfg.Location)
	if *toFlag != "" {
		if to, err = domain.ParseDay(*toFlag, cfg.Location); err != nil {
			log.Fatalf("invalid -to: %v", err)
		}
	}
	from := to.AddDate(0, 0, -(cfg.Export.Days - 1))
	if *fromFlag != "" {
		if from, err = domain.ParseDay(*fromFlag, cfg.Location); err != nil {
			log.Fatalf("invalid -from: %v", err)
		}
	}

	endpoint := cfg.Export.EndpointURL
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if endpoint != "" {
			logger.Println("Using custom s3 endpoint: ", endpoint)
			return aws.Endpoint{
				PartitionID:       "aws",
				URL:               endpoint,
				SigningRegion:     region,
				HostnameImmutable: true,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithEndpointResolverWithOptions(customResolver), awsconfig.WithRegion(cfg.Export.Region))
	if err != nil {
		log.Fatalf("failed to load aws config: %v", err)
	}

	uploader, err := export.NewS3Uploader(s3.NewFromConfig(awsCfg), cfg.Export.Bucket, cfg.Export.Prefix)
	if err != nil {
		log.Fatalf("failed to build uploader: %v", err)
	}

	manifest, err := export.NewExporter(rt.Store, rt.Store, uploader, cfg.Location, logger).Export(ctx, from, to)
	if err != nil {
		log.Fatalf("export failed: %v", err)
	}
	log.Printf("export done: %s (%d rows), %s (%d rows)", manifest.MetricsKey, manifest.MetricsRows, manifest.LoadKey, manifest.LoadRows)
}
