package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"example.com/wellness/internal/domain"
	"example.com/wellness/internal/store"
)

// Uploader stores a named object.
type Uploader interface {
	Upload(ctx context.Context, key string, body *bytes.Buffer) error
}

// S3Uploader uploads objects to a single bucket under an optional prefix.
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Uploader wraps client in a multipart upload manager.
func NewS3Uploader(client manager.UploadAPIClient, bucket, prefix string) (S3Uploader, error) {
	if client == nil {
		return S3Uploader{}, errors.New("s3 upload client nil")
	}
	if bucket == "" {
		return S3Uploader{}, errors.New("bucket is empty")
	}
	return S3Uploader{
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

// Upload puts body at prefix/key.
func (u S3Uploader) Upload(ctx context.Context, key string, body *bytes.Buffer) error {
	objectKey := key
	if u.prefix != "" {
		objectKey = path.Join(u.prefix, key)
	}
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(objectKey),
		Body:        body,
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	if err != nil {
		return fmt.Errorf("upload failed key=[%s], bucket=[%s]: %w", objectKey, u.bucket, err)
	}
	return nil
}

// Manifest lists the objects written by one export.
type Manifest struct {
	From        string
	To          string
	MetricsKey  string
	MetricsRows int
	LoadKey     string
	LoadRows    int
}

// Exporter reads a day range from the stores and uploads it as Parquet.
type Exporter struct {
	metrics  store.MetricsStore
	loads    store.LoadStore
	uploader Uploader
	loc      *time.Location
	logger   *log.Logger
}

// NewExporter builds an Exporter. loads may be nil to skip training load.
func NewExporter(metrics store.MetricsStore, loads store.LoadStore, uploader Uploader, loc *time.Location, logger *log.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[export] ", log.LstdFlags|log.Lshortfile)
	}
	return &Exporter{metrics: metrics, loads: loads, uploader: uploader, loc: loc, logger: logger}
}

// Export uploads the local days from..to inclusive. Object keys are
// daily_metrics/<from>_<to>.parquet and training_load/<from>_<to>.parquet.
func (e *Exporter) Export(ctx context.Context, from, to time.Time) (Manifest, error) {
	lo := domain.StartOfDay(from, e.loc)
	hi := domain.StartOfDay(to, e.loc)
	if hi.Before(lo) {
		return Manifest{}, fmt.Errorf("export range ends before it starts: %s > %s", domain.DayKey(lo), domain.DayKey(hi))
	}
	m := Manifest{From: domain.DayKey(lo), To: domain.DayKey(hi)}
	suffix := m.From + "_" + m.To + ".parquet"

	records, err := e.metrics.Range(ctx, lo, hi)
	if err != nil {
		return m, fmt.Errorf("read daily metrics: %w", err)
	}
	data, err := MarshalDailyMetrics(records)
	if err != nil {
		return m, fmt.Errorf("encode daily metrics: %w", err)
	}
	m.MetricsKey = "daily_metrics/" + suffix
	if err := e.uploader.Upload(ctx, m.MetricsKey, bytes.NewBuffer(data)); err != nil {
		return m, err
	}
	m.MetricsRows = len(records)

	if e.loads != nil {
		loads, err := e.loads.LoadRange(ctx, lo, hi)
		if err != nil {
			return m, fmt.Errorf("read training load: %w", err)
		}
		data, err := MarshalTrainingLoad(loads)
		if err != nil {
			return m, fmt.Errorf("encode training load: %w", err)
		}
		m.LoadKey = "training_load/" + suffix
		if err := e.uploader.Upload(ctx, m.LoadKey, bytes.NewBuffer(data)); err != nil {
			return m, err
		}
		m.LoadRows = len(loads)
	}

	e.logger.Printf("exported %s..%s: %d metric days, %d load days", m.From, m.To, m.MetricsRows, m.LoadRows)
	return m, nil
}
