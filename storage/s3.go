package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"paper-auditor/config"
	"paper-auditor/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

const reportPrefix = "reports/"

// ObjectAPI is the subset of the S3 client used by the archive.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// NewS3Client creates a client for an S3 compatible endpoint.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.ArchiveS3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.ArchiveS3Key, cfg.ArchiveS3Secret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.ArchiveS3URL)
		o.UsePathStyle = true
	}), nil
}

// ReportArchive stores finished reports as gzipped JSON and keeps only the
// newest ones.
type ReportArchive struct {
	api    ObjectAPI
	bucket string
	keep   int
	logger *zap.Logger
	now    func() time.Time
}

// NewReportArchive creates an archive in bucket keeping at most keep reports.
func NewReportArchive(api ObjectAPI, bucket string, keep int, logger *zap.Logger) *ReportArchive {
	return &ReportArchive{api: api, bucket: bucket, keep: keep, logger: logger, now: time.Now}
}

// Put uploads report and returns its object key.
func (a *ReportArchive) Put(ctx context.Context, report *models.AnalysisReport) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(report); err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s%s-%s.json.gz", reportPrefix, a.now().UTC().Format("2006-01-02T15-04-05Z"), report.RunID)
	_, err := a.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(a.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading report to s3://%s/%s: %w", a.bucket, key, err)
	}
	return key, nil
}

// Get downloads and decodes the report stored under key.
func (a *ReportArchive) Get(ctx context.Context, key string) (*models.AnalysisReport, error) {
	out, err := a.api.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(a.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", a.bucket, key, err)
	}
	defer out.Body.Close()
	gz, err := gzip.NewReader(out.Body)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, err
	}
	var report models.AnalysisReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", key, err)
	}
	return &report, nil
}

// Prune deletes all but the newest keep reports and returns how many were
// removed. Failed deletes are logged and skipped.
func (a *ReportArchive) Prune(ctx context.Context) (int, error) {
	var objects []types.Object
	p := s3.NewListObjectsV2Paginator(a.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(reportPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("listing archived reports: %w", err)
		}
		objects = append(objects, page.Contents...)
	}
	if len(objects) <= a.keep {
		a.logger.Debug("Archive below retention limit", zap.Int("reports", len(objects)), zap.Int("keep", a.keep))
		return 0, nil
	}

	sort.Slice(objects, func(i, j int) bool {
		return aws.ToTime(objects[i].LastModified).After(aws.ToTime(objects[j].LastModified))
	})
	deleted := 0
	for _, obj := range objects[a.keep:] {
		_, err := a.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    obj.Key,
		})
		if err != nil {
			a.logger.Warn("Failed to delete archived report", zap.String("key", aws.ToString(obj.Key)), zap.Error(err))
			continue
		}
		deleted++
	}
	a.logger.Info("Pruned report archive", zap.Int("deleted", deleted), zap.Int("kept", a.keep))
	return deleted, nil
}
