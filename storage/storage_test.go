package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"paper-auditor/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memObject struct {
	data     []byte
	modified time.Time
}

// memBucket is an in-memory ObjectAPI.
type memBucket struct {
	mu      sync.Mutex
	objects map[string]memObject
	clock   time.Time
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string]memObject{}, clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (b *memBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = b.clock.Add(time.Minute)
	b.objects[aws.ToString(in.Key)] = memObject{data: data, modified: b.clock}
	return &s3.PutObjectOutput{}, nil
}

func (b *memBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.data))}, nil
}

func (b *memBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	for k, o := range b.objects {
		if !strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), LastModified: aws.Time(o.modified)})
	}
	return out, nil
}

func (b *memBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (b *memBucket) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sampleReport(runID string) *models.AnalysisReport {
	r := &models.AnalysisReport{
		RunID:      runID,
		PaperTitle: "Citation integrity",
		AuditedCitations: []models.CitationAudit{
			{CitationKey: "ref1", Status: models.StatusPass, ExistsOnline: true, SourceDatabase: "crossref"},
			{CitationKey: "ref2", Status: models.StatusMissing},
		},
	}
	r.Tally()
	return r
}

func TestReportArchivePutGet(t *testing.T) {
	bucket := newMemBucket()
	archive := NewReportArchive(bucket, "audits", 10, zap.NewNop())

	key, err := archive.Put(context.Background(), sampleReport("run-1"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "reports/"))
	assert.True(t, strings.HasSuffix(key, "-run-1.json.gz"))

	got, err := archive.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 1, got.PassedCount)
	assert.Len(t, got.AuditedCitations, 2)
}

func TestReportArchivePruneKeepsNewest(t *testing.T) {
	bucket := newMemBucket()
	archive := NewReportArchive(bucket, "audits", 2, zap.NewNop())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		archive.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		_, err := archive.Put(context.Background(), sampleReport(id))
		require.NoError(t, err)
	}

	deleted, err := archive.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	keys := bucket.keys()
	require.Len(t, keys, 2)
	assert.True(t, strings.HasSuffix(keys[0], "-c.json.gz"))
	assert.True(t, strings.HasSuffix(keys[1], "-d.json.gz"))

	deleted, err = archive.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestSQLiteCallLog(t *testing.T) {
	log, err := OpenSQLiteCallLog(filepath.Join(t.TempDir(), "calls.db"), zap.NewNop())
	require.NoError(t, err)
	defer log.Close()

	ts := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)
	log.Record(context.Background(), &models.APICall{RunID: "run-1", Timestamp: ts, Service: "crossref", Method: "doi", Params: "doi:10.1/x", ResponseStatus: 200, Success: true, ResultCount: 1})
	log.Record(context.Background(), &models.APICall{RunID: "run-1", Timestamp: ts.Add(time.Second), Service: "pubmed", Method: "title", Error: "timeout"})
	log.Record(context.Background(), &models.APICall{RunID: "run-2", Timestamp: ts, Service: "arxiv", CacheHit: true, Success: true})

	calls, err := log.Calls(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Equal(t, "crossref", calls[0].Service)
	assert.True(t, calls[0].Success)
	assert.Equal(t, 1, calls[0].ResultCount)
	assert.True(t, ts.Equal(calls[0].Timestamp))
	assert.Equal(t, "timeout", calls[1].Error)
	assert.False(t, calls[1].Success)

	other, err := log.Calls(context.Background(), "run-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.True(t, other[0].CacheHit)
}
