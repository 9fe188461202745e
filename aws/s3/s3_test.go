package s3

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/pkg/errors"
	"github.com/sparkify/datalake/test"
)

// fakeS3 is an in-memory bucket. Listing returns one key per page.
type fakeS3 struct {
	s3iface.S3API
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, opts ...request.Option) error {
	f.mu.Lock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.StringValue(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	f.mu.Unlock()
	sort.Strings(keys)
	for i, k := range keys {
		page := &s3.ListObjectsV2Output{Contents: []*s3.Object{{Key: aws.String(k)}}}
		if !fn(page, i == len(keys)-1) {
			break
		}
	}
	return nil
}

func (f *fakeS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, opts ...request.Option) (*s3.GetObjectOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func (f *fakeS3) DeleteObjectsWithContext(ctx aws.Context, in *s3.DeleteObjectsInput, opts ...request.Option) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, o := range in.Delete.Objects {
		delete(f.objects, aws.StringValue(o.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) UploadWithContext(ctx aws.Context, in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.StringValue(in.Key)] = string(b)
	return &s3manager.UploadOutput{}, nil
}

func (f *fakeS3) Upload(in *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	return f.UploadWithContext(context.Background(), in, opts...)
}

func (f *fakeS3) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url, bucket, key string
		wantErr          bool
	}{
		{url: "s3://udacity-dend/song_data/*/*/*/*.json", bucket: "udacity-dend", key: "song_data/*/*/*/*.json"},
		{url: "s3://out", bucket: "out"},
		{url: "s3:///key", wantErr: true},
		{url: "/tmp/song_data", wantErr: true},
	}
	for _, tst := range tests {
		t.Run(tst.url, func(t *testing.T) {
			bucket, key, err := ParseURL(tst.url)
			if tst.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tst.url)
				}
				return
			}
			test.ErrNil(t, err, "ParseURL")
			test.MustBe(t, tst.bucket, bucket)
			test.MustBe(t, tst.key, key)
		})
	}
}

func TestListPrefix(t *testing.T) {
	test.MustBe(t, "song_data/", listPrefix("song_data/*/*/*/*.json"))
	test.MustBe(t, "log_data/2018/", listPrefix("log_data/2018/*-events.json"))
	test.MustBe(t, "", listPrefix("*.json"))
	test.MustBe(t, "log_data", listPrefix("log_data"))
}

func TestRawSource(t *testing.T) {
	svc := &fakeS3{objects: map[string]string{
		"song_data/A/A/A/TRAAAAW128F429D538.json": `{"song_id": "SO1"}`,
		"song_data/A/A/B/TRAABCL128F4286650.json": `{"song_id": "SO2"}`,
		"song_data/A/A/readme.txt":                `skip`,
		"log_data/2018/11/2018-11-01-events.json": `{"ts": 1}`,
		"log_data/2018/11/":                       ``,
	}}
	rs, err := newRawSource(context.Background(), svc, "s3://bucket/song_data/*/*/*/*.json")
	test.ErrNil(t, err, "newRawSource")
	test.MustBe(t, 2, rs.Len())

	var names, bodies []string
	for {
		r, err := rs.NextReader()
		if err == io.EOF {
			break
		}
		test.ErrNil(t, err, "NextReader")
		b, err := io.ReadAll(r)
		test.ErrNil(t, err, "reading")
		test.ErrNil(t, r.Close(), "closing")
		names = append(names, r.Name())
		bodies = append(bodies, string(b))
	}
	test.MustBe(t, []string{
		"s3://bucket/song_data/A/A/A/TRAAAAW128F429D538.json",
		"s3://bucket/song_data/A/A/B/TRAABCL128F4286650.json",
	}, names)
	test.MustBe(t, []string{`{"song_id": "SO1"}`, `{"song_id": "SO2"}`}, bodies)

	dir, err := newRawSource(context.Background(), svc, "s3://bucket/log_data")
	test.ErrNil(t, err, "newRawSource for a directory")
	test.MustBe(t, 1, dir.Len(), "directory markers are skipped")

	if _, err := newRawSource(context.Background(), svc, "s3://bucket/*.parquet"); err == nil {
		t.Fatal("expected error when nothing matches")
	}
}

func TestRawSourceCancelled(t *testing.T) {
	svc := &fakeS3{objects: map[string]string{
		"log_data/2018/11/2018-11-01-events.json": `{"ts": 1}`,
	}}
	ctx, cancel := context.WithCancel(context.Background())
	rs, err := newRawSource(ctx, svc, "s3://bucket/log_data")
	test.ErrNil(t, err, "newRawSource")
	cancel()
	_, err = rs.NextReader()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPublisher(t *testing.T) {
	svc := &fakeS3{objects: map[string]string{
		"out/songs/songs_table/year=1965/artist_id=AR1/data_0.parquet": "old",
		"out/songs/songs_table/year=1999/artist_id=AR9/data_0.parquet": "stale",
		"out/songs_backup/keep.parquet":                                "keep",
	}}
	p, err := newPublisher(svc, svc, "s3://bucket/out/", nil)
	test.ErrNil(t, err, "newPublisher")

	local := t.TempDir()
	test.WriteFiles(t, local, map[string]string{
		"year=1965/artist_id=AR1/data_0.parquet": "new",
		"year=1984/artist_id=AR2/data_0.parquet": "added",
	})
	test.ErrNil(t, p.Publish(context.Background(), local, "songs/songs_table"), "Publish")

	test.MustBe(t, []string{
		"out/songs/songs_table/year=1965/artist_id=AR1/data_0.parquet",
		"out/songs/songs_table/year=1984/artist_id=AR2/data_0.parquet",
		"out/songs_backup/keep.parquet",
	}, svc.keys())
	test.MustBe(t, "new", svc.objects["out/songs/songs_table/year=1965/artist_id=AR1/data_0.parquet"])

	if _, err := newPublisher(svc, svc, "s3://bucket/out/*", nil); err == nil {
		t.Fatal("expected error for pattern output url")
	}
}

func TestNewSessionCredentials(t *testing.T) {
	sess, err := NewSession(Config{Region: "us-west-2", AccessKeyID: "AKID", SecretAccessKey: "SECRET"})
	test.ErrNil(t, err, "NewSession")
	creds, err := sess.Config.Credentials.Get()
	test.ErrNil(t, err, "getting credentials")
	test.MustBe(t, "AKID", creds.AccessKeyID)
	test.MustBe(t, "us-west-2", aws.StringValue(sess.Config.Region))

	if _, err := NewSession(Config{AccessKeyID: "AKID"}); err == nil {
		t.Fatal("expected error for a lone access key id")
	}
}
