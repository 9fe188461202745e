// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package s3 reads pipeline input from and publishes tables to Amazon S3.
package s3

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
	"github.com/sparkify/datalake"
)

// RawSource is a datalake.RawSource over the objects of a bucket whose keys
// match a doublestar glob. A pattern without glob characters matches the key
// itself and every key below it.
type RawSource struct {
	bucket  string
	pattern string
	// ctx bounds every GET issued by NextReader.
	ctx context.Context

	s3      s3iface.S3API
	objects []string
	objIdx  *uint64
}

// NewRawSource lists the objects matching url, which has the form
// s3://bucket/pattern. It is an error for nothing to match. ctx also bounds
// the reads of the returned source.
func NewRawSource(ctx context.Context, sess *session.Session, url string) (*RawSource, error) {
	return newRawSource(ctx, s3.New(sess), url)
}

func newRawSource(ctx context.Context, svc s3iface.S3API, url string) (*RawSource, error) {
	bucket, pattern, err := ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing source url")
	}
	idx := uint64(0)
	rs := &RawSource{
		bucket:  bucket,
		pattern: pattern,
		ctx:     ctx,
		s3:      svc,
		objIdx:  &idx,
	}
	match := rs.matcher()
	err = svc.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(listPrefix(pattern)),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.HasSuffix(key, "/") && match(key) {
				rs.objects = append(rs.objects, key)
			}
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing objects in %s", bucket)
	}
	if len(rs.objects) == 0 {
		return nil, errors.Errorf("no objects match %s", url)
	}
	sort.Strings(rs.objects)
	return rs, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{\\")
}

// listPrefix is the longest literal directory prefix of pattern.
func listPrefix(pattern string) string {
	if !hasMeta(pattern) {
		return pattern
	}
	base, _ := doublestar.SplitPattern(pattern)
	if base == "." || base == "" {
		return ""
	}
	return base + "/"
}

func (rs *RawSource) matcher() func(key string) bool {
	if !hasMeta(rs.pattern) {
		dir := strings.TrimSuffix(rs.pattern, "/") + "/"
		return func(key string) bool {
			return rs.pattern == "" || key == rs.pattern || strings.HasPrefix(key, dir)
		}
	}
	return func(key string) bool {
		ok, err := doublestar.Match(rs.pattern, key)
		return err == nil && ok
	}
}

// Len returns the number of matching objects.
func (rs *RawSource) Len() int {
	return len(rs.objects)
}

type objReader struct {
	name string
	body io.ReadCloser
}

func (o *objReader) Read(buf []byte) (n int, err error) {
	return o.body.Read(buf)
}

func (o *objReader) Close() error {
	return o.body.Close()
}

// Name is the s3:// url of the object.
func (o *objReader) Name() string {
	return o.name
}

// NextReader implements datalake.RawSource.
func (rs *RawSource) NextReader() (datalake.NamedReadCloser, error) {
	idx := atomic.AddUint64(rs.objIdx, 1) - 1
	if int(idx) >= len(rs.objects) {
		return nil, io.EOF
	}
	key := rs.objects[idx]

	result, err := rs.s3.GetObjectWithContext(rs.ctx, &s3.GetObjectInput{
		Bucket: aws.String(rs.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching %v", key)
	}
	return &objReader{name: "s3://" + rs.bucket + "/" + key, body: result.Body}, nil
}

// Publisher uploads locally written tables below s3://bucket/prefix. It
// implements the duckdb package's Publisher.
type Publisher struct {
	bucket string
	prefix string

	s3       s3iface.S3API
	uploader s3manageriface.UploaderAPI
	log      datalake.Logger
}

// NewPublisher returns a Publisher for the output base url, of the form
// s3://bucket/prefix.
func NewPublisher(sess *session.Session, url string, log datalake.Logger) (*Publisher, error) {
	svc := s3.New(sess)
	return newPublisher(svc, s3manager.NewUploaderWithClient(svc), url, log)
}

func newPublisher(svc s3iface.S3API, up s3manageriface.UploaderAPI, url string, log datalake.Logger) (*Publisher, error) {
	bucket, prefix, err := ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing output url")
	}
	if hasMeta(prefix) {
		return nil, errors.Errorf("output url %s must not be a pattern", url)
	}
	if log == nil {
		log = datalake.NopLogger{}
	}
	return &Publisher{
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		s3:       svc,
		uploader: up,
		log:      log,
	}, nil
}

// Publish deletes every object below the table's prefix and uploads the files
// of localDir in their place. As with local output there is no atomic swap: a
// failure leaves the prefix partly written.
func (p *Publisher) Publish(ctx context.Context, localDir, rel string) error {
	dest := path.Join(p.prefix, rel) + "/"
	deleted, err := p.deletePrefix(ctx, dest)
	if err != nil {
		return errors.Wrapf(err, "clearing s3://%s/%s", p.bucket, dest)
	}

	uploaded := 0
	err = filepath.WalkDir(localDir, func(fpath string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		relFile, err := filepath.Rel(localDir, fpath)
		if err != nil {
			return err
		}
		f, err := os.Open(fpath)
		if err != nil {
			return errors.Wrap(err, "opening")
		}
		defer f.Close()
		key := dest + filepath.ToSlash(relFile)
		if _, err := p.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return errors.Wrapf(err, "uploading %s", key)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "uploading %s", localDir)
	}
	p.log.Printf("published s3://%s/%s: %d objects replaced, %d uploaded", p.bucket, dest, deleted, uploaded)
	return nil
}

func (p *Publisher) deletePrefix(ctx context.Context, prefix string) (int, error) {
	var keys []*s3.ObjectIdentifier
	err := p.s3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(p.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, &s3.ObjectIdentifier{Key: obj.Key})
		}
		return true
	})
	if err != nil {
		return 0, errors.Wrap(err, "listing")
	}
	// DeleteObjects takes at most 1000 keys per call.
	for start := 0; start < len(keys); start += 1000 {
		end := start + 1000
		if end > len(keys) {
			end = len(keys)
		}
		out, err := p.s3.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(p.bucket),
			Delete: &s3.Delete{Objects: keys[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return 0, errors.Wrap(err, "deleting")
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return 0, errors.Errorf("deleting %s: %s", aws.StringValue(e.Key), aws.StringValue(e.Message))
		}
	}
	return len(keys), nil
}
