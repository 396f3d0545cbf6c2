// SPDX-License-Identifier: MPL-2.0

package artifactory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/invowk/parcel/internal/progress"
	"github.com/invowk/parcel/pkg/dependency"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type (
	// S3Config describes a bucket used as a package remote.
	S3Config struct {
		Name   string
		Bucket string
		Region string
		// Endpoint targets S3-compatible services such as MinIO. Empty means AWS.
		Endpoint string
		// Pattern locates an artifact inside the bucket. Defaults to DefaultPattern.
		Pattern   string
		AccessKey string
		SecretKey string
	}

	// S3Remote is a Remote backed by an S3-compatible bucket. The object ETag of a
	// single-part upload is its MD5 and is used as the checksum.
	S3Remote struct {
		listing

		cfg    S3Config
		opts   options
		client *s3.Client
	}
)

var _ Remote = (*S3Remote)(nil)

// NewS3 creates an S3 remote with static or anonymous credentials.
func NewS3(cfg S3Config, opts ...Option) *S3Remote {
	if cfg.Pattern == "" {
		cfg.Pattern = DefaultPattern
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	o := newOptions(cfg.Name, opts)

	s3opts := s3.Options{
		Region:     cfg.Region,
		HTTPClient: o.httpClient,
	}
	if cfg.Endpoint != "" {
		s3opts.BaseEndpoint = aws.String(strings.TrimRight(cfg.Endpoint, "/"))
		s3opts.UsePathStyle = true
	}
	if cfg.AccessKey != "" {
		creds := aws.Credentials{AccessKeyID: cfg.AccessKey, SecretAccessKey: cfg.SecretKey, Source: "parcel"}
		s3opts.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}))
	} else {
		s3opts.Credentials = aws.AnonymousCredentials{}
	}

	return &S3Remote{cfg: cfg, opts: o, client: s3.New(s3opts)}
}

// Name implements Remote.
func (s *S3Remote) Name() string { return s.cfg.Name }

// Key returns the object key of dep.
func (s *S3Remote) Key(dep dependency.Dependency) string {
	return FormatPattern(s.cfg.Pattern, s.cfg.Name, dep)
}

func (s *S3Remote) objectURL(key string) string {
	return "s3://" + s.cfg.Bucket + "/" + key
}

func (s *S3Remote) keyOf(objectURL string) string {
	return strings.TrimPrefix(objectURL, "s3://"+s.cfg.Bucket+"/")
}

// Ping implements Remote with HeadBucket.
func (s *S3Remote) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.cfg.Bucket)}); err != nil {
		return &UnreachableError{Remote: s.cfg.Name, URL: s.objectURL(""), Err: err}
	}
	return nil
}

// Sync implements Remote by listing every object of the bucket.
func (s *S3Remote) Sync(ctx context.Context, lazy bool) error {
	if lazy && s.populated() {
		return nil
	}
	if lazy && s.restore(&s.opts, s.cfg.Name) {
		return nil
	}

	var entries []Entry
	pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{Bucket: aws.String(s.cfg.Bucket)})
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return &UnreachableError{Remote: s.cfg.Name, URL: s.objectURL(""), Err: err}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			dep, err := dependency.FromPackageName(path.Base(key))
			if err != nil {
				s.opts.logger.Warn("skipping object with unrecognized name", "key", key)
				continue
			}
			entries = append(entries, Entry{
				Dependency: dep,
				URL:        s.objectURL(key),
				Checksum:   strings.Trim(aws.ToString(obj.ETag), `"`),
				Size:       aws.ToInt64(obj.Size),
			})
		}
	}

	s.set(entries)
	s.persist(&s.opts, s.cfg.Name)
	s.opts.logger.Debug("synced bucket", "packages", len(entries))
	return nil
}

// LatestSatisfied implements Remote.
func (s *S3Remote) LatestSatisfied(dep dependency.Dependency, allowSources bool) (Entry, error) {
	return s.latest(s.cfg.Name, dep, allowSources)
}

// Get implements Remote.
func (s *S3Remote) Get(ctx context.Context, dep dependency.Dependency, allowSources bool) ([]byte, dependency.Dependency, error) {
	entry, err := s.LatestSatisfied(dep, allowSources)
	if err != nil {
		return nil, dependency.Dependency{}, err
	}
	file := entry.Dependency.FileName()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(s.keyOf(entry.URL)),
	})
	if err != nil {
		return nil, dependency.Dependency{}, &UnreachableError{Remote: s.cfg.Name, URL: entry.URL, Err: err}
	}
	defer func() { _ = out.Body.Close() }()

	total := int64(-1)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}
	s.opts.reporter.Start(file, total)
	data, err := io.ReadAll(progress.Reader(io.LimitReader(out.Body, maxArtifactBytes), s.opts.reporter))
	s.opts.reporter.Done()
	if err != nil {
		return nil, dependency.Dependency{}, fmt.Errorf("downloading %s: %w", file, err)
	}
	s.opts.metrics.Download(s.cfg.Name, len(data))

	etag := strings.Trim(aws.ToString(out.ETag), `"`)
	if etag == "" {
		etag = entry.Checksum
	}
	switch {
	case etag == "":
		s.opts.logger.Warn("could not verify checksum", "file", file, "error", "no etag")
	case strings.Contains(etag, "-"):
		s.opts.logger.Debug("multipart etag is not an md5, skipping verification", "file", file)
	default:
		if err := s.opts.verify(s.cfg.Name, file, etag, data); err != nil {
			return nil, dependency.Dependency{}, err
		}
	}
	return data, entry.Dependency, nil
}

// Push implements Remote. Existence is checked with HeadObject.
func (s *S3Remote) Push(ctx context.Context, req PushRequest) (PushResult, error) {
	key := s.Key(req.Dependency)

	result := Pushed
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.cfg.Bucket), Key: aws.String(key)})
	switch {
	case err == nil:
		if !req.Force {
			s.opts.logger.Info("artifact already exists, skipping push", "file", req.Dependency.FileName())
			return PushSkipped, nil
		}
		s.opts.logger.Warn("overwriting existing artifact", "file", req.Dependency.FileName())
		result = PushOverwritten
	case !isNotFound(err):
		return 0, &UnreachableError{Remote: s.cfg.Name, URL: s.objectURL(key), Err: err}
	}

	f, err := os.Open(req.Tarball)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", req.Tarball, err)
	}
	defer f.Close()

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String("application/gzip"),
	}); err != nil {
		return 0, fmt.Errorf("uploading %s to %s: %w", req.Dependency.FileName(), s.cfg.Name, err)
	}

	s.add(Entry{Dependency: req.Dependency, URL: s.objectURL(key)})
	s.opts.logger.Info("pushed artifact", "file", req.Dependency.FileName(), "result", result)
	return result, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}
