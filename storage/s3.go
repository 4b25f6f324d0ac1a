package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type S3Engine struct {
	client s3iface.S3API
}

var _ Engine = (*S3Engine)(nil)

func NewS3(cfg *aws.Config) *S3Engine {
	if cfg == nil {
		cfg = &aws.Config{}
	}
	if cfg.Region == nil {
		cfg.Region = aws.String(os.Getenv("AWS_REGION"))
	}
	if endpoint := os.Getenv("AWS_S3_ENDPOINT"); endpoint != "" && cfg.Endpoint == nil {
		cfg.Endpoint = aws.String(endpoint)
		cfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess := session.Must(session.NewSession(cfg))
	return &S3Engine{client: s3.New(sess)}
}

func bucketKey(u *URI) (string, string, error) {
	if !u.HasScheme(S3Scheme) {
		return "", "", fmt.Errorf("%s: not an s3 location", u)
	}
	return u.Host, u.Path, nil
}

func (s *S3Engine) Get(ctx context.Context, u *URI) (io.ReadCloser, error) {
	bucket, key, err := bucketKey(u)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, wrapS3Error(u, err)
	}
	return out.Body, nil
}

func (s *S3Engine) Put(ctx context.Context, u *URI) (io.WriteCloser, error) {
	bucket, key, err := bucketKey(u)
	if err != nil {
		return nil, err
	}
	return newS3Writer(ctx, s.client, bucket, key), nil
}

func (s *S3Engine) Exists(ctx context.Context, u *URI) (bool, error) {
	_, err := s.Size(ctx, u)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Engine) Delete(ctx context.Context, u *URI) error {
	bucket, key, err := bucketKey(u)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	return wrapS3Error(u, err)
}

func (s *S3Engine) Size(ctx context.Context, u *URI) (int64, error) {
	bucket, key, err := bucketKey(u)
	if err != nil {
		return 0, err
	}
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, wrapS3Error(u, err)
	}
	return aws.Int64Value(out.ContentLength), nil
}

func wrapS3Error(u *URI, err error) error {
	var reqerr awserr.RequestFailure
	if errors.As(err, &reqerr) && reqerr.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", u, os.ErrNotExist)
	}
	return err
}

// s3Writer streams writes to an s3manager upload through a pipe so
// callers get an ordinary io.WriteCloser.
type s3Writer struct {
	writer   *io.PipeWriter
	uploader *s3manager.Uploader
	ctx      context.Context
	bucket   string
	key      string
	once     sync.Once
	done     chan struct{}
	err      error
}

func newS3Writer(ctx context.Context, client s3iface.S3API, bucket, key string) *s3Writer {
	return &s3Writer{
		uploader: s3manager.NewUploaderWithClient(client),
		ctx:      ctx,
		bucket:   bucket,
		key:      key,
		done:     make(chan struct{}),
	}
}

func (w *s3Writer) init() {
	pr, pw := io.Pipe()
	w.writer = pw
	go func() {
		_, err := w.uploader.UploadWithContext(w.ctx, &s3manager.UploadInput{
			Bucket: aws.String(w.bucket),
			Key:    aws.String(w.key),
			Body:   pr,
		})
		w.err = err
		close(w.done)
		// Return value is always nil.
		_ = pr.CloseWithError(err)
	}()
}

func (w *s3Writer) Write(b []byte) (int, error) {
	w.once.Do(w.init)
	return w.writer.Write(b)
}

func (w *s3Writer) Close() error {
	w.once.Do(w.init)
	err := w.writer.Close()
	<-w.done
	if err != nil {
		return err
	}
	return w.err
}
