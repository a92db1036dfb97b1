// Package ioreader implements the URI reader contract named as an external
// collaborator in spec.md §6: given a URI, return raw bytes, a content
// type, and an iocontrol.Code describing the outcome.
package ioreader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rockyterrain/rocky/internal/iocontrol"
)

// Result is the raw payload returned by a Reader, prior to any
// layer-specific decoding.
type Result struct {
	Data        []byte
	ContentType string
}

// Reader fetches the bytes at uri, honoring ctx cancellation.
type Reader interface {
	Read(ctx context.Context, uri string) iocontrol.IOResult[Result]
}

// FileReader reads local files addressed by a file:// URI or a bare path.
type FileReader struct{}

func (FileReader) Read(ctx context.Context, uri string) iocontrol.IOResult[Result] {
	path := uri
	if u, err := url.Parse(uri); err == nil && u.Scheme == "file" {
		path = u.Path
	}
	select {
	case <-ctx.Done():
		return iocontrol.Fail[Result](iocontrol.ResultCanceled)
	default:
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return iocontrol.Fail[Result](iocontrol.ResultNotFound)
		}
		return iocontrol.Fail[Result](iocontrol.ResultReaderError)
	}
	return iocontrol.OK(Result{Data: data, ContentType: contentTypeForExt(path)})
}

// HTTPReader reads remote tile sources over http(s).
type HTTPReader struct {
	Client *http.Client
}

func (r HTTPReader) Read(ctx context.Context, uri string) iocontrol.IOResult[Result] {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return iocontrol.Fail[Result](iocontrol.ResultReaderError)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return iocontrol.Fail[Result](iocontrol.ResultCanceled)
		}
		return iocontrol.Fail[Result](iocontrol.ResultServerError)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return iocontrol.Fail[Result](iocontrol.ResultNotFound)
	case resp.StatusCode == http.StatusNotModified:
		return iocontrol.Fail[Result](iocontrol.ResultNotModified)
	case resp.StatusCode >= 500:
		return iocontrol.Fail[Result](iocontrol.ResultServerError)
	case resp.StatusCode >= 400:
		return iocontrol.Fail[Result](iocontrol.ResultReaderError)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return iocontrol.Fail[Result](iocontrol.ResultReaderError)
	}
	return iocontrol.OK(Result{Data: data, ContentType: resp.Header.Get("Content-Type")})
}

// S3Reader reads tile sources published to an S3 bucket, addressed as
// s3://bucket/key.
type S3Reader struct {
	Client *s3.Client
}

// NewS3Reader builds an S3Reader using the default AWS SDK v2 credential
// chain (env vars, shared config, IMDS).
func NewS3Reader(ctx context.Context) (*S3Reader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("ioreader: loading aws config: %w", err)
	}
	return &S3Reader{Client: s3.NewFromConfig(cfg)}, nil
}

func (r S3Reader) Read(ctx context.Context, uri string) iocontrol.IOResult[Result] {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" {
		return iocontrol.Fail[Result](iocontrol.ResultReaderError)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	out, err := r.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if ctx.Err() != nil {
			return iocontrol.Fail[Result](iocontrol.ResultCanceled)
		}
		return iocontrol.Fail[Result](iocontrol.ResultNotFound)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return iocontrol.Fail[Result](iocontrol.ResultReaderError)
	}
	ct := ""
	if out.ContentType != nil {
		ct = *out.ContentType
	}
	return iocontrol.OK(Result{Data: data, ContentType: ct})
}

// MultiReader dispatches to a backing Reader by URI scheme.
type MultiReader struct {
	File FileReader
	HTTP HTTPReader
	S3   *S3Reader
}

func (m MultiReader) Read(ctx context.Context, uri string) iocontrol.IOResult[Result] {
	switch {
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		return m.HTTP.Read(ctx, uri)
	case strings.HasPrefix(uri, "s3://"):
		if m.S3 == nil {
			return iocontrol.Fail[Result](iocontrol.ResultNoReader)
		}
		return m.S3.Read(ctx, uri)
	default:
		return m.File.Read(ctx, uri)
	}
}

func contentTypeForExt(path string) string {
	switch {
	case strings.HasSuffix(path, ".tif"), strings.HasSuffix(path, ".tiff"):
		return "image/tiff"
	case strings.HasSuffix(path, ".png"):
		return "image/png"
	case strings.HasSuffix(path, ".jpg"), strings.HasSuffix(path, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(path, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
