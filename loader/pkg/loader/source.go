package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source fetches the raw bytes of a dataset.
type Source interface {
	Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// StatusError is returned when an HTTP source answers with a non-2xx status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) StatusCode() int {
	return e.Status
}

// HTTPSource fetches datasets with plain GET requests.
type HTTPSource struct {
	Client *http.Client
}

func (s *HTTPSource) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		resp.Body.Close()
		return nil, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	return resp.Body, nil
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config configures the S3 client. Endpoint is only needed for S3-compatible
// stores such as MinIO.
type S3Config struct {
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// S3Source fetches datasets from s3://bucket/key URLs.
type S3Source struct {
	API S3API
}

// NewS3Source builds an S3 client from the default AWS credential chain.
func NewS3Source(ctx context.Context, cfg S3Config) (*S3Source, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return &S3Source{API: client}, nil
}

func (s *S3Source) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	bucket, key, err := parseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	out, err := s.API.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3 object %s: %w", rawURL, err)
	}
	return out.Body, nil
}

func parseS3URL(rawURL string) (string, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 url %q: %w", rawURL, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 url %q: expected s3://bucket/key", rawURL)
	}
	return u.Host, key, nil
}

// Router dispatches fetches by URL scheme.
type Router struct {
	HTTP Source
	S3   Source
}

func (r *Router) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid dataset url %q: %w", rawURL, err)
	}
	var src Source
	switch u.Scheme {
	case "http", "https":
		src = r.HTTP
	case "s3":
		src = r.S3
	default:
		return nil, fmt.Errorf("unsupported dataset url scheme %q", u.Scheme)
	}
	if src == nil {
		return nil, errors.New("no source configured for scheme " + u.Scheme)
	}
	return src.Fetch(ctx, rawURL)
}

// UsesScheme reports whether any dataset is fetched with the given URL scheme.
func UsesScheme(datasets []Dataset, scheme string) bool {
	for _, ds := range datasets {
		if u, err := url.Parse(ds.URL); err == nil && u.Scheme == scheme {
			return true
		}
	}
	return false
}
