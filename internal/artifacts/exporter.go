package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	"ai-web-studio/internal/config"
	"ai-web-studio/internal/models"
)

// Palette swatch geometry.
const (
	swatchWidth  = 120
	swatchHeight = 80
)

type uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Exporter writes the artifacts of a ready project under projects/<id>/,
// either to a local directory or to an S3 bucket when one is configured.
type Exporter struct {
	up  uploader
	log zerolog.Logger
}

// NewExporter chooses S3 when cfg names a bucket, local disk otherwise.
func NewExporter(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Exporter, error) {
	if cfg.ArtifactS3Bucket != "" {
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Exporter{up: &s3Uploader{client: client, bucket: cfg.ArtifactS3Bucket}, log: log}, nil
	}
	dir := cfg.ArtifactOutputDir
	if dir == "" {
		dir = "./output"
	}
	return &Exporter{up: &localUploader{baseDir: dir}, log: log}, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.ArtifactS3Region),
	}
	if cfg.ArtifactS3Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.ArtifactS3Endpoint,
					HostnameImmutable: cfg.ArtifactS3PathStyle,
					SigningRegion:     cfg.ArtifactS3Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.ArtifactS3PathStyle
	}), nil
}

type file struct {
	name        string
	body        []byte
	contentType string
}

// Publish uploads every artifact of p. Projects that are not ready are
// rejected.
func (e *Exporter) Publish(ctx context.Context, p models.Project) error {
	if p.Status != models.ProjectReady {
		return fmt.Errorf("publish project %s: status is %s", p.ID, p.Status)
	}
	files, err := render(p)
	if err != nil {
		return err
	}
	prefix := path.Join("projects", sanitizeKey(p.ID))
	var errs []error
	for _, f := range files {
		loc, err := e.up.Upload(ctx, path.Join(prefix, f.name), f.body, f.contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("upload %s: %w", f.name, err))
			continue
		}
		e.log.Debug().Str("project_id", p.ID).Str("location", loc).Msg("artifact written")
	}
	return errors.Join(errs...)
}

func render(p models.Project) ([]file, error) {
	files := []file{
		{"index.html", []byte(p.Markup), "text/html; charset=utf-8"},
		{"styles.css", []byte(p.Stylesheet), "text/css; charset=utf-8"},
		{"script.js", []byte(p.Script), "text/javascript; charset=utf-8"},
	}
	if p.BackendCode != "" {
		files = append(files, file{"backend.txt", []byte(p.BackendCode), "text/plain; charset=utf-8"})
	}
	if p.Structure != nil {
		raw, err := json.MarshalIndent(p.Structure, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode structure: %w", err)
		}
		files = append(files, file{"structure.json", raw, "application/json"})
	}
	if p.ColorScheme != nil {
		png, err := Swatch(*p.ColorScheme)
		if err != nil {
			return nil, err
		}
		files = append(files, file{"palette.png", png, "image/png"})
	}
	return files, nil
}

// Swatch renders the palette as a strip of solid blocks, one per key in
// primary, secondary, accent, background, text order.
func Swatch(c models.ColorScheme) ([]byte, error) {
	entries := c.Entries()
	canvas := imaging.New(swatchWidth*len(entries), swatchHeight, color.Transparent)
	for i, kv := range entries {
		rgba, err := parseHex(kv[1])
		if err != nil {
			return nil, fmt.Errorf("palette %s: %w", kv[0], err)
		}
		block := imaging.New(swatchWidth, swatchHeight, rgba)
		canvas = imaging.Paste(canvas, block, image.Pt(i*swatchWidth, 0))
	}
	buf := &bytes.Buffer{}
	if err := imaging.Encode(buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode palette: %w", err)
	}
	return buf.Bytes(), nil
}

func parseHex(s string) (color.NRGBA, error) {
	var r, g, b uint8
	if _, err := fmt.Sscanf(strings.TrimPrefix(s, "#"), "%02x%02x%02x", &r, &g, &b); err != nil {
		return color.NRGBA{}, fmt.Errorf("parse color %q: %w", s, err)
	}
	return color.NRGBA{R: r, G: g, B: b, A: 0xff}, nil
}

func sanitizeKey(key string) string {
	key = filepath.Clean(key)
	key = strings.TrimPrefix(key, string(filepath.Separator))
	key = strings.TrimPrefix(key, "./")
	return strings.ReplaceAll(key, "..", "")
}

type localUploader struct {
	baseDir string
}

func (l *localUploader) Upload(_ context.Context, key string, body []byte, _ string) (string, error) {
	p := filepath.Join(l.baseDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	if err := os.WriteFile(p, body, 0o644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return p, nil
}

type s3Uploader struct {
	client *s3.Client
	bucket string
}

func (s *s3Uploader) Upload(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
