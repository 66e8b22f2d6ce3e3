package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// S3API is the subset of the S3 client used by the S3 repository.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 is a read-only repository mirrored to an S3 bucket with the filesystem
// layout under prefix: <prefix>/<family>/<version>/package.yaml.
type S3 struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3 returns a repository reading bucket/prefix through client.
func NewS3(client S3API, bucket, prefix string, logger *slog.Logger) *S3 {
	if logger == nil {
		logger = slog.Default()
	}
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// NewS3FromURL returns a repository for an s3://bucket/prefix URL using the
// default AWS credential chain.
func NewS3FromURL(ctx context.Context, rawURL string, logger *slog.Logger) (*S3, error) {
	bucket, prefix, err := ParseS3URL(rawURL)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewS3(s3.NewFromConfig(cfg), bucket, prefix, logger), nil
}

// ParseS3URL splits an s3://bucket/prefix URL.
func ParseS3URL(rawURL string) (bucket, prefix string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parsing repository url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 repository url %q", rawURL)
	}
	return u.Host, strings.Trim(u.Path, "/"), nil
}

// String returns the repository URL.
func (r *S3) String() string {
	return "s3://" + r.bucket + "/" + r.prefix
}

// FamilyExists reports whether any object exists under the family prefix.
func (r *S3) FamilyExists(ctx context.Context, family string) (bool, error) {
	if !validFamilyName(family) {
		return false, nil
	}
	out, err := r.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(r.bucket),
		Prefix:  aws.String(r.prefix + family + "/"),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("checking family %s in %s: %w", family, r, err)
	}
	return len(out.Contents) > 0, nil
}

// Variants yields the family's variants in ascending order, fetching one
// manifest per version as the sequence advances.
func (r *S3) Variants(ctx context.Context, family string, cutoff time.Time) iter.Seq2[*solver.Variant, error] {
	return func(yield func(*solver.Variant, error) bool) {
		versions, err := r.versions(ctx, family)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, ver := range versions {
			key := r.prefix + family + "/" + ver.String() + "/" + ManifestFile
			m, err := r.readManifest(ctx, key)
			if err != nil {
				var missing *types.NoSuchKey
				if errors.As(err, &missing) {
					r.logger.Debug("version without manifest", "key", key)
					continue
				}
				yield(nil, err)
				return
			}
			if m.Name != family || !parseVersionOrEmpty(m.Version).Equal(ver) {
				r.logger.Warn("skipping misplaced package", "key", key, "package", m.FullName())
				continue
			}
			if !cutoff.IsZero() && m.Timestamp > 0 && time.Unix(m.Timestamp, 0).After(cutoff) {
				continue
			}
			variants, err := m.SolverVariants()
			if err != nil {
				yield(nil, err)
				return
			}
			for _, v := range variants {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

func (r *S3) readManifest(ctx context.Context, key string) (*Manifest, error) {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", r.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", r.bucket, key, err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("s3://%s/%s: %w", r.bucket, key, err)
	}
	return m, nil
}

// children lists the names of the "directories" directly under prefix.
func (r *S3) children(ctx context.Context, prefix string) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(r.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	var names []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", r.bucket, prefix, err)
		}
		for _, cp := range page.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

func (r *S3) versions(ctx context.Context, family string) ([]version.Version, error) {
	names, err := r.children(ctx, r.prefix+family+"/")
	if err != nil {
		return nil, err
	}
	var versions []version.Version
	for _, name := range names {
		ver, err := version.Parse(name)
		if err != nil || ver.String() != name {
			continue
		}
		versions = append(versions, ver)
	}
	slices.SortFunc(versions, version.Version.Compare)
	return versions, nil
}

// Families lists every family under the prefix.
func (r *S3) Families(ctx context.Context) ([]Family, error) {
	names, err := r.children(ctx, r.prefix)
	if err != nil {
		return nil, err
	}
	names = slices.DeleteFunc(names, func(n string) bool { return !validFamilyName(n) })

	families := make([]Family, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			versions, err := r.versions(gCtx, name)
			if err != nil {
				return err
			}
			f := Family{Name: name}
			for _, v := range versions {
				f.Versions = append(f.Versions, v.String())
			}
			families[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(families, func(i, j int) bool { return families[i].Name < families[j].Name })
	return families, nil
}
