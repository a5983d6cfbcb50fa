package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Options configures the S3 backend.
type S3Options struct {
	// Bucket holds the bundles.
	Bucket string
	// Region is the bucket region; empty uses the default AWS chain.
	Region string
	// Endpoint targets an S3-compatible store with path-style addressing.
	Endpoint string
	// AccessKey and SecretKey are static credentials; empty uses the default chain.
	AccessKey string
	SecretKey string
}

// S3API is the subset of the S3 client used by the repository.
type S3API interface {
	s3.ListObjectsV2APIClient
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Repository serves objects from an S3-compatible bucket.
type S3Repository struct {
	// client talks to the bucket.
	client S3API
	// bucket is the bucket name.
	bucket string
}

// errBucketRequired is returned when S3Options has no bucket.
var errBucketRequired = errors.New("bucket required for S3 repository")

// folderDelimiter groups keys into folders when listing.
const folderDelimiter = "/"

// NewS3Repository builds an S3 client from opts and the default AWS config chain.
func NewS3Repository(ctx context.Context, opts S3Options) (*S3Repository, error) {
	if opts.Bucket == "" {
		return nil, errBucketRequired
	}

	loadOptions := []func(*awsconfig.LoadOptions) error{}

	if opts.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(opts.Region))
	}

	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOptions = append(loadOptions, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	clientOptions := []func(*s3.Options){}
	if opts.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3RepositoryWithClient(s3.NewFromConfig(awsCfg, clientOptions...), opts.Bucket), nil
}

// NewS3RepositoryWithClient wraps an existing client.
func NewS3RepositoryWithClient(client S3API, bucket string) *S3Repository {
	return &S3Repository{
		client: client,
		bucket: bucket,
	}
}

// ListFolders returns the common prefixes directly under prefix.
func (r *S3Repository) ListFolders(ctx context.Context, prefix string) ([]string, error) {
	folders := make(map[string]struct{})

	err := r.paginate(ctx, prefix, func(page *s3.ListObjectsV2Output) {
		for _, common := range page.CommonPrefixes {
			if p := aws.ToString(common.Prefix); p != "" {
				folders[p] = struct{}{}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return sortedKeys(folders), nil
}

// ListObjects returns the keys directly under prefix.
func (r *S3Repository) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	objects := make(map[string]struct{})

	err := r.paginate(ctx, prefix, func(page *s3.ListObjectsV2Output) {
		for _, object := range page.Contents {
			if key := aws.ToString(object.Key); key != "" {
				objects[key] = struct{}{}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	return sortedKeys(objects), nil
}

// Head returns the size and modification time of key.
func (r *S3Repository) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	normalized, err := normalizeKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, key)
	}

	out, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(normalized),
	})
	if err != nil {
		return nil, r.translate("head object", normalized, err)
	}

	var lastModified time.Time
	if out.LastModified != nil {
		lastModified = *out.LastModified
	}

	return &ObjectInfo{
		Key:          normalized,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: lastModified,
		URL:          "s3://" + r.bucket + "/" + normalized,
	}, nil
}

// Get downloads the whole object behind key.
func (r *S3Repository) Get(ctx context.Context, key string) ([]byte, error) {
	normalized, err := normalizeKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, key)
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(normalized),
	})
	if err != nil {
		return nil, r.translate("get object", normalized, err)
	}

	defer func() {
		_ = out.Body.Close()
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", normalized, err)
	}

	return data, nil
}

// Put uploads data under key.
func (r *S3Repository) Put(ctx context.Context, key string, data []byte) error {
	normalized, err := normalizeKey(key)
	if err != nil {
		return fmt.Errorf("%w: %q", err, key)
	}

	_, err = r.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(r.bucket),
		Key:           aws.String(normalized),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", normalized, err)
	}

	return nil
}

// paginate walks every ListObjectsV2 page for one folder level.
func (r *S3Repository) paginate(ctx context.Context, prefix string, visit func(*s3.ListObjectsV2Output)) error {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Delimiter: aws.String(folderDelimiter),
	}

	if prefix = normalizePrefix(prefix); prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("list objects under %q: %w", prefix, err)
		}

		visit(page)
	}

	return nil
}

// translate maps S3 not-found responses onto ErrNotFound.
func (r *S3Repository) translate(operation, key string, err error) error {
	var (
		notFound *types.NotFound
		noSuch   *types.NoSuchKey
	)

	if errors.As(err, &notFound) || errors.As(err, &noSuch) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	return fmt.Errorf("%s %s: %w", operation, key, err)
}
