package blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory stand-in for the S3 API honoring prefix and delimiter.
type fakeS3 struct {
	// mu protects objects.
	mu sync.Mutex
	// objects maps keys to bodies.
	objects map[string][]byte
}

// newFakeS3 creates an empty fake bucket.
func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

// ListObjectsV2 groups keys by the first delimiter after the prefix, one page only.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var (
		prefix    = aws.ToString(in.Prefix)
		delimiter = aws.ToString(in.Delimiter)
		out       = new(s3.ListObjectsV2Output)
		seen      = make(map[string]bool)
	)

	for key := range f.objects {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}

		if child, _, nested := strings.Cut(rest, delimiter); delimiter != "" && nested {
			common := prefix + child + delimiter
			if !seen[common] {
				seen[common] = true
				out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(common)})
			}

			continue
		}

		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}

	return out, nil
}

// HeadObject returns types.NotFound for missing keys, like the real service.
func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}

	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(time.Now()),
	}, nil
}

// GetObject returns types.NoSuchKey for missing keys.
func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}

	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

// PutObject stores the body.
func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.objects[aws.ToString(in.Key)] = data

	return new(s3.PutObjectOutput), nil
}
