package s3

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/document-analyzer/pkg/logger"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deleted []string
	pages   []*s3.ListObjectsV2Output
	getErr  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("body"))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func TestStoreSetsContentType(t *testing.T) {
	fake := &fakeS3{}
	s := NewWithClient(fake, "docs", "us-east-1", logger.NewTestLogger())

	key, err := s.Store(context.Background(), strings.NewReader("{}"), "results/t1.json")
	require.NoError(t, err)
	assert.Equal(t, "results/t1.json", key)
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "docs", aws.ToString(fake.puts[0].Bucket))
	assert.Equal(t, "application/json", aws.ToString(fake.puts[0].ContentType))
}

func TestGetMissingKeyIsNotExist(t *testing.T) {
	fake := &fakeS3{getErr: &types.NoSuchKey{}}
	s := NewWithClient(fake, "docs", "", logger.NewTestLogger())

	_, err := s.Get(context.Background(), "absent.pdf")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	fake.getErr = errors.New("boom")
	_, err = s.Get(context.Background(), "x.pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, fs.ErrNotExist)
}

func TestCleanupBeforeWalksPages(t *testing.T) {
	threshold := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	old := threshold.Add(-time.Hour)
	fresh := threshold.Add(time.Hour)

	fake := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents: []types.Object{
				{Key: aws.String("results/a.json"), LastModified: &old},
				{Key: aws.String("results/b.json"), LastModified: &fresh},
			},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents: []types.Object{
				{Key: aws.String("results/c.json"), LastModified: &old},
			},
		},
	}}
	s := NewWithClient(fake, "docs", "", logger.NewTestLogger())

	require.NoError(t, s.CleanupBefore(context.Background(), "results/", threshold))
	assert.Equal(t, []string{"results/a.json", "results/c.json"}, fake.deleted)
}
