package s3target

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/chainsnap/pkg/distribution"
)

// fakeS3 is an in-memory bucket. Uploads in these tests stay below the
// multipart threshold so only PutObject is exercised.
type fakeS3 struct {
	bucket  string
	objects map[string][]byte
	headErr error
}

func newFakeS3(bucket string) *fakeS3 {
	return &fakeS3{bucket: bucket, objects: map[string][]byte{}}
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if aws.ToString(in.Bucket) != f.bucket {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(data)))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestTarget_Connect(t *testing.T) {
	ctx := context.Background()

	ok := New(Config{Name: "bucket", Bucket: "snapshots"}, newFakeS3("snapshots"))
	require.NoError(t, ok.Connect(ctx))
	assert.Equal(t, Kind, ok.Kind())

	missing := New(Config{Bucket: "other"}, newFakeS3("snapshots"))
	assert.Error(t, missing.Connect(ctx))

	denied := newFakeS3("snapshots")
	denied.headErr = errors.New("api error Forbidden")
	assert.ErrorContains(t, New(Config{Bucket: "snapshots"}, denied).Connect(ctx), "Forbidden")
}

func TestTarget_ObjectOperations(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3("snapshots")
	fake.objects["public/testnet/grin_testnet_full_2026-10-18.tar.gz"] = []byte("other network")
	fake.objects["public/mainnet/nested/file"] = []byte("ignored")

	tgt := New(Config{Bucket: "snapshots", Prefix: "/public/mainnet/"}, fake)
	require.NoError(t, tgt.Connect(ctx))
	require.NoError(t, tgt.EnsureDir(ctx))

	data, err := tgt.ReadFile(ctx, "status.json")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, tgt.Put(ctx, "status.json", strings.NewReader(`{"state":"completed"}`), 21))
	require.NoError(t, tgt.Put(ctx, "grin_mainnet_pruned_2026-10-18.tar.gz", strings.NewReader("blob"), 4))
	assert.Contains(t, fake.objects, "public/mainnet/status.json")

	names, err := tgt.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"grin_mainnet_pruned_2026-10-18.tar.gz", "status.json"}, names)

	data, err = tgt.ReadFile(ctx, "status.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"completed"}`, string(data))

	require.NoError(t, tgt.Remove(ctx, "grin_mainnet_pruned_2026-10-18.tar.gz"))
	assert.NotContains(t, fake.objects, "public/mainnet/grin_mainnet_pruned_2026-10-18.tar.gz")

	assert.ErrorIs(t, tgt.FixOwnership(ctx), distribution.ErrUnsupported)
	assert.NoError(t, tgt.Close())
}

func TestTarget_PutBeforeConnect(t *testing.T) {
	tgt := New(Config{Bucket: "snapshots"}, newFakeS3("snapshots"))
	assert.Error(t, tgt.Put(context.Background(), "a", strings.NewReader("x"), 1))
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"status.json", "application/json"},
		{"grin_mainnet_full_2026-10-18.tar.gz", "application/gzip"},
		{"grin_mainnet_full_2026-10-18.sha256", "text/plain; charset=utf-8"},
		{"RECOVERY.txt", "text/plain; charset=utf-8"},
		{"other.bin", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, contentType(tt.name))
		})
	}
}
