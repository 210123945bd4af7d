package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 keeps objects in memory. Multipart uploads are not supported; the
// test snapshots are far below the uploader's part size.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	times   map[string]time.Time
	now     time.Time
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects: make(map[string][]byte),
		times:   make(map[string]time.Time),
		now:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.times[aws.ToString(in.Key)] = f.now
	f.now = f.now.Add(time.Minute)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(f.objects[k]))),
			LastModified: aws.Time(f.times[k]),
		})
	}
	return out, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if aws.ToString(in.Bucket) != "photos" {
		return nil, errors.New("no such bucket")
	}
	return &s3.HeadBucketOutput{}, nil
}

func TestS3Store_PutGetList(t *testing.T) {
	ctx := context.Background()
	fake := newFakeS3()
	s := newS3StoreWithClient("offsite", "photos", "snapshots", fake)

	for _, key := range []string{"first.json", "second.json"} {
		body := `{"key":"` + key + `"}`
		if err := s.Put(ctx, key, strings.NewReader(body), int64(len(body))); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	if _, ok := fake.objects["snapshots/first.json"]; !ok {
		t.Errorf("object not stored under prefix, have %v", fake.objects)
	}
	// Objects outside the prefix are not part of the store.
	fake.objects["other/x.json"] = []byte("x")

	var buf bytes.Buffer
	if err := s.Get(ctx, "first.json", &buf); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if buf.String() != `{"key":"first.json"}` {
		t.Errorf("Get() = %q", buf.String())
	}

	if err := s.Get(ctx, "missing.json", &buf); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() missing error = %v, want ErrNotFound", err)
	}

	items, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(List()) = %d, want 2: %+v", len(items), items)
	}
	if items[0].Key != "second.json" || items[1].Key != "first.json" {
		t.Errorf("List() = [%s %s], want [second.json first.json]", items[0].Key, items[1].Key)
	}
}

func TestS3Store_PutSizeMismatch(t *testing.T) {
	s := newS3StoreWithClient("offsite", "photos", "", newFakeS3())
	if err := s.Put(context.Background(), "a.json", strings.NewReader("abc"), 99); err == nil {
		t.Error("Put() expected size mismatch error")
	}
}

func TestS3Store_ValidateSetup(t *testing.T) {
	ctx := context.Background()
	if err := newS3StoreWithClient("ok", "photos", "", newFakeS3()).ValidateSetup(ctx); err != nil {
		t.Errorf("ValidateSetup() error = %v", err)
	}
	if err := newS3StoreWithClient("bad", "missing", "", newFakeS3()).ValidateSetup(ctx); err == nil {
		t.Error("ValidateSetup() expected error for missing bucket")
	}
}
