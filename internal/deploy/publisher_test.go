package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type put struct {
	bucket, key, contentType, cacheControl string
	data                                   string
}

type fakeStore struct {
	mu        sync.Mutex
	buckets   []string
	puts      []put
	failKey   string
	bucketErr error
}

func (f *fakeStore) EnsureBucket(ctx context.Context, bucket string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buckets = append(f.buckets, bucket)
	return f.bucketErr
}

func (f *fakeStore) Put(ctx context.Context, bucket, key string, data []byte, contentType, cacheControl string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if key == f.failKey {
		return errors.New("upload refused")
	}
	f.puts = append(f.puts, put{bucket: bucket, key: key, data: string(data), contentType: contentType, cacheControl: cacheControl})
	return nil
}

func (f *fakeStore) byKey() map[string]put {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]put, len(f.puts))
	for _, p := range f.puts {
		out[p.key] = p
	}
	return out
}

func TestPublishUploadsIndexAndVersion(t *testing.T) {
	store := &fakeStore{}
	pub := NewPublisher(store, "sites", "https://cdn.example/sites/")
	pub.now = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

	dep, err := pub.Publish(context.Background(), "My Cool App", "<h1>hi</h1>")
	require.NoError(t, err)

	assert.Equal(t, "my-cool-app", dep.Slug)
	assert.Len(t, dep.Version, 24)
	assert.Equal(t, "https://cdn.example/sites/my-cool-app/", dep.URL)
	assert.Equal(t, "https://cdn.example/sites/my-cool-app/versions/"+dep.Version+".html", dep.VersionURL)
	assert.Equal(t, 11, dep.Bytes)

	puts := store.byKey()
	require.Len(t, puts, 2)
	index := puts["my-cool-app/index.html"]
	assert.Equal(t, "<h1>hi</h1>", index.data)
	assert.Equal(t, "no-cache", index.cacheControl)
	assert.Equal(t, htmlContentType, index.contentType)
	assert.Contains(t, puts["my-cool-app/versions/"+dep.Version+".html"].cacheControl, "immutable")
	assert.Equal(t, []string{"sites"}, store.buckets)
}

func TestPublishFailsWhenAnyUploadFails(t *testing.T) {
	store := &fakeStore{failKey: "demo/index.html"}
	_, err := NewPublisher(store, "sites", "").Publish(context.Background(), "Demo", "<p>x</p>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload refused")
}

func TestPublishValidation(t *testing.T) {
	_, err := NewPublisher(nil, "sites", "").Publish(context.Background(), "Demo", "x")
	assert.ErrorIs(t, err, ErrNotConfigured)

	var nilPub *Publisher
	_, err = nilPub.Publish(context.Background(), "Demo", "x")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewPublisher(&fakeStore{}, "sites", "").Publish(context.Background(), "Demo", "  ")
	assert.ErrorIs(t, err, ErrEmptyDocument)

	store := &fakeStore{bucketErr: errors.New("denied")}
	_, err = NewPublisher(store, "sites", "").Publish(context.Background(), "Demo", "x")
	assert.Error(t, err)
	assert.Empty(t, store.puts)
}

func TestPublishWithoutPublicURL(t *testing.T) {
	dep, err := NewPublisher(&fakeStore{}, "sites", "").Publish(context.Background(), "Demo", "x")
	require.NoError(t, err)
	assert.Equal(t, "s3://sites/demo/", dep.URL)
}

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"My Cool App":     "my-cool-app",
		"  spaced  out  ": "spaced-out",
		"a--b__c":         "a-b__c",
		"Émoji ☃":         "moji",
		"":                "untitled",
		"---":             "untitled",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slug(in), in)
	}
}

func TestVersionIsContentAddressed(t *testing.T) {
	assert.Equal(t, Version([]byte("a")), Version([]byte("a")))
	assert.NotEqual(t, Version([]byte("a")), Version([]byte("b")))
}
