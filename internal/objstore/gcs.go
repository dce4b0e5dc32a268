package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCS is a Store backed by Google Cloud Storage. Completion markers are kept
// in object custom metadata since GCS has no object tags.
// GCS does not implement URLSigner; use NewSignedGCS when a service account
// key is available.
type GCS struct {
	client *storage.Client
}

// NewGCS wraps a storage client.
func NewGCS(client *storage.Client) *GCS {
	return &GCS{client: client}
}

// Provider implements Store.
func (g *GCS) Provider() Provider { return ProviderGCS }

// List implements Store. StartOffset is inclusive in GCS, so the StartAfter
// key itself is filtered out here.
func (g *GCS) List(ctx context.Context, container string, opts ListOptions) (*ListResult, error) {
	q := &storage.Query{Prefix: opts.Prefix}
	if opts.StartAfter != "" {
		q.StartOffset = opts.StartAfter
	}
	if err := q.SetAttrSelection([]string{"Name", "Size", "Updated", "ContentType"}); err != nil {
		return nil, fmt.Errorf("GCS query: %w", err)
	}

	pageSize := opts.MaxKeys
	if pageSize <= 0 {
		pageSize = 1000
	}
	it := g.client.Bucket(container).Objects(ctx, q)
	pager := iterator.NewPager(it, pageSize, opts.ContinuationToken)

	var attrs []*storage.ObjectAttrs
	next, err := pager.NextPage(&attrs)
	if err != nil {
		return nil, fmt.Errorf("GCS list %s: %w", container, err)
	}

	res := &ListResult{ContinuationToken: next, IsTruncated: next != ""}
	for _, a := range attrs {
		if a.Name == "" || a.Name == opts.StartAfter {
			continue
		}
		res.Objects = append(res.Objects, gcsInfo(container, a))
	}
	return res, nil
}

func gcsInfo(container string, a *storage.ObjectAttrs) ObjectInfo {
	return ObjectInfo{
		Container:    container,
		Key:          a.Name,
		Size:         a.Size,
		LastModified: a.Updated,
		ContentType:  a.ContentType,
	}
}

// Head implements Store.
func (g *GCS) Head(ctx context.Context, container, key string) (*ObjectInfo, error) {
	a, err := g.client.Bucket(container).Object(key).Attrs(ctx)
	if err != nil {
		return nil, gcsError("attrs", key, err)
	}
	info := gcsInfo(container, a)
	return &info, nil
}

// GetRange implements Store.
func (g *GCS) GetRange(ctx context.Context, container, key string, offset, length int64) ([]byte, error) {
	if length <= 0 {
		length = -1
	}
	r, err := g.client.Bucket(container).Object(key).NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, gcsError("range read", key, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Download implements Store.
func (g *GCS) Download(ctx context.Context, container, key, localPath string) error {
	r, err := g.client.Bucket(container).Object(key).NewReader(ctx)
	if err != nil {
		return gcsError("read", key, err)
	}
	defer r.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("download: %w", err)
	}
	return f.Close()
}

// Put implements Store.
func (g *GCS) Put(ctx context.Context, container, key string, body io.Reader, contentType string) error {
	w := g.client.Bucket(container).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		w.Close()
		return fmt.Errorf("GCS write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("GCS write %s: %w", key, err)
	}
	return nil
}

// GetTags implements Store from custom metadata.
func (g *GCS) GetTags(ctx context.Context, container, key string) (Tags, error) {
	a, err := g.client.Bucket(container).Object(key).Attrs(ctx)
	if err != nil {
		return nil, gcsError("attrs", key, err)
	}
	return TagsFromMap(a.Metadata), nil
}

// PutTags implements Store. Metadata updates are patches, so keys missing
// from tags are deleted explicitly.
func (g *GCS) PutTags(ctx context.Context, container, key string, tags Tags) error {
	obj := g.client.Bucket(container).Object(key)
	a, err := obj.Attrs(ctx)
	if err != nil {
		return gcsError("attrs", key, err)
	}

	update := metadataPatch(a.Metadata, tags)
	if len(update) == 0 {
		return nil
	}
	if _, err := obj.Update(ctx, storage.ObjectAttrsToUpdate{Metadata: update}); err != nil {
		return gcsError("update metadata", key, err)
	}
	return nil
}

// metadataPatch computes the metadata update turning current into tags.
// An empty value deletes a key.
func metadataPatch(current map[string]string, tags Tags) map[string]string {
	want := tags.Map()
	patch := make(map[string]string)
	for k := range current {
		if _, ok := want[k]; !ok {
			patch[k] = ""
		}
	}
	for k, v := range want {
		if cur, ok := current[k]; !ok || cur != v {
			patch[k] = v
		}
	}
	return patch
}

func gcsError(op, key string, err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("GCS %s %s: %w", op, key, ErrNotFound)
	}
	return fmt.Errorf("GCS %s %s: %w", op, key, err)
}

// SignedGCS is a GCS store that can issue V4 signed read URLs using a
// service account key.
type SignedGCS struct {
	*GCS
	serviceAccount string
	privateKey     []byte
}

// NewSignedGCS wraps client with URL signing. privateKey may contain literal
// "\n" sequences, as it does when passed through environment variables.
func NewSignedGCS(client *storage.Client, serviceAccount, privateKey string) *SignedGCS {
	return &SignedGCS{
		GCS:            NewGCS(client),
		serviceAccount: serviceAccount,
		privateKey:     []byte(strings.ReplaceAll(privateKey, `\n`, "\n")),
	}
}

// PresignGet implements URLSigner.
func (g *SignedGCS) PresignGet(ctx context.Context, container, key string, ttl time.Duration) (string, error) {
	url, err := storage.SignedURL(container, key, &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(ttl),
		GoogleAccessID: g.serviceAccount,
		PrivateKey:     g.privateKey,
	})
	if err != nil {
		return "", fmt.Errorf("GCS sign %s: %w", key, err)
	}
	return url, nil
}
