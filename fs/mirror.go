// Mirror backends replicate content blobs to an off-box object store for
// disaster recovery. The teacher's own go.mod carries the AWS, Azure and GCS
// SDKs for its own backend cloud providers; here they back one narrow
// interface instead of three full backend providers.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package fs

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	azblob "github.com/Azure/azure-storage-blob-go/azblob"
	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/duskline/backend/cmn"
)

// ContentMirror replicates a content blob to a secondary store. Put returns
// its error to the caller and does nothing to the local copy. Nothing in
// this codebase calls a mirror from the write path.
type ContentMirror interface {
	Put(ctx context.Context, account cmn.AccountId, content cmn.ContentId, r io.Reader) error
}

func mirrorKey(account cmn.AccountId, content cmn.ContentId) string {
	return string(account) + "/" + string(content) + ".blob"
}

// S3Mirror replicates into an S3 bucket via s3manager's multipart uploader.
type S3Mirror struct {
	Bucket   string
	Uploader *s3manager.Uploader
}

func NewS3Mirror(bucket, region string) (*S3Mirror, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, errors.Wrap(err, "create aws session")
	}
	return &S3Mirror{Bucket: bucket, Uploader: s3manager.NewUploader(sess)}, nil
}

func (m *S3Mirror) Put(ctx context.Context, account cmn.AccountId, content cmn.ContentId, r io.Reader) error {
	_, err := m.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(m.Bucket),
		Key:    aws.String(mirrorKey(account, content)),
		Body:   r,
	})
	return errors.Wrap(err, "s3 mirror put")
}

// AzureMirror replicates into an Azure Blob Storage container.
type AzureMirror struct {
	Container azblob.ContainerURL
}

func NewAzureMirror(container azblob.ContainerURL) *AzureMirror {
	return &AzureMirror{Container: container}
}

func (m *AzureMirror) Put(ctx context.Context, account cmn.AccountId, content cmn.ContentId, r io.Reader) error {
	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, r); err != nil {
		return errors.Wrap(err, "buffer content for azure upload")
	}
	blockBlob := m.Container.NewBlockBlobURL(mirrorKey(account, content))
	_, err := blockBlob.Upload(ctx, bytes.NewReader(buf.Bytes()), azblob.BlobHTTPHeaders{}, azblob.Metadata{},
		azblob.BlobAccessConditions{}, azblob.DefaultAccessTier, nil, azblob.ClientProvidedKeyOptions{}, azblob.ImmutabilityPolicyOptions{})
	return errors.Wrap(err, "azure mirror put")
}

// GCSMirror replicates into a Google Cloud Storage bucket.
type GCSMirror struct {
	Bucket *storage.BucketHandle
}

func NewGCSMirror(client *storage.Client, bucket string) *GCSMirror {
	return &GCSMirror{Bucket: client.Bucket(bucket)}
}

func (m *GCSMirror) Put(ctx context.Context, account cmn.AccountId, content cmn.ContentId, r io.Reader) error {
	w := m.Bucket.Object(mirrorKey(account, content)).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return errors.Wrap(err, "gcs mirror put")
	}
	return errors.Wrap(w.Close(), "close gcs writer")
}

// MirrorSet fans a single Put out to every configured mirror concurrently,
// collecting (not short-circuiting on) failures so one slow or bad backend
// doesn't delay or mask the others; mirrors are best-effort and independent
// of each other.
type MirrorSet []ContentMirror

func (ms MirrorSet) Put(ctx context.Context, account cmn.AccountId, content cmn.ContentId, data []byte) []error {
	errs := make([]error, len(ms))
	var g errgroup.Group
	for i, m := range ms {
		i, m := i, m
		g.Go(func() error {
			errs[i] = m.Put(ctx, account, content, bytes.NewReader(data))
			return nil
		})
	}
	_ = g.Wait()

	out := errs[:0]
	for _, err := range errs {
		if err != nil {
			out = append(out, err)
		}
	}
	return out
}
