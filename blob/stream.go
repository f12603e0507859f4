// Package blob implements chunked object-storage transfer over the async
// substrate: a Stream copies between an io.Reader/io.Writer and a GCS
// object in fixed-size chunks, polling for cancellation between chunks
// and distinguishing a cancelled transfer from an expired upload session.
// Clients come from a clientpool, so a client in active use is never
// evicted mid-transfer.
package blob

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/romanqed/cpio"
	"github.com/romanqed/cpio/clientpool"
)

const defaultChunkSize = 64 << 10

// ObjectRef names a single GCS object.
type ObjectRef struct {
	Bucket string
	Object string
}

// objectWriter is the subset of *storage.Writer a transfer needs; kept as
// an interface so the chunking loop can be exercised against a fake
// without a real GCS connection.
type objectWriter interface {
	io.Writer
	io.Closer
}

// objectReader is the subset of *storage.Reader a transfer needs.
type objectReader interface {
	io.Reader
	io.Closer
}

// Stream performs chunked blob transfers against GCS objects using a
// pooled *storage.Client.
type Stream struct {
	pool      *clientpool.Pool[*storage.Client]
	chunkSize int
}

// New builds a Stream backed by pool, using the default 64KiB chunk size.
func New(pool *clientpool.Pool[*storage.Client]) *Stream {
	return &Stream{pool: pool, chunkSize: defaultChunkSize}
}

// UploadRequest names the identity to pool a client under, the
// destination object, and the source to read from.
type UploadRequest struct {
	Identity clientpool.Identity
	Object   ObjectRef
	Source   io.Reader
}

// Upload streams req.Source into req.Object in chunks, resolving cctx on
// completion. It polls ctx between chunks: if ctx is cancelled mid-transfer
// it finishes cctx with CodeStreamSessionCancelled; if the underlying GCS
// session is rejected as gone, it finishes with CodeStreamSessionExpired.
func (s *Stream) Upload(ctx context.Context, req UploadRequest, cctx *cpio.Context[UploadRequest, struct{}]) {
	ref, err := s.pool.Get(ctx, req.Identity)
	if err != nil {
		cctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, err))
		return
	}
	defer ref.Release()

	w := ref.Value().Bucket(req.Object.Bucket).Object(req.Object.Object).NewWriter(ctx)
	s.uploadChunks(ctx, req.Source, w, cctx)
}

func (s *Stream) uploadChunks(ctx context.Context, src io.Reader, dst objectWriter, cctx *cpio.Context[UploadRequest, struct{}]) {
	buf := make([]byte, s.chunkSize)
	for {
		select {
		case <-ctx.Done():
			_ = dst.Close()
			cctx.ResolveFailure(cpio.Failure(cpio.CodeStreamSessionCancelled, ctx.Err()))
			return
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				s.resolveTransferErr(cctx, writeErr)
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			cctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, readErr))
			return
		}
	}

	if err := dst.Close(); err != nil {
		s.resolveTransferErr(cctx, err)
		return
	}
	cctx.ResolveSuccess(struct{}{})
}

// List returns the names of the objects under prefix in bucket, paging
// through the listing with a pooled client.
func (s *Stream) List(ctx context.Context, id clientpool.Identity, bucket, prefix string) ([]string, error) {
	ref, err := s.pool.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	defer ref.Release()

	it := ref.Value().Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return names, nil
		}
		if err != nil {
			return nil, err
		}
		names = append(names, attrs.Name)
	}
}

// DownloadRequest names the identity to pool a client under, the source
// object, and the destination to write into.
type DownloadRequest struct {
	Identity clientpool.Identity
	Object   ObjectRef
	Dest     io.Writer
}

// Download streams req.Object into req.Dest in chunks, resolving cctx on
// completion, with the same cancellation/expiry semantics as Upload.
func (s *Stream) Download(ctx context.Context, req DownloadRequest, cctx *cpio.Context[DownloadRequest, struct{}]) {
	ref, err := s.pool.Get(ctx, req.Identity)
	if err != nil {
		cctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, err))
		return
	}
	defer ref.Release()

	r, err := ref.Value().Bucket(req.Object.Bucket).Object(req.Object.Object).NewReader(ctx)
	if err != nil {
		cctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, err))
		return
	}
	s.downloadChunks(ctx, r, req.Dest, cctx)
}

func (s *Stream) downloadChunks(ctx context.Context, src objectReader, dst io.Writer, cctx *cpio.Context[DownloadRequest, struct{}]) {
	defer src.Close()
	buf := make([]byte, s.chunkSize)
	for {
		select {
		case <-ctx.Done():
			cctx.ResolveFailure(cpio.Failure(cpio.CodeStreamSessionCancelled, ctx.Err()))
			return
		default:
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				cctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, writeErr))
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.resolveDownloadErr(cctx, readErr)
			return
		}
	}
	cctx.ResolveSuccess(struct{}{})
}

// resolveTransferErr classifies a write/close error from the GCS client:
// a 410 Gone response means the resumable upload session is no longer
// valid and the whole transfer must restart. Anything else is treated as
// retriable.
func (s *Stream) resolveTransferErr(cctx *cpio.Context[UploadRequest, struct{}], err error) {
	if isSessionGone(err) {
		cctx.ResolveFailure(cpio.Failure(cpio.CodeStreamSessionExpired, err))
		return
	}
	cctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, err))
}

func (s *Stream) resolveDownloadErr(cctx *cpio.Context[DownloadRequest, struct{}], err error) {
	if isSessionGone(err) {
		cctx.ResolveFailure(cpio.Failure(cpio.CodeStreamSessionExpired, err))
		return
	}
	cctx.ResolveFailure(cpio.Retriable(cpio.CodeNone, err))
}

func isSessionGone(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 410
	}
	return false
}
