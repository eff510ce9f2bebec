package artifact

import (
	"context"
	"io"
	"os"

	"github.com/hupe1980/vecquant/quantization"
	"github.com/hupe1980/vecquant/resource"
)

// ErrNotFound is returned when an artifact does not exist.
//
// Implementations should return an error satisfying
// errors.Is(err, ErrNotFound); the default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction over artifact storage: a local directory, an
// S3 bucket or anything S3-compatible.
type Store interface {
	// Open opens an artifact for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create starts a streaming write. The artifact becomes visible only
	// when the returned blob is closed successfully.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Delete removes an artifact. Deleting a missing artifact is not an
	// error.
	Delete(ctx context.Context, name string) error

	// List returns artifact names under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a stored artifact.
type Blob interface {
	io.Closer

	// Size returns the artifact size in bytes.
	Size() int64

	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
}

// WritableBlob is a streaming artifact write in progress.
type WritableBlob interface {
	io.WriteCloser

	// Sync flushes buffered data where the backend supports it.
	Sync() error
}

// readAll reads the full blob contents.
func readAll(ctx context.Context, b Blob) ([]byte, error) {
	data := make([]byte, b.Size())
	if len(data) == 0 {
		return data, nil
	}
	n, err := b.ReadAt(ctx, data, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return data[:n], nil
}

// Publisher uploads and fetches codebook artifacts through a Store,
// with optional compression and IO throttling.
type Publisher struct {
	store       Store
	compression Compression
	rc          *resource.Controller
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithCompression sets the payload codec. Default is ZSTD.
func WithCompression(c Compression) PublisherOption {
	return func(p *Publisher) {
		p.compression = c
	}
}

// WithResourceController throttles uploads against the controller's IO
// budget.
func WithResourceController(rc *resource.Controller) PublisherOption {
	return func(p *Publisher) {
		p.rc = rc
	}
}

// NewPublisher creates a publisher over the given store.
func NewPublisher(store Store, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		store:       store,
		compression: CompressionZSTD,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish encodes the data into the store under name. The write is
// atomic at the store level: Close finalizes or nothing is visible.
func (p *Publisher) Publish(ctx context.Context, name string, data []byte) error {
	w, err := p.store.Create(ctx, name)
	if err != nil {
		return err
	}

	var dst io.Writer = w
	if p.rc != nil {
		dst = resource.NewThrottledWriter(ctx, w, p.rc)
	}
	if _, err := dst.Write(data); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// Fetch reads the raw artifact bytes stored under name.
func (p *Publisher) Fetch(ctx context.Context, name string) ([]byte, error) {
	b, err := p.store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()
	return readAll(ctx, b)
}

// PublishCodebook encodes the codebook with the publisher's codec and
// uploads it under name.
func (p *Publisher) PublishCodebook(ctx context.Context, name string, cb quantization.Codebook) error {
	data, err := Encode(cb, p.compression)
	if err != nil {
		return err
	}
	return p.Publish(ctx, name, data)
}

// FetchCodebook downloads and decodes the codebook stored under name.
func (p *Publisher) FetchCodebook(ctx context.Context, name string) (quantization.Codebook, error) {
	data, err := p.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// Compression returns the publisher's payload codec.
func (p *Publisher) Compression() Compression { return p.compression }
