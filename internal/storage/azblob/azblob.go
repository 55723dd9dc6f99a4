// Package azblob registers the azblob destination: records are buffered as
// NDJSON and uploaded to one block blob when the run finalizes.
package azblob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	sdkblob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"conduit/internal/connector"
	"conduit/internal/logger"
	"conduit/internal/records"
	"conduit/internal/retry"
)

// Type is the registry name of this connector.
const Type = "azblob"

// store is the slice of the blob API the destination needs.
type store interface {
	// download returns the current blob content; ok is false when the blob
	// does not exist.
	download(ctx context.Context) (data []byte, ok bool, err error)
	upload(ctx context.Context, data []byte) error
	location() string
}

type azureStore struct {
	client    *sdkblob.Client
	container string
	blob      string
}

func (s *azureStore) location() string { return s.container + "/" + s.blob }

func (s *azureStore) download(ctx context.Context) ([]byte, bool, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, s.blob, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *azureStore) upload(ctx context.Context, data []byte) error {
	contentType := "application/x-ndjson"
	_, err := s.client.UploadBuffer(ctx, s.container, s.blob, data, &sdkblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	return err
}

// location resolves container and blob from the options, or from a
// "container/blob/name" path.
func location(spec connector.Spec) (string, string, error) {
	container := spec.Options.String("container", "")
	blob := spec.Options.String("blob", "")
	if container == "" && blob == "" && spec.Path != "" {
		container, blob, _ = strings.Cut(strings.TrimPrefix(spec.Path, "/"), "/")
	}
	if container == "" || blob == "" {
		return "", "", errors.New("container and blob are required (options or path container/blob)")
	}
	return container, blob, nil
}

// newClient accepts a storage connection string in connection_string or a
// SAS-signed account URL in the service_url option.
func newClient(spec connector.Spec) (*sdkblob.Client, error) {
	if spec.DSN != "" {
		return sdkblob.NewClientFromConnectionString(spec.DSN, nil)
	}
	if u := spec.Options.String("service_url", ""); u != "" {
		return sdkblob.NewClientWithNoCredential(u, nil)
	}
	return nil, errors.New("connection_string or options.service_url is required")
}

// Destination buffers NDJSON in memory until Finalize.
type Destination struct {
	name   string
	mode   connector.WriteMode
	store  store
	policy retry.Policy
	buf    bytes.Buffer
	enc    *json.Encoder
	rows   int64
	done   bool
	log    logger.Logger
}

// NewDestination validates spec and builds the blob client.
func NewDestination(ctx context.Context, spec connector.Spec) (*Destination, error) {
	if spec.Mode == connector.ModeMerge {
		return nil, fmt.Errorf("azblob: destination %q: write mode merge is not supported", spec.Name)
	}
	container, blob, err := location(spec)
	if err != nil {
		return nil, fmt.Errorf("azblob: destination %q: %w", spec.Name, err)
	}
	client, err := newClient(spec)
	if err != nil {
		return nil, fmt.Errorf("azblob: destination %q: %w", spec.Name, err)
	}
	return newDestination(ctx, spec, &azureStore{client: client, container: container, blob: blob}), nil
}

func newDestination(ctx context.Context, spec connector.Spec, s store) *Destination {
	d := &Destination{
		name:   spec.Name,
		mode:   spec.Mode,
		store:  s,
		policy: spec.RetryPolicy(),
		log:    logger.FromContext(ctx).WithName("conduit:azblob"),
	}
	d.enc = json.NewEncoder(&d.buf)
	d.enc.SetEscapeHTML(false)
	return d
}

// Write appends recs to the buffer.
func (d *Destination) Write(_ context.Context, recs []records.Record) error {
	if d.done {
		return fmt.Errorf("azblob: %s: write after finalize", d.store.location())
	}
	for _, r := range recs {
		if err := d.enc.Encode(r); err != nil {
			return fmt.Errorf("azblob: encode record: %w", err)
		}
		d.rows++
	}
	return nil
}

// Finalize uploads the buffer. Append mode prepends the blob's existing
// content; replacing modes overwrite it, with an empty blob when nothing
// was written.
func (d *Destination) Finalize(ctx context.Context) error {
	if d.done {
		return nil
	}
	if d.rows == 0 && !d.mode.Replaces() {
		d.done = true
		return nil
	}

	payload := d.buf.Bytes()
	if !d.mode.Replaces() {
		var existing []byte
		err := retry.Do(ctx, d.policy, "azblob download", func(ctx context.Context) error {
			data, _, err := d.store.download(ctx)
			existing = data
			return classify(err)
		})
		if err != nil {
			return fmt.Errorf("azblob: read %s: %w", d.store.location(), err)
		}
		if len(existing) > 0 {
			if existing[len(existing)-1] != '\n' {
				existing = append(existing, '\n')
			}
			payload = append(existing, payload...)
		}
	}

	err := retry.Do(ctx, d.policy, "azblob upload", func(ctx context.Context) error {
		return classify(d.store.upload(ctx, payload))
	})
	if err != nil {
		return fmt.Errorf("azblob: upload %s: %w", d.store.location(), err)
	}
	d.done = true
	d.log.Info("blob uploaded", "blob", d.store.location(), "records", d.rows, "bytes", len(payload))
	return nil
}

// Close drops anything not yet uploaded.
func (d *Destination) Close() error {
	if !d.done && d.rows > 0 {
		d.log.Warn("discarding buffered records", "blob", d.store.location(), "records", d.rows)
	}
	d.buf.Reset()
	d.done = true
	return nil
}

// classify marks throttling, server errors and transport failures as
// retryable. Other service responses are permanent.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		if re.StatusCode == http.StatusTooManyRequests || re.StatusCode >= http.StatusInternalServerError {
			return retry.Transient(err)
		}
		return err
	}
	if retry.IsTransient(err) {
		return err
	}
	return retry.Transient(err)
}

// Register adds the azblob destination to reg.
func Register(reg *connector.Registry) {
	reg.RegisterDestination(Type, func(ctx context.Context, spec connector.Spec) (connector.Destination, error) {
		d, err := NewDestination(ctx, spec)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
}

var (
	_ connector.Destination = (*Destination)(nil)
	_ connector.BatchWriter = (*Destination)(nil)
	_ connector.Finalizer   = (*Destination)(nil)
)
