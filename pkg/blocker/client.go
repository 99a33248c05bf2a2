package blocker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/mapperd/internal/telemetry"
	"github.com/marmos91/mapperd/pkg/mapblob"
	"github.com/marmos91/mapperd/pkg/metrics/prometheus"
)

// DataBlockerClient issues READ/WRITE/COPY/SNAPSHOT/DELETE against the data
// blocker port.
type DataBlockerClient struct {
	transport Transport
	port      int
	metrics   *prometheus.MapperMetrics
}

// NewDataBlockerClient wraps transport for the data blocker's port. metrics
// may be nil (e.g. *prometheus.MapperMetrics(nil)), matching the nil-safe
// recorder pattern used throughout pkg/metrics/prometheus.
func NewDataBlockerClient(transport Transport, port int, metrics *prometheus.MapperMetrics) *DataBlockerClient {
	return &DataBlockerClient{transport: transport, port: port, metrics: metrics}
}

func (c *DataBlockerClient) submit(ctx context.Context, op Op, req *Request) (*Reply, error) {
	ctx, span := telemetry.StartSpan(ctx, "blocker."+op.String())
	defer span.End()
	span.SetAttributes(attribute.String("blocker.target", req.Target))

	start := time.Now()
	reply, err := c.transport.Submit(ctx, c.port, req)
	c.metrics.RecordBlockerRPC("data", op.String(), time.Since(start).Seconds())
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	if reply.Status == StatusFailed {
		telemetry.RecordError(ctx, reply.Err)
		return reply, fmt.Errorf("blocker: data %s on %s failed: %w", op, req.Target, reply.Err)
	}
	return reply, nil
}

// Read reads size bytes at offset from object.
func (c *DataBlockerClient) Read(ctx context.Context, object string, offset, size uint64) ([]byte, error) {
	reply, err := c.submit(ctx, OpRead, &Request{Op: OpRead, Target: object, Offset: offset, Size: size})
	if err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// Write writes payload at offset into object — used both for whole map-blob
// writes (offset 0) and single-record in-place updates.
func (c *DataBlockerClient) Write(ctx context.Context, object string, offset uint64, payload []byte) error {
	_, err := c.submit(ctx, OpWrite, &Request{Op: OpWrite, Target: object, Offset: offset, Size: uint64(len(payload)), Payload: payload})
	return err
}

// Copy writes newObject as a copy of oldObject.
func (c *DataBlockerClient) Copy(ctx context.Context, newObject, oldObject string) error {
	_, err := c.submit(ctx, OpCopy, &Request{Op: OpCopy, Target: newObject, Size: mapblob.BlockSize, Payload: []byte(oldObject)})
	return err
}

// Snapshot mints a fresh content-addressed name for object's current bytes
// and returns it.
func (c *DataBlockerClient) Snapshot(ctx context.Context, object string) (string, error) {
	reply, err := c.submit(ctx, OpSnapshot, &Request{Op: OpSnapshot, Target: object})
	if err != nil {
		return "", err
	}
	return reply.Target, nil
}

// Delete removes object's backing data.
func (c *DataBlockerClient) Delete(ctx context.Context, object string) error {
	_, err := c.submit(ctx, OpDelete, &Request{Op: OpDelete, Target: object})
	return err
}

// MapBlockerClient issues ACQUIRE/RELEASE/READ/WRITE/DELETE against the map
// blocker port.
type MapBlockerClient struct {
	transport Transport
	port      int
	metrics   *prometheus.MapperMetrics
}

// NewMapBlockerClient wraps transport for the map blocker's port.
func NewMapBlockerClient(transport Transport, port int, metrics *prometheus.MapperMetrics) *MapBlockerClient {
	return &MapBlockerClient{transport: transport, port: port, metrics: metrics}
}

func (c *MapBlockerClient) submit(ctx context.Context, op Op, req *Request) (*Reply, error) {
	ctx, span := telemetry.StartSpan(ctx, "blocker."+op.String())
	defer span.End()
	span.SetAttributes(attribute.String("blocker.target", req.Target))

	start := time.Now()
	reply, err := c.transport.Submit(ctx, c.port, req)
	c.metrics.RecordBlockerRPC("map", op.String(), time.Since(start).Seconds())
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	if reply.Status == StatusFailed {
		telemetry.RecordError(ctx, reply.Err)
		return reply, fmt.Errorf("blocker: map %s on %s failed: %w", op, req.Target, reply.Err)
	}
	return reply, nil
}

// Acquire requests an exclusive lease on volume. NOSYNC is implied unless
// force is set, matching spec.md's ACQUIRE(flags={NOSYNC unless FORCE}).
func (c *MapBlockerClient) Acquire(ctx context.Context, volume string, force bool) error {
	flags := FlagNoSync
	if force {
		flags = FlagForce
	}
	_, err := c.submit(ctx, OpAcquire, &Request{Op: OpAcquire, Target: volume, Flags: flags})
	return err
}

// Release drops a previously granted exclusive lease on volume.
func (c *MapBlockerClient) Release(ctx context.Context, volume string) error {
	_, err := c.submit(ctx, OpRelease, &Request{Op: OpRelease, Target: volume})
	return err
}

// ReadBlob reads the full map blob for volume.
func (c *MapBlockerClient) ReadBlob(ctx context.Context, volume string) ([]byte, error) {
	reply, err := c.submit(ctx, OpRead, &Request{Op: OpRead, Target: volume, Offset: 0, Size: mapblob.BlockSize})
	if err != nil {
		return nil, err
	}
	return reply.Data, nil
}

// WriteBlob writes the full map blob for volume.
func (c *MapBlockerClient) WriteBlob(ctx context.Context, volume string, blob []byte) error {
	_, err := c.submit(ctx, OpWrite, &Request{Op: OpWrite, Target: volume, Size: uint64(len(blob)), Payload: blob})
	return err
}

// WriteRecord patches a single record within volume's map blob in place.
func (c *MapBlockerClient) WriteRecord(ctx context.Context, volume string, recordOffset uint64, record []byte) error {
	_, err := c.submit(ctx, OpWrite, &Request{Op: OpWrite, Target: volume, Offset: recordOffset, Size: uint64(len(record)), Payload: record})
	return err
}

// DeleteBlob removes volume's map blob.
func (c *MapBlockerClient) DeleteBlob(ctx context.Context, volume string) error {
	_, err := c.submit(ctx, OpDelete, &Request{Op: OpDelete, Target: volume})
	return err
}
