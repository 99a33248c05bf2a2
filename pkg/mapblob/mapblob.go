// Package mapblob implements the two on-disk map-serialization formats: v0
// ("pithos", read-only) and v1 ("archipelago", read-write). A map blob is
// header ∥ record[0] ∥ record[1] ∥ … padded to exactly BlockSize bytes.
package mapblob

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/marmos91/mapperd/pkg/bufpool"
	"github.com/marmos91/mapperd/pkg/hash"
)

// blobPool supplies the BlockSize-sized scratch buffer encode builds a blob
// in, sized to the pool's large tier so that scratch buffer is reused across
// saves. Each Encode still returns a freshly allocated BlockSize copy; the
// pooled buffer itself never escapes this package.
var blobPool = bufpool.NewPool(&bufpool.Config{LargeSize: BlockSize})

// BlockSize is the fixed size of a backing object and of a map blob.
// Grounded on the teacher's pkg/store/block.BlockSize — same 4 MiB constant,
// same role as the fixed granularity of an object store blob.
const BlockSize = 4 << 20 // 4 MiB

// ArchipelagoPrefix marks a volume or object name as archipelago-managed
// (writable, exclusively owned) as opposed to a shared pithos/read-only name.
const ArchipelagoPrefix = "archip_"

// MaxVolumeLen bounds the volume name length accepted by the mapper; the
// dispatcher rejects a longer name with the volume-too-long protocol error
// before it reaches any handler. MaxObjectLen bounds object names, but every
// object name in this system is mapper-derived (a bare or archip_-prefixed
// hex digest, well under the limit) rather than accepted from a caller, so
// there is no request-ingress site to check it against.
const (
	MaxVolumeLen = 256
	MaxObjectLen = 256
)

// Version identifies the map-blob format.
type Version uint32

const (
	VersionPithos      Version = 0
	VersionArchipelago Version = 1
)

const (
	v0RecordWidth = hash.Size      // 32
	v1RecordWidth = 1 + hash.Size  // 33
	v1HeaderWidth = 4 + 8          // u32 version, u64 size
)

// Record is one decoded object slot: whether the node currently exists as an
// exclusively-owned object (EXIST), and the digest of the target object.
type Record struct {
	Exist  bool
	Digest hash.Digest
}

// Blob is a fully decoded map blob.
type Blob struct {
	Version Version
	// Size is the volume size in bytes. For v0 this is inferred as the count
	// of non-zero records times BlockSize; for v1 it comes from the header.
	Size    uint64
	Records []Record
}

// RecordWidth returns the per-slot record width for this version.
func (v Version) RecordWidth() int {
	if v == VersionArchipelago {
		return v1RecordWidth
	}
	return v0RecordWidth
}

// HeaderWidth returns the fixed header width for this version.
func (v Version) HeaderWidth() int {
	if v == VersionArchipelago {
		return v1HeaderWidth
	}
	return 0
}

// MaxVolumeSize returns the largest volume size representable by a single
// BlockSize-sized map blob of the given version:
// floor((BlockSize - header) / recordWidth) * BlockSize.
func MaxVolumeSize(v Version) uint64 {
	maxRecords := (BlockSize - v.HeaderWidth()) / v.RecordWidth()
	return uint64(maxRecords) * BlockSize
}

// CalcMapObjs returns the number of object slots a volume of the given size
// spans, i.e. ceil(size / BlockSize). A zero size spans zero slots.
func CalcMapObjs(size uint64) uint32 {
	if size == 0 {
		return 0
	}
	return uint32((size + BlockSize - 1) / BlockSize)
}

// IsArchipelagoName reports whether a volume or object name carries the
// archip_ prefix that marks it as archipelago-managed.
func IsArchipelagoName(name string) bool {
	return strings.HasPrefix(name, ArchipelagoPrefix)
}

// Decode decodes a map blob. The version is determined by inspecting
// volumeName: a name prefixed with "archip_" is decoded as v1 (a header
// version greater than 1 is rejected); any other name is decoded as v0.
func Decode(volumeName string, data []byte) (*Blob, error) {
	if len(data) < v0RecordWidth || allZero(data[:v0RecordWidth]) {
		return nil, fmt.Errorf("mapblob: map blob absent or never written")
	}
	if IsArchipelagoName(volumeName) {
		return decodeV1(data)
	}
	return decodeV0(data)
}

// Encode serializes a blob into a full BlockSize-sized buffer.
func Encode(b *Blob) ([]byte, error) {
	if b.Version == VersionArchipelago {
		return encodeV1(b)
	}
	return encodeV0(b)
}

func decodeV0(data []byte) (*Blob, error) {
	if len(data) < BlockSize {
		return nil, fmt.Errorf("mapblob: v0 blob too short: %d bytes", len(data))
	}

	maxRecords := BlockSize / v0RecordWidth

	// Count non-zero records first so we allocate exactly the slots in use,
	// rather than the teacher-scale max and inserting only the non-zero ones.
	nonZero := 0
	for i := 0; i < maxRecords; i++ {
		off := i * v0RecordWidth
		if allZero(data[off : off+v0RecordWidth]) {
			break
		}
		nonZero++
	}

	records := make([]Record, nonZero)
	for i := 0; i < nonZero; i++ {
		off := i * v0RecordWidth
		var d hash.Digest
		copy(d[:], data[off:off+v0RecordWidth])
		records[i] = Record{Exist: true, Digest: d}
	}

	return &Blob{
		Version: VersionPithos,
		Size:    uint64(len(records)) * BlockSize,
		Records: records,
	}, nil
}

func encodeV0(b *Blob) ([]byte, error) {
	scratch := blobPool.Get(BlockSize)
	defer blobPool.Put(scratch)
	for i := range scratch {
		scratch[i] = 0
	}

	for i, rec := range b.Records {
		off := i * v0RecordWidth
		if off+v0RecordWidth > BlockSize {
			return nil, fmt.Errorf("mapblob: volume has too many objects for a v0 blob")
		}
		copy(scratch[off:off+v0RecordWidth], rec.Digest[:])
	}

	out := make([]byte, BlockSize)
	copy(out, scratch)
	return out, nil
}

func decodeV1(data []byte) (*Blob, error) {
	if len(data) < v1HeaderWidth {
		return nil, fmt.Errorf("mapblob: v1 blob shorter than header")
	}

	version := Version(binary.LittleEndian.Uint32(data[0:4]))
	if version > VersionArchipelago {
		return nil, fmt.Errorf("mapblob: unsupported version %d", version)
	}
	size := binary.LittleEndian.Uint64(data[4:12])

	maxRecords := (len(data) - v1HeaderWidth) / v1RecordWidth
	nrecords := int((size + BlockSize - 1) / BlockSize)
	if nrecords > maxRecords {
		nrecords = maxRecords
	}

	records := make([]Record, nrecords)
	for i := 0; i < nrecords; i++ {
		off := v1HeaderWidth + i*v1RecordWidth
		flag := data[off]
		var d hash.Digest
		copy(d[:], data[off+1:off+1+hash.Size])
		records[i] = Record{Exist: flag != 0, Digest: d}
	}

	return &Blob{Version: VersionArchipelago, Size: size, Records: records}, nil
}

func encodeV1(b *Blob) ([]byte, error) {
	scratch := blobPool.Get(BlockSize)
	defer blobPool.Put(scratch)
	for i := range scratch {
		scratch[i] = 0
	}

	binary.LittleEndian.PutUint32(scratch[0:4], uint32(VersionArchipelago))
	binary.LittleEndian.PutUint64(scratch[4:12], b.Size)

	for i, rec := range b.Records {
		off := v1HeaderWidth + i*v1RecordWidth
		if off+v1RecordWidth > BlockSize {
			return nil, fmt.Errorf("mapblob: volume has too many objects for a v1 blob")
		}
		if rec.Exist {
			scratch[off] = 1
		}
		copy(scratch[off+1:off+1+hash.Size], rec.Digest[:])
	}

	out := make([]byte, BlockSize)
	copy(out, scratch)
	return out, nil
}

// ObjectName derives the name a record's digest should be addressed by: for
// v1 records with EXIST set, the archip_-prefixed hex digest (an exclusively
// owned, writable object); otherwise the bare hex digest (a shared, read-only
// predecessor).
func (r Record) ObjectName() string {
	hex := hash.Hexlify(r.Digest)
	if r.Exist {
		return ArchipelagoPrefix + hex
	}
	return hex
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
