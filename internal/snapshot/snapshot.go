// Package snapshot implements VelesDB's binary snapshot format (spec §6.2):
// a fixed 64-byte header followed by a sequence of per-point entries, each
// independently checksummed. Used for collection snapshots (points and their
// payloads); the HNSW graph is not written here and is rebuilt from the points.
//
// Grounded on the index-file header/section layout shown in the example
// pack's libravdb hnsw-format reference (magic + version + counts + CRC +
// reserved padding, cache-line-sized header) and on the teacher's
// (liliang-cn/sqvect) encoding/gob Save/Load call sites in pkg/index/hnsw.go,
// generalized here to the spec's exact binary layout instead of gob.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"hash/crc32"
	"io"
	"math"
	"strconv"

	"github.com/velesdb/velesdb/internal/verrors"
)

const (
	// Magic identifies a VelesDB snapshot file.
	Magic = "VELS"
	// HeaderSize is the fixed size of the snapshot header in bytes.
	HeaderSize = 64

	versionMajor = 1
	versionMinor = 0
	versionPatch = 0
)

// Version packs MAJOR.MINOR.PATCH into a u32 as (major<<16)|(minor<<8)|patch.
func Version() uint32 {
	return uint32(versionMajor)<<16 | uint32(versionMinor)<<8 | uint32(versionPatch)
}

// Header is the fixed 64-byte snapshot preamble.
type Header struct {
	Version    uint32
	Dimension  uint32
	PointCount uint64
	Flags      uint32
}

// Point is one entry in a snapshot: an id, its vector, and an optional
// JSON-encoded payload.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload []byte // raw JSON text; nil/empty if absent
}

// WriteAll writes header + all points to w in one call. The caller is
// responsible for durability (fsync) of the underlying file.
func WriteAll(w io.Writer, dim int, points []Point) error {
	bw := bufio.NewWriter(w)

	hdr := make([]byte, HeaderSize)
	copy(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], Version())
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(dim))
	binary.LittleEndian.PutUint64(hdr[12:20], uint64(len(points)))
	headerCRC := crc32.ChecksumIEEE(hdr[0:20])
	binary.LittleEndian.PutUint32(hdr[20:24], headerCRC)
	// hdr[24:28] flags left zero; hdr[28:64] reserved, already zero.

	if _, err := bw.Write(hdr); err != nil {
		return verrors.Wrap("snapshot.write", verrors.KindIO, err)
	}

	for _, p := range points {
		if len(p.Vector) != dim {
			return verrors.New("snapshot.write", verrors.KindDimensionMismatch, "point %d vector length %d != dimension %d", p.ID, len(p.Vector), dim)
		}
		if err := writeEntry(bw, p); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return verrors.Wrap("snapshot.write", verrors.KindIO, err)
	}
	return nil
}

func writeEntry(w io.Writer, p Point) error {
	idStr := strconv.FormatUint(p.ID, 10)

	buf := make([]byte, 0, len(p.Vector)*4+2+len(idStr)+4+len(p.Payload))
	vecBytes := make([]byte, len(p.Vector)*4)
	for i, f := range p.Vector {
		binary.LittleEndian.PutUint32(vecBytes[i*4:i*4+4], math.Float32bits(f))
	}
	buf = append(buf, vecBytes...)

	idLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(idLen, uint16(len(idStr)))
	buf = append(buf, idLen...)
	buf = append(buf, idStr...)

	metaLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(metaLen, uint32(len(p.Payload)))
	buf = append(buf, metaLen...)
	buf = append(buf, p.Payload...)

	entryCRC := crc32.ChecksumIEEE(buf)
	crcBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(crcBytes, entryCRC)
	buf = append(buf, crcBytes...)

	if _, err := w.Write(buf); err != nil {
		return verrors.Wrap("snapshot.write", verrors.KindIO, err)
	}
	return nil
}

// ReadAll reads and validates a full snapshot from r, returning its header
// and points in file order. Fails with CorruptSnapshot on any checksum,
// magic, or major-version mismatch.
func ReadAll(r io.Reader) (Header, []Point, error) {
	br := bufio.NewReader(r)

	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(br, hdr); err != nil {
		return Header{}, nil, verrors.Wrap("snapshot.read", verrors.KindCorruptSnapshot, err)
	}
	if string(hdr[0:4]) != Magic {
		return Header{}, nil, verrors.New("snapshot.read", verrors.KindCorruptSnapshot, "bad magic %q", hdr[0:4])
	}
	wantCRC := crc32.ChecksumIEEE(hdr[0:20])
	gotCRC := binary.LittleEndian.Uint32(hdr[20:24])
	if wantCRC != gotCRC {
		return Header{}, nil, verrors.New("snapshot.read", verrors.KindCorruptSnapshot, "header CRC mismatch")
	}

	version := binary.LittleEndian.Uint32(hdr[4:8])
	if (version >> 16) != versionMajor {
		return Header{}, nil, verrors.New("snapshot.read", verrors.KindCorruptSnapshot, "incompatible major version %d", version>>16)
	}

	h := Header{
		Version:    version,
		Dimension:  binary.LittleEndian.Uint32(hdr[8:12]),
		PointCount: binary.LittleEndian.Uint64(hdr[12:20]),
		Flags:      binary.LittleEndian.Uint32(hdr[24:28]),
	}

	points := make([]Point, 0, h.PointCount)
	for i := uint64(0); i < h.PointCount; i++ {
		p, err := readEntry(br, int(h.Dimension))
		if err != nil {
			return Header{}, nil, err
		}
		points = append(points, p)
	}
	return h, points, nil
}

func readEntry(r io.Reader, dim int) (Point, error) {
	vecBytes := make([]byte, dim*4)
	if _, err := io.ReadFull(r, vecBytes); err != nil {
		return Point{}, verrors.Wrap("snapshot.read", verrors.KindCorruptSnapshot, err)
	}
	vector := make([]float32, dim)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(vecBytes[i*4 : i*4+4]))
	}

	idLenBytes := make([]byte, 2)
	if _, err := io.ReadFull(r, idLenBytes); err != nil {
		return Point{}, verrors.Wrap("snapshot.read", verrors.KindCorruptSnapshot, err)
	}
	idLen := binary.LittleEndian.Uint16(idLenBytes)
	idBytes := make([]byte, idLen)
	if _, err := io.ReadFull(r, idBytes); err != nil {
		return Point{}, verrors.Wrap("snapshot.read", verrors.KindCorruptSnapshot, err)
	}
	id, err := strconv.ParseUint(string(idBytes), 10, 64)
	if err != nil {
		return Point{}, verrors.Wrap("snapshot.read", verrors.KindCorruptSnapshot, err)
	}

	metaLenBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, metaLenBytes); err != nil {
		return Point{}, verrors.Wrap("snapshot.read", verrors.KindCorruptSnapshot, err)
	}
	metaLen := binary.LittleEndian.Uint32(metaLenBytes)
	payload := make([]byte, metaLen)
	if metaLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Point{}, verrors.Wrap("snapshot.read", verrors.KindCorruptSnapshot, err)
		}
	}

	crcBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, crcBytes); err != nil {
		return Point{}, verrors.Wrap("snapshot.read", verrors.KindCorruptSnapshot, err)
	}
	wantCRC := binary.LittleEndian.Uint32(crcBytes)

	entryLen := len(vecBytes) + 2 + len(idBytes) + 4 + len(payload)
	entryBytes := make([]byte, 0, entryLen)
	entryBytes = append(entryBytes, vecBytes...)
	entryBytes = append(entryBytes, idLenBytes...)
	entryBytes = append(entryBytes, idBytes...)
	entryBytes = append(entryBytes, metaLenBytes...)
	entryBytes = append(entryBytes, payload...)
	gotCRC := crc32.ChecksumIEEE(entryBytes)
	if gotCRC != wantCRC {
		return Point{}, verrors.New("snapshot.read", verrors.KindCorruptSnapshot, "entry CRC mismatch for point %d", id)
	}

	return Point{ID: id, Vector: vector, Payload: payload}, nil
}

// EncodePayload marshals v (typically a map[string]any) to the snapshot's
// JSON payload representation.
func EncodePayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, verrors.Wrap("snapshot.encode_payload", verrors.KindValidation, err)
	}
	return b, nil
}

// DecodePayload unmarshals a snapshot payload back into a
// map[string]any, or nil if the payload is empty.
func DecodePayload(b []byte) (map[string]any, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, verrors.Wrap("snapshot.decode_payload", verrors.KindCorruptSnapshot, err)
	}
	return v, nil
}
