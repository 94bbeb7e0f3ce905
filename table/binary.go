package table

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/elastigo/codec"
)

// Binary stream layout:
//
//	magic "ELGO" | version u8 | codec name | compression name |
//	u32 header length | codec-encoded header |
//	per level: u64 payload length | compressed payload
//
// A level payload holds the occupied and tombstone slot positions as Roaring
// bitmaps followed by the occupied entries in ascending slot order, so
// decoding restores the exact placement without rehashing.
var streamMagic = [4]byte{'E', 'L', 'G', 'O'}

const streamVersion = 1

// maxChunkLen bounds every length field read from a stream, so a corrupt
// header cannot trigger a huge allocation.
const maxChunkLen = 1 << 30

// Compression names the payload compression of a binary table stream.
type Compression string

const (
	CompressionZSTD Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
	CompressionNone Compression = "none"
)

func (c Compression) valid() bool {
	switch c {
	case CompressionZSTD, CompressionLZ4, CompressionNone:
		return true
	default:
		return false
	}
}

// EncodeOptions contains configuration options for Encode.
type EncodeOptions struct {
	// Codec encodes the stream header. Defaults to codec.Default.
	Codec codec.Codec

	// Compression is applied to each level payload.
	Compression Compression
}

// DefaultEncodeOptions contains the default configuration options for Encode.
var DefaultEncodeOptions = EncodeOptions{
	Codec:       nil, // resolved to codec.Default
	Compression: CompressionZSTD,
}

type streamHeader struct {
	Capacity       uint64        `json:"capacity"`
	Count          uint64        `json:"count"`
	MinLevelSize   uint64        `json:"min_level_size"`
	MaxLoad        float64       `json:"max_load"`
	TombstoneRatio float64       `json:"tombstone_ratio"`
	Levels         []levelHeader `json:"levels"`
}

type levelHeader struct {
	Level      int    `json:"level"`
	Capacity   uint64 `json:"capacity"`
	Live       uint64 `json:"live"`
	Tombstones uint64 `json:"tombstones"`
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// WriteTo writes the table to w in binary format using DefaultEncodeOptions.
//
// It matches the io.WriterTo interface for toolchain friendliness.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	return t.Encode(w)
}

// Encode writes the table to w in the self-describing binary format. The
// header codec and payload compression are recorded in the stream, so Decode
// needs no out-of-band configuration.
func (t *Table) Encode(w io.Writer, optFns ...func(o *EncodeOptions)) (int64, error) {
	opts := DefaultEncodeOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if !opts.Compression.valid() {
		return 0, fmt.Errorf("unknown compression %q", opts.Compression)
	}

	// Level payloads are independent; encode and compress them concurrently.
	payloads := make([][]byte, len(t.levels))
	g := new(errgroup.Group)
	for li, sa := range t.levels {
		g.Go(func() error {
			raw, err := sa.encodePayload()
			if err != nil {
				return err
			}
			payloads[li], err = compressPayload(opts.Compression, raw)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	cw := &countingWriter{w: w}

	if _, err := cw.Write(streamMagic[:]); err != nil {
		return cw.n, err
	}
	if _, err := cw.Write([]byte{streamVersion}); err != nil {
		return cw.n, err
	}
	if err := writeShortString(cw, opts.Codec.Name()); err != nil {
		return cw.n, err
	}
	if err := writeShortString(cw, string(opts.Compression)); err != nil {
		return cw.n, err
	}

	hdr, err := opts.Codec.Marshal(t.header())
	if err != nil {
		return cw.n, fmt.Errorf("encode header: %w", err)
	}
	if err := writeUint32(cw, uint32(len(hdr))); err != nil {
		return cw.n, err
	}
	if _, err := cw.Write(hdr); err != nil {
		return cw.n, err
	}

	for _, payload := range payloads {
		if err := writeUint64(cw, uint64(len(payload))); err != nil {
			return cw.n, err
		}
		if _, err := cw.Write(payload); err != nil {
			return cw.n, err
		}
	}

	return cw.n, nil
}

func (t *Table) header() *streamHeader {
	hdr := &streamHeader{
		Capacity:       t.totalCapacity,
		Count:          t.count,
		MinLevelSize:   t.opts.MinLevelSize,
		MaxLoad:        t.opts.MaxLoad,
		TombstoneRatio: t.opts.TombstoneRatio,
		Levels:         make([]levelHeader, len(t.levels)),
	}
	for i, sa := range t.levels {
		hdr.Levels[i] = levelHeader{
			Level:      sa.level,
			Capacity:   sa.capacity,
			Live:       sa.live,
			Tombstones: sa.tombstones,
		}
	}
	return hdr
}

// encodePayload serializes one level: occupied bitmap, tombstone bitmap, then
// the occupied entries in ascending slot order.
func (sa *subArray) encodePayload() ([]byte, error) {
	if sa.capacity > math.MaxUint32 {
		return nil, fmt.Errorf("level %d capacity %d exceeds encodable maximum", sa.level, sa.capacity)
	}

	occupied := roaring.New()
	tombstones := roaring.New()
	for i := range sa.slots {
		switch sa.slots[i].state {
		case slotOccupied:
			occupied.Add(uint32(i))
		case slotTombstone:
			tombstones.Add(uint32(i))
		}
	}

	var buf bytes.Buffer

	for _, bm := range []*roaring.Bitmap{occupied, tombstones} {
		data, err := bm.ToBytes()
		if err != nil {
			return nil, fmt.Errorf("serialize level %d bitmap: %w", sa.level, err)
		}
		if err := writeUint32(&buf, uint32(len(data))); err != nil {
			return nil, err
		}
		buf.Write(data)
	}

	it := occupied.Iterator()
	for it.HasNext() {
		s := &sa.slots[it.Next()]
		if err := writeUint32(&buf, uint32(len(s.key))); err != nil {
			return nil, err
		}
		buf.Write(s.key)
		if err := writeUint32(&buf, uint32(len(s.value))); err != nil {
			return nil, err
		}
		buf.Write(s.value)
	}

	return buf.Bytes(), nil
}

// Decode reads a binary table stream and reconstructs the table with its
// exact slot placement. Layout parameters come from the stream; optFns can
// set non-encoded options such as OnRebuild.
func Decode(r io.Reader, optFns ...func(o *Options)) (*Table, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != streamMagic {
		return nil, fmt.Errorf("bad magic %q: not an elastigo table stream", magic[:])
	}

	var version [1]byte
	if _, err := io.ReadFull(r, version[:]); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version[0] != streamVersion {
		return nil, fmt.Errorf("unsupported stream version %d", version[0])
	}

	codecName, err := readShortString(r)
	if err != nil {
		return nil, fmt.Errorf("read codec name: %w", err)
	}
	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", codecName)
	}

	compressionName, err := readShortString(r)
	if err != nil {
		return nil, fmt.Errorf("read compression name: %w", err)
	}
	compression := Compression(compressionName)
	if !compression.valid() {
		return nil, fmt.Errorf("unknown compression %q", compressionName)
	}

	hdrLen, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	if hdrLen > maxChunkLen {
		return nil, fmt.Errorf("header length %d exceeds limit", hdrLen)
	}
	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(r, hdrBytes); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var hdr streamHeader
	if err := c.Unmarshal(hdrBytes, &hdr); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	t, err := tableFromHeader(&hdr, optFns)
	if err != nil {
		return nil, err
	}

	for li, sa := range t.levels {
		payloadLen, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("read level %d payload length: %w", li, err)
		}
		if payloadLen > maxChunkLen {
			return nil, fmt.Errorf("level %d payload length %d exceeds limit", li, payloadLen)
		}
		payload := make([]byte, payloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("read level %d payload: %w", li, err)
		}

		raw, err := decompressPayload(compression, payload)
		if err != nil {
			return nil, fmt.Errorf("decompress level %d: %w", li, err)
		}
		if err := sa.decodePayload(raw, &hdr.Levels[li]); err != nil {
			return nil, fmt.Errorf("decode level %d: %w", li, err)
		}
		t.count += sa.live
	}

	if t.count != hdr.Count {
		return nil, fmt.Errorf("stream corrupt: header count %d, decoded %d", hdr.Count, t.count)
	}

	return t, nil
}

func tableFromHeader(hdr *streamHeader, optFns []func(o *Options)) (*Table, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	// Layout parameters are authoritative from the stream.
	opts.Capacity = hdr.Capacity
	opts.MinLevelSize = hdr.MinLevelSize
	opts.MaxLoad = hdr.MaxLoad
	opts.TombstoneRatio = hdr.TombstoneRatio

	if err := validateOptions(&opts); err != nil {
		return nil, fmt.Errorf("stream header: %w", err)
	}

	levels := buildLevels(hdr.Capacity, hdr.MinLevelSize)
	if len(levels) != len(hdr.Levels) {
		return nil, fmt.Errorf("stream corrupt: header has %d levels, layout yields %d", len(hdr.Levels), len(levels))
	}
	for i, sa := range levels {
		if sa.capacity != hdr.Levels[i].Capacity {
			return nil, fmt.Errorf("stream corrupt: level %d capacity %d, layout yields %d", i, hdr.Levels[i].Capacity, sa.capacity)
		}
	}

	return &Table{
		levels:        levels,
		totalCapacity: hdr.Capacity,
		opts:          opts,
	}, nil
}

// decodePayload restores one level's slots from its raw payload.
func (sa *subArray) decodePayload(raw []byte, hdr *levelHeader) error {
	r := bytes.NewReader(raw)

	occupied, err := readBitmap(r)
	if err != nil {
		return fmt.Errorf("occupied bitmap: %w", err)
	}
	tombstones, err := readBitmap(r)
	if err != nil {
		return fmt.Errorf("tombstone bitmap: %w", err)
	}

	if !occupied.IsEmpty() && uint64(occupied.Maximum()) >= sa.capacity {
		return fmt.Errorf("occupied slot %d out of range (capacity %d)", occupied.Maximum(), sa.capacity)
	}
	if !tombstones.IsEmpty() && uint64(tombstones.Maximum()) >= sa.capacity {
		return fmt.Errorf("tombstone slot %d out of range (capacity %d)", tombstones.Maximum(), sa.capacity)
	}

	it := tombstones.Iterator()
	for it.HasNext() {
		sa.slots[it.Next()].state = slotTombstone
	}
	sa.tombstones = tombstones.GetCardinality()

	it = occupied.Iterator()
	for it.HasNext() {
		s := &sa.slots[it.Next()]
		if s.state != slotEmpty {
			return fmt.Errorf("slot marked both occupied and tombstone")
		}
		if s.key, err = readChunk(r); err != nil {
			return fmt.Errorf("entry key: %w", err)
		}
		if s.value, err = readChunk(r); err != nil {
			return fmt.Errorf("entry value: %w", err)
		}
		s.state = slotOccupied
	}
	sa.live = occupied.GetCardinality()

	if sa.live != hdr.Live || sa.tombstones != hdr.Tombstones {
		return fmt.Errorf("counter mismatch: header (%d live, %d tombstones), payload (%d, %d)",
			hdr.Live, hdr.Tombstones, sa.live, sa.tombstones)
	}
	if sa.live+sa.tombstones > sa.capacity {
		return fmt.Errorf("live %d + tombstones %d exceed capacity %d", sa.live, sa.tombstones, sa.capacity)
	}
	return nil
}

func readBitmap(r *bytes.Reader) (*roaring.Bitmap, error) {
	data, err := readChunk(r)
	if err != nil {
		return nil, err
	}
	bm := roaring.New()
	if err := bm.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return bm, nil
}

func readChunk(r io.Reader) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if n > maxChunkLen {
		return nil, fmt.Errorf("chunk length %d exceeds limit", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

func compressPayload(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressionZSTD:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		zw := lz4.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return raw, nil
	}
}

func decompressPayload(c Compression, data []byte) ([]byte, error) {
	switch c {
	case CompressionZSTD:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return data, nil
	}
}

func writeShortString(w io.Writer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("string %q too long for stream", s)
	}
	if _, err := w.Write([]byte{byte(len(s))}); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readShortString(r io.Reader) (string, error) {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return "", err
	}
	data := make([]byte, n[0])
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return string(data), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
