package storage

import (
	"encoding/binary"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/turingworks/prismdb/internal/compression"
	"github.com/turingworks/prismdb/internal/errorx"
	"github.com/turingworks/prismdb/internal/types"
)

// TableInfo pairs a table's catalog identity with its data for checkpoint
// and load.
type TableInfo struct {
	Name        string
	ColumnNames []string
	Data        *DataTable
}

// WriteDatabase checkpoints the catalog and all row groups into the block
// file at path. Segment payloads go to data blocks; the table/row-group
// index goes to a metadata block chain referenced from the header.
func WriteDatabase(path string, dbID uuid.UUID, tables []TableInfo) error {
	w, err := NewBlockWriter(path)
	if err != nil {
		return err
	}
	var meta metaEncoder
	meta.putUvarint(uint64(len(tables)))
	for _, tbl := range tables {
		if err := tbl.Data.Seal(); err != nil {
			return err
		}
		meta.putString(tbl.Name)
		typs := tbl.Data.Types()
		meta.putUvarint(uint64(len(typs)))
		for i, t := range typs {
			meta.putString(tbl.ColumnNames[i])
			meta.putType(t)
		}
		groups := tbl.Data.RowGroups()
		meta.putUvarint(uint64(len(groups)))
		for _, rg := range groups {
			meta.putUvarint(uint64(rg.Start))
			meta.putUvarint(uint64(rg.Rows()))
			for c := 0; c < rg.ColumnCount(); c++ {
				col := rg.Column(c)
				segs := col.Segments()
				meta.putUvarint(uint64(len(segs)))
				for _, seg := range segs {
					blockID, err := w.WriteChain(BlockData, seg.Payload)
					if err != nil {
						return err
					}
					meta.putUvarint(uint64(seg.CodecTag))
					meta.putUvarint(uint64(seg.RowCount))
					meta.putUvarint(uint64(seg.StartRow))
					meta.putUvarint(blockID)
					meta.putStats(seg.Stats)
				}
			}
		}
	}
	root, err := w.WriteChain(BlockMetadata, meta.bytes())
	if err != nil {
		return err
	}
	if err := w.Finish(dbID, root); err != nil {
		return err
	}
	zap.S().Infow("checkpointed database", "path", path, "tables", len(tables))
	return nil
}

// ReadDatabase loads a checkpointed database file.
func ReadDatabase(path string) (uuid.UUID, []TableInfo, error) {
	r, err := OpenBlockReader(path)
	if err != nil {
		return uuid.UUID{}, nil, err
	}
	defer r.Close()
	metaBytes, err := r.ReadChain(r.Header().RootBlock)
	if err != nil {
		return uuid.UUID{}, nil, err
	}
	dec := metaDecoder{buf: metaBytes}
	tableCount := dec.uvarint()
	tables := make([]TableInfo, 0, tableCount)
	for ti := uint64(0); ti < tableCount; ti++ {
		name := dec.string()
		colCount := dec.uvarint()
		names := make([]string, colCount)
		typs := make([]types.LogicalType, colCount)
		for c := uint64(0); c < colCount; c++ {
			names[c] = dec.string()
			typs[c] = dec.typ()
		}
		data := NewDataTable(typs)
		groupCount := dec.uvarint()
		for g := uint64(0); g < groupCount; g++ {
			start := int64(dec.uvarint())
			rows := int(dec.uvarint())
			rg := NewRowGroup(start, typs)
			for c := uint64(0); c < colCount; c++ {
				segCount := dec.uvarint()
				for s := uint64(0); s < segCount; s++ {
					tag := compression.Tag(dec.uvarint())
					segRows := int(dec.uvarint())
					startRow := int(dec.uvarint())
					blockID := dec.uvarint()
					stats := dec.stats(typs[c])
					payload, err := r.ReadChain(blockID)
					if err != nil {
						return uuid.UUID{}, nil, err
					}
					rg.Column(int(c)).AttachSegment(&ColumnSegment{
						Type:     typs[c],
						CodecTag: tag,
						Payload:  payload,
						RowCount: segRows,
						StartRow: startRow,
						Stats:    stats,
						State:    Persistent,
						BlockID:  blockID,
					})
				}
			}
			rg.count = rows
			data.AttachRowGroup(rg)
		}
		if dec.err != nil {
			return uuid.UUID{}, nil, dec.err
		}
		tables = append(tables, TableInfo{Name: name, ColumnNames: names, Data: data})
	}
	if dec.err != nil {
		return uuid.UUID{}, nil, dec.err
	}
	return r.Header().DatabaseID, tables, nil
}

// metaEncoder builds the metadata payload.
type metaEncoder struct {
	buf []byte
}

func (e *metaEncoder) bytes() []byte { return e.buf }

func (e *metaEncoder) putUvarint(v uint64) {
	e.buf = binary.AppendUvarint(e.buf, v)
}

func (e *metaEncoder) putString(s string) {
	e.putUvarint(uint64(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *metaEncoder) putType(t types.LogicalType) {
	e.buf = append(e.buf, byte(t.ID), t.Precision, t.Scale)
}

func (e *metaEncoder) putValue(v types.Value) {
	if v.Null {
		e.buf = append(e.buf, 0)
		return
	}
	e.buf = append(e.buf, 1)
	switch v.Type.ID {
	case types.Boolean:
		if v.Bool() {
			e.buf = append(e.buf, 1)
		} else {
			e.buf = append(e.buf, 0)
		}
	case types.Float, types.Double:
		e.buf = binary.LittleEndian.AppendUint64(e.buf, math.Float64bits(v.Float64()))
	case types.HugeInt:
		h := v.Hugeint()
		e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(h.Hi))
		e.buf = binary.LittleEndian.AppendUint64(e.buf, h.Lo)
	case types.Varchar:
		e.putString(v.Str())
	case types.Blob:
		e.putUvarint(uint64(len(v.Bytes())))
		e.buf = append(e.buf, v.Bytes()...)
	default:
		e.buf = binary.LittleEndian.AppendUint64(e.buf, uint64(v.Int64()))
	}
}

func (e *metaEncoder) putStats(s SegmentStats) {
	e.putValue(s.Min)
	e.putValue(s.Max)
	e.putUvarint(uint64(s.NullCount))
	e.putUvarint(uint64(s.DistinctEst))
	if s.HasNull {
		e.buf = append(e.buf, 1)
	} else {
		e.buf = append(e.buf, 0)
	}
}

// metaDecoder parses the metadata payload; the first failure sticks.
type metaDecoder struct {
	buf []byte
	pos int
	err error
}

func (d *metaDecoder) fail() {
	if d.err == nil {
		d.err = errorx.IOf("corrupted metadata at offset %d", d.pos)
	}
}

func (d *metaDecoder) uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.buf[d.pos:])
	if n <= 0 {
		d.fail()
		return 0
	}
	d.pos += n
	return v
}

func (d *metaDecoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.pos+n > len(d.buf) {
		d.fail()
		return nil
	}
	out := d.buf[d.pos : d.pos+n]
	d.pos += n
	return out
}

func (d *metaDecoder) string() string {
	n := int(d.uvarint())
	return string(d.take(n))
}

func (d *metaDecoder) typ() types.LogicalType {
	b := d.take(3)
	if b == nil {
		return types.TypeInvalid
	}
	return types.LogicalType{ID: types.TypeID(b[0]), Precision: b[1], Scale: b[2]}
}

func (d *metaDecoder) value(t types.LogicalType) types.Value {
	flag := d.take(1)
	if flag == nil || flag[0] == 0 {
		return types.NewNull(t)
	}
	switch t.ID {
	case types.Boolean:
		b := d.take(1)
		if b == nil {
			return types.NewNull(t)
		}
		return types.NewBoolean(b[0] != 0)
	case types.Float, types.Double:
		b := d.take(8)
		if b == nil {
			return types.NewNull(t)
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(b))
		if t.ID == types.Float {
			return types.NewFloat(float32(f))
		}
		return types.NewDouble(f)
	case types.HugeInt:
		b := d.take(16)
		if b == nil {
			return types.NewNull(t)
		}
		return types.NewHugeint(types.Hugeint{
			Hi: int64(binary.LittleEndian.Uint64(b)),
			Lo: binary.LittleEndian.Uint64(b[8:]),
		})
	case types.Varchar:
		return types.NewVarchar(d.string())
	case types.Blob:
		n := int(d.uvarint())
		b := d.take(n)
		out := make([]byte, len(b))
		copy(out, b)
		return types.NewBlob(out)
	default:
		b := d.take(8)
		if b == nil {
			return types.NewNull(t)
		}
		raw := int64(binary.LittleEndian.Uint64(b))
		switch t.ID {
		case types.TinyInt:
			return types.NewTinyInt(int8(raw))
		case types.SmallInt:
			return types.NewSmallInt(int16(raw))
		case types.Integer:
			return types.NewInteger(int32(raw))
		case types.Date:
			return types.NewDate(int32(raw))
		case types.Time:
			return types.NewTime(raw)
		case types.Timestamp:
			return types.NewTimestamp(raw)
		case types.Decimal:
			return types.NewDecimal(raw, t.Precision, t.Scale)
		default:
			return types.NewBigInt(raw)
		}
	}
}

func (d *metaDecoder) stats(t types.LogicalType) SegmentStats {
	s := SegmentStats{
		Min:         d.value(t),
		Max:         d.value(t),
		NullCount:   int(d.uvarint()),
		DistinctEst: int(d.uvarint()),
	}
	if b := d.take(1); b != nil {
		s.HasNull = b[0] != 0
	}
	return s
}
