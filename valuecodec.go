package beliefdb

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Wire form, used by durable backends:
//
// Value: array [kind, payload...]; none has no payload, list carries its
// items inline, ref carries a Location.
//
// Location: array of elements; a slot name is a plain string, an element-ref
// is a one-item array holding the wrapped Value.
//
// The encoding is deterministic: equal values produce identical bytes.

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
	_ msgpack.CustomEncoder = Location{}
	_ msgpack.CustomDecoder = (*Location)(nil)
)

func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	switch v.kind {
	case KindNone:
		if err := enc.EncodeArrayLen(1); err != nil {
			return err
		}
		return enc.EncodeInt(int64(v.kind))
	case KindBool:
		if err := encodeKindTag(enc, v.kind); err != nil {
			return err
		}
		return enc.EncodeBool(v.b)
	case KindInt:
		if err := encodeKindTag(enc, v.kind); err != nil {
			return err
		}
		return enc.EncodeInt(v.n)
	case KindFloat:
		if err := encodeKindTag(enc, v.kind); err != nil {
			return err
		}
		return enc.EncodeFloat64(v.f)
	case KindString:
		if err := encodeKindTag(enc, v.kind); err != nil {
			return err
		}
		return enc.EncodeString(v.s)
	case KindList:
		if err := encodeKindTag(enc, v.kind); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(v.list)); err != nil {
			return err
		}
		for _, item := range v.list {
			if err := item.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindRef:
		if err := encodeKindTag(enc, v.kind); err != nil {
			return err
		}
		return v.loc.EncodeMsgpack(enc)
	default:
		return fmt.Errorf("beliefdb: bad value kind %d", int(v.kind))
	}
}

func encodeKindTag(enc *msgpack.Encoder, k Kind) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	return enc.EncodeInt(int64(k))
}

func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	tag, err := dec.DecodeInt64()
	if err != nil {
		return err
	}
	kind := Kind(tag)
	wantLen := 2
	if kind == KindNone {
		wantLen = 1
	}
	if n != wantLen {
		return fmt.Errorf("beliefdb: value array len %d for kind %v", n, kind)
	}
	switch kind {
	case KindNone:
		*v = None()
		return nil
	case KindBool:
		b, err := dec.DecodeBool()
		if err != nil {
			return err
		}
		*v = Bool(b)
		return nil
	case KindInt:
		i, err := dec.DecodeInt64()
		if err != nil {
			return err
		}
		*v = Int(i)
		return nil
	case KindFloat:
		f, err := dec.DecodeFloat64()
		if err != nil {
			return err
		}
		*v = Float(f)
		return nil
	case KindString:
		s, err := dec.DecodeString()
		if err != nil {
			return err
		}
		*v = Str(s)
		return nil
	case KindList:
		cnt, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		items := make([]Value, cnt)
		for i := range items {
			if err := items[i].DecodeMsgpack(dec); err != nil {
				return err
			}
		}
		*v = Value{kind: KindList, list: items}
		return nil
	case KindRef:
		var loc Location
		if err := loc.DecodeMsgpack(dec); err != nil {
			return err
		}
		*v = Ref(loc)
		return nil
	default:
		return fmt.Errorf("beliefdb: unknown value kind tag %d", tag)
	}
}

func (l Location) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(len(l.elems)); err != nil {
		return err
	}
	for _, e := range l.elems {
		if e.ref == nil {
			if err := enc.EncodeString(e.name); err != nil {
				return err
			}
		} else {
			if err := enc.EncodeArrayLen(1); err != nil {
				return err
			}
			if err := e.ref.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *Location) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n == 0 {
		*l = Location{}
		return nil
	}
	first, err := dec.DecodeString()
	if err != nil {
		return err
	}
	loc := Entity(first)
	for i := 1; i < n; i++ {
		code, err := dec.PeekCode()
		if err != nil {
			return err
		}
		if msgpcode.IsString(code) {
			name, err := dec.DecodeString()
			if err != nil {
				return err
			}
			loc = loc.AppendSlot(name)
		} else {
			cnt, err := dec.DecodeArrayLen()
			if err != nil {
				return err
			}
			if cnt != 1 {
				return fmt.Errorf("beliefdb: element-ref array len %d", cnt)
			}
			var v Value
			if err := v.DecodeMsgpack(dec); err != nil {
				return err
			}
			loc = loc.AppendRef(v)
		}
	}
	*l = loc
	return nil
}

// storedRecord is the durable form of one backend record.
type storedRecord struct {
	Loc  Location `msgpack:"l"`
	Vals []Value  `msgpack:"v"`
}

func encodeRecord(loc Location, vals []Value) ([]byte, error) {
	return msgpack.Marshal(&storedRecord{Loc: loc, Vals: vals})
}

func decodeRecord(key string, data []byte) (Location, []Value, error) {
	var rec storedRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return Location{}, nil, dataErrf(key, err, "failed to decode record")
	}
	return rec.Loc, rec.Vals, nil
}
