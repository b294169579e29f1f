// Package visualiser streams per-cycle fusion results to debugging clients
// over gRPC. This file owns the wire encoding: the stream messages are
// encoded by hand with protowire, the same way the ingest codecs parse
// sensor datagrams, so no generated stubs are checked into the tree.
package visualiser

import (
	"fmt"
	"math"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
)

// Wire schema (proto3 equivalent) for service drivegate.v1.Visualiser:
//
//	message StreamRequest {
//	  string camera      = 1;
//	  bool   include_raw = 2;
//	}
//
//	message ResultFrame {
//	  string camera            = 1;
//	  uint64 cycle_index       = 2;
//	  int64  mask_timestamp_ns = 3;
//	  int64  drained           = 4;
//	  int64  classified        = 5;
//	  int64  passed            = 6;
//	  int64  evicted           = 7;
//	  int64  duration_us       = 8;
//	  repeated PoiResult results = 9;
//	}
//
//	message PoiResult {
//	  double x            = 1;
//	  double y            = 2;
//	  string category     = 3;
//	  int64  timestamp_ns = 4;
//	  bool   drivable     = 5;
//	  double confidence   = 6;
//	  bytes  raw          = 7;
//	}
//
// Zero-valued fields are omitted, unknown fields are skipped, per proto3.
const (
	reqFieldCamera     = 1
	reqFieldIncludeRaw = 2

	frameFieldCamera        = 1
	frameFieldCycleIndex    = 2
	frameFieldMaskTimestamp = 3
	frameFieldDrained       = 4
	frameFieldClassified    = 5
	frameFieldPassed        = 6
	frameFieldEvicted       = 7
	frameFieldDuration      = 8
	frameFieldResults       = 9

	poiFieldX          = 1
	poiFieldY          = 2
	poiFieldCategory   = 3
	poiFieldTimestamp  = 4
	poiFieldDrivable   = 5
	poiFieldConfidence = 6
	poiFieldRaw        = 7
)

// CodecName is the gRPC content-subtype for the hand-rolled frame codec.
// Clients select it with grpc.CallContentSubtype(CodecName); importing this
// package registers the codec on both ends.
const CodecName = "drivegate-frame"

func init() {
	encoding.RegisterCodec(frameCodec{})
}

// wireMessage is the marshalling contract shared by the stream messages.
type wireMessage interface {
	marshalWire() []byte
	unmarshalWire(data []byte) error
}

// frameCodec adapts the wire messages to the gRPC encoding.Codec interface.
type frameCodec struct{}

func (frameCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("visualiser codec: cannot marshal %T", v)
	}
	return m.marshalWire(), nil
}

func (frameCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("visualiser codec: cannot unmarshal into %T", v)
	}
	return m.unmarshalWire(data)
}

func (frameCodec) Name() string { return CodecName }

func (r *StreamRequest) marshalWire() []byte {
	var b []byte
	if r.Camera != "" {
		b = protowire.AppendTag(b, reqFieldCamera, protowire.BytesType)
		b = protowire.AppendString(b, r.Camera)
	}
	if r.IncludeRaw {
		b = protowire.AppendTag(b, reqFieldIncludeRaw, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	return b
}

func (r *StreamRequest) unmarshalWire(data []byte) error {
	*r = StreamRequest{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == reqFieldCamera && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			r.Camera = v
			data = data[m:]
		case num == reqFieldIncludeRaw && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			r.IncludeRaw = v != 0
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
		}
	}
	return nil
}

func (f *ResultFrame) marshalWire() []byte {
	var b []byte
	if f.Camera != "" {
		b = protowire.AppendTag(b, frameFieldCamera, protowire.BytesType)
		b = protowire.AppendString(b, f.Camera)
	}
	if f.CycleIndex != 0 {
		b = protowire.AppendTag(b, frameFieldCycleIndex, protowire.VarintType)
		b = protowire.AppendVarint(b, f.CycleIndex)
	}
	if f.MaskTimestampNanos != 0 {
		b = protowire.AppendTag(b, frameFieldMaskTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.MaskTimestampNanos))
	}
	b = appendCount(b, frameFieldDrained, f.Drained)
	b = appendCount(b, frameFieldClassified, f.Classified)
	b = appendCount(b, frameFieldPassed, f.Passed)
	b = appendCount(b, frameFieldEvicted, f.Evicted)
	if f.DurationMicros != 0 {
		b = protowire.AppendTag(b, frameFieldDuration, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.DurationMicros))
	}
	for i := range f.Results {
		b = protowire.AppendTag(b, frameFieldResults, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Results[i].marshalWire())
	}
	return b
}

func appendCount(b []byte, num protowire.Number, v int) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func (f *ResultFrame) unmarshalWire(data []byte) error {
	*f = ResultFrame{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if typ == protowire.VarintType {
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
			switch num {
			case frameFieldCycleIndex:
				f.CycleIndex = v
			case frameFieldMaskTimestamp:
				f.MaskTimestampNanos = int64(v)
			case frameFieldDrained:
				f.Drained = int(int64(v))
			case frameFieldClassified:
				f.Classified = int(int64(v))
			case frameFieldPassed:
				f.Passed = int(int64(v))
			case frameFieldEvicted:
				f.Evicted = int(int64(v))
			case frameFieldDuration:
				f.DurationMicros = int64(v)
			}
			continue
		}

		switch {
		case num == frameFieldCamera && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			f.Camera = v
			data = data[m:]
		case num == frameFieldResults && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			var r PoiResult
			if err := r.unmarshalWire(v); err != nil {
				return fmt.Errorf("results[%d]: %w", len(f.Results), err)
			}
			f.Results = append(f.Results, r)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
		}
	}
	return nil
}

func (p *PoiResult) marshalWire() []byte {
	var b []byte
	if p.X != 0 {
		b = protowire.AppendTag(b, poiFieldX, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(p.X))
	}
	if p.Y != 0 {
		b = protowire.AppendTag(b, poiFieldY, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(p.Y))
	}
	if p.Category != "" {
		b = protowire.AppendTag(b, poiFieldCategory, protowire.BytesType)
		b = protowire.AppendString(b, p.Category)
	}
	if p.TimestampNanos != 0 {
		b = protowire.AppendTag(b, poiFieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.TimestampNanos))
	}
	if p.Drivable {
		b = protowire.AppendTag(b, poiFieldDrivable, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if p.Confidence != 0 {
		b = protowire.AppendTag(b, poiFieldConfidence, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(p.Confidence))
	}
	if len(p.Raw) > 0 {
		b = protowire.AppendTag(b, poiFieldRaw, protowire.BytesType)
		b = protowire.AppendBytes(b, p.Raw)
	}
	return b
}

func (p *PoiResult) unmarshalWire(data []byte) error {
	*p = PoiResult{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		switch {
		case num == poiFieldX && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			p.X = math.Float64frombits(v)
			data = data[m:]
		case num == poiFieldY && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			p.Y = math.Float64frombits(v)
			data = data[m:]
		case num == poiFieldCategory && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			p.Category = v
			data = data[m:]
		case num == poiFieldTimestamp && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			p.TimestampNanos = int64(v)
			data = data[m:]
		case num == poiFieldDrivable && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			p.Drivable = v != 0
			data = data[m:]
		case num == poiFieldConfidence && typ == protowire.Fixed64Type:
			v, m := protowire.ConsumeFixed64(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			p.Confidence = math.Float64frombits(v)
			data = data[m:]
		case num == poiFieldRaw && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			// gRPC reuses receive buffers; the payload must be copied out.
			p.Raw = append([]byte(nil), v...)
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return protowire.ParseError(m)
			}
			data = data[m:]
		}
	}
	return nil
}
