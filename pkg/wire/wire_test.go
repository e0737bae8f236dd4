package wire

import (
	"errors"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motionsense/sense-go/pkg/attribute"
	"github.com/motionsense/sense-go/pkg/result"
	"github.com/motionsense/sense-go/pkg/typeinfo"
	"github.com/motionsense/sense-go/pkg/value"
)

type wireVec struct {
	X, Y float32
	Tag  string
}

var wireVecType = typeinfo.MustRegister[wireVec]("wire_test.vec")

func mustNewOf(t *testing.T, v any, ti typeinfo.TypeInfo) value.TypedValue {
	t.Helper()
	tv, err := value.NewOf(v, ti)
	require.NoError(t, err)
	return tv
}

func testStores(t *testing.T) map[string]*attribute.Store {
	t.Helper()
	mapper, err := attribute.NewEnumMapper(
		attribute.EnumEntry{ID: 0, Name: "off"},
		attribute.EnumEntry{ID: 1, Name: "on"},
	)
	require.NoError(t, err)

	fn, err := attribute.NewFunctionBuilder(attribute.NewRanged[int32](0, -5, 5)).
		AppendParameter("lhs", attribute.NewDefaulted[int32](1)).
		AppendParameter("rhs", nil).
		Build()
	require.NoError(t, err)

	readOnly := attribute.NewRanged[float64](0.5, 0, 1)
	require.NoError(t, readOnly.SetReadOnly(attribute.RangeMax))

	return map[string]*attribute.Store{
		"Plain":     attribute.NewPlain(wireVecType),
		"Defaulted": attribute.NewDefaulted("hello"),
		"Ranged":    attribute.NewRanged[int32](5, 0, 10),
		"ReadOnly":  readOnly,
		"Enum":      attribute.NewEnumMapped[int64](1, mapper),
		"Image": attribute.NewImage(typeinfo.Of[[]byte](),
			attribute.ImageSizer{Mode: attribute.SizerHalf}, "rgb",
			attribute.PixelScaled, attribute.NewRanged[uint16](0, 0, 4095)),
		"Function": fn,
	}
}

func TestValueRoundTrip(t *testing.T) {
	mapper, err := attribute.NewEnumMapper(attribute.EnumEntry{ID: 3, Name: "three"})
	require.NoError(t, err)

	tests := []struct {
		name string
		v    value.TypedValue
	}{
		{"Int32", value.New(int32(-4))},
		{"Uint64", value.New(uint64(1) << 60)},
		{"Float64", value.New(3.25)},
		{"Bool", value.New(true)},
		{"String", value.New("depth")},
		{"Bytes", value.New([]byte{0, 1, 2})},
		{"Struct", mustNewOf(t, wireVec{X: 1, Y: 2, Tag: "p"}, wireVecType)},
		{"Void", value.New(typeinfo.Void{})},
		{"Empty", value.Empty(typeinfo.Of[int32]())},
		{"EmptyStore", value.Empty(attribute.StoreType)},
		{"Sizer", value.New(attribute.ImageSizer{Mode: attribute.SizerCustom, Width: 320, Height: 240})},
		{"Relation", value.New(attribute.PixelAligned)},
		{"EnumMapper", value.New(mapper)},
		{"Store", value.New(attribute.NewRanged[int32](5, 0, 10))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := EncodeValue(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.v.IsValid(), ev.Data != nil)

			// Through bytes, the way a stream carries it.
			data, err := Marshal(ev)
			require.NoError(t, err)
			var back Value
			require.NoError(t, Unmarshal(data, &back))

			got, err := DecodeValue(back)
			require.NoError(t, err)
			assert.Equal(t, tt.v.Type(), got.Type())
			assert.True(t, value.Equal(tt.v, got), "got %s, want %s", got, tt.v)
			if got.IsValid() {
				assert.True(t, got.Owns())
			}
		})
	}
}

func TestEncodeValueUnknownType(t *testing.T) {
	_, err := EncodeValue(value.TypedValue{})
	assert.ErrorIs(t, err, ErrInvalidType)
}

func TestTypeRefResolve(t *testing.T) {
	int32Type := typeinfo.Of[int32]()

	got, err := RefOf(int32Type).Resolve()
	require.NoError(t, err)
	assert.Equal(t, int32Type, got)

	_, err = TypeRef{Name: "nope", ID: 42}.Resolve()
	assert.ErrorIs(t, err, ErrUnknownType)

	_, err = TypeRef{Name: "int64", ID: int32Type.WireID()}.Resolve()
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestStoreRoundTrip(t *testing.T) {
	for name, s := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			es, err := EncodeStore(s)
			require.NoError(t, err)
			assert.Len(t, es.Attrs, s.Count())

			data, err := Marshal(es)
			require.NoError(t, err)
			var back Store
			require.NoError(t, Unmarshal(data, &back))

			got, err := DecodeStore(&back)
			require.NoError(t, err)
			assert.True(t, s.Equal(got), "got %s, want %s", got, s)

			for i := 0; i < s.Count(); i++ {
				want, _ := s.Access(i)
				have, _ := got.Access(i)
				assert.Equal(t, want, have)
			}
			for i := 0; i < s.Params(); i++ {
				assert.Equal(t, s.ParamName(i), got.ParamName(i))
			}
		})
	}
}

func TestDecodeStoreRejectsLayoutMismatch(t *testing.T) {
	es, err := EncodeStore(attribute.NewRanged[int32](5, 0, 10))
	require.NoError(t, err)

	short := *es
	short.Attrs = es.Attrs[:2]
	_, err = DecodeStore(&short)
	assert.Error(t, err)

	renamed := *es
	renamed.Attrs = append([]Attr(nil), es.Attrs...)
	renamed.Attrs[2].Name = "RANGE_LOW"
	_, err = DecodeStore(&renamed)
	assert.Error(t, err)

	retyped := *es
	retyped.Attrs = append([]Attr(nil), es.Attrs...)
	ev, err := EncodeValue(value.New("five"))
	require.NoError(t, err)
	retyped.Attrs[0].Value = ev
	_, err = DecodeStore(&retyped)
	assert.ErrorIs(t, err, result.ErrWrongAttributeType)
}

func TestMessageRoundTrip(t *testing.T) {
	param, err := EncodeValue(value.New(int32(2)))
	require.NoError(t, err)
	ret, err := EncodeValue(value.New(int32(7)))
	require.NoError(t, err)
	store, err := EncodeStore(attribute.NewRanged[int32](5, 0, 10))
	require.NoError(t, err)

	sig := Signature{
		Name:   "add",
		Params: []TypeRef{RefOf(typeinfo.Of[int32]()), RefOf(typeinfo.Of[int32]())},
		Return: RefOf(typeinfo.Of[int32]()),
	}

	tests := []struct {
		name string
		msg  Message
	}{
		{"Hello", Message{Type: MsgHello, Hello: &Hello{Version: ProtocolVersion, ManagerID: "m-1", Commands: []Signature{sig}}}},
		{"Invoke", Message{Type: MsgInvoke, Invoke: &Invoke{CallID: 1, Name: "add", Params: []Value{param, param}}}},
		{"InvokeDrop", Message{Type: MsgInvoke, Invoke: &Invoke{CallID: 2, Name: "add", Params: []Value{param}, DropReturn: true}}},
		{"Return", Message{Type: MsgReturn, Return: &Return{CallID: 1, Status: StatusOK, Value: &ret}}},
		{"ReturnFailure", Message{Type: MsgReturn, Return: &Return{CallID: 1, Status: StatusRemote, Code: 3, Description: "boom"}}},
		{"MetaRequest", Message{Type: MsgMetaRequest, MetaRequest: &MetaRequest{RequestID: 9, Name: "add"}}},
		{"MetaResponse", Message{Type: MsgMetaResponse, MetaResponse: &MetaResponse{RequestID: 9, Store: store}}},
		{"Registry", Message{Type: MsgRegistry, Registry: &Registry{Added: []Signature{sig}, Removed: []string{"old"}}}},
		{"Close", Message{Type: MsgClose, Close: &Close{Reason: "bye"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeMessage(&tt.msg)
			require.NoError(t, err)
			got, err := DecodeMessage(data)
			require.NoError(t, err)
			assert.Equal(t, tt.msg, *got)
		})
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"NoBody", Message{Type: MsgClose}},
		{"WrongBody", Message{Type: MsgClose, Hello: &Hello{}}},
		{"TwoBodies", Message{Type: MsgClose, Close: &Close{}, Hello: &Hello{}}},
		{"UnknownType", Message{Type: 99, Close: &Close{}}},
		{"ZeroType", Message{Close: &Close{}}},
		{"ZeroCallID", Message{Type: MsgInvoke, Invoke: &Invoke{Name: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeMessage(&tt.msg)
			assert.Error(t, err)
		})
	}

	_, err := DecodeMessage([]byte{0xa1, 0x01, 0x07})
	assert.ErrorIs(t, err, ErrBodyMismatch)
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusTimeout, StatusOf(result.New(result.KindTimeout, "late")))
	assert.Equal(t, StatusRemote, StatusOf(errors.New("plain")))
	assert.Equal(t, "OK", StatusOK.String())
	assert.Equal(t, "NAME_NOT_FOUND", StatusNameNotFound.String())

	assert.NoError(t, StatusOK.Err(0, ""))

	err := StatusSignatureMismatch.Err(4, "arity")
	assert.ErrorIs(t, err, result.ErrSignatureMismatch)
	var re *result.Error
	require.ErrorAs(t, err, &re)
	assert.Equal(t, 4, re.Code)
	assert.Equal(t, "arity", re.Description)

	assert.ErrorIs(t, Status(200).Err(0, "future"), result.ErrRemote)
}

func TestCodecTimeModes(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)

	t.Run("Unix", func(t *testing.T) {
		c, err := NewCodec(cbor.TimeUnix)
		require.NoError(t, err)
		data, err := c.Marshal(ts)
		require.NoError(t, err)
		var back time.Time
		require.NoError(t, c.Unmarshal(data, &back))
		assert.Equal(t, ts.Unix(), back.Unix())
	})

	t.Run("RFC3339Nano", func(t *testing.T) {
		c := MustCodec(cbor.TimeRFC3339Nano)
		data, err := c.Marshal(ts)
		require.NoError(t, err)
		var back time.Time
		require.NoError(t, c.Unmarshal(data, &back))
		assert.True(t, ts.Equal(back))
	})
}
