package zarr

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleColor string

const (
	colorRed  sampleColor = "red"
	colorBlue sampleColor = "blue"
)

func (c sampleColor) EnumValue() any { return string(c) }

type sampleInner struct {
	Label  string
	Weight float64
}

func (s sampleInner) RecordFields() []NamedValue {
	return []NamedValue{{"label", s.Label}, {"weight", s.Weight}}
}

var sampleInnerDecoder = RecordOf("sampleInner", func(r *FieldReader) sampleInner {
	return sampleInner{
		Label:  Read(r, "label", String()),
		Weight: Read(r, "weight", Float()),
	}
})

type sampleRecord struct {
	Name     string
	Count    int
	Tags     Set[string]
	Span     Pair[int, string]
	Origin   Triple[float64, float64, float64]
	Color    sampleColor
	Z        complex128
	When     time.Time
	Stamp    Datetime64
	Inner    sampleInner
	Children []sampleInner
	Note     *string
	Extra    any
}

func (s sampleRecord) RecordFields() []NamedValue {
	return []NamedValue{
		{"name", s.Name},
		{"count", s.Count},
		{"tags", s.Tags},
		{"span", s.Span},
		{"origin", s.Origin},
		{"color", s.Color},
		{"z", s.Z},
		{"when", s.When},
		{"stamp", s.Stamp},
		{"inner", s.Inner},
		{"children", s.Children},
		{"note", s.Note},
		{"extra", s.Extra},
	}
}

var sampleRecordDecoder = RecordOf("sampleRecord", func(r *FieldReader) sampleRecord {
	return sampleRecord{
		Name:     Read(r, "name", String()),
		Count:    Read(r, "count", Int()),
		Tags:     Read(r, "tags", SetOf(String())),
		Span:     Read(r, "span", PairOf(Int(), String())),
		Origin:   Read(r, "origin", TripleOf(Float(), Float(), Float())),
		Color:    Read(r, "color", EnumOf("sampleColor", colorRed, colorBlue)),
		Z:        Read(r, "z", Complex()),
		When:     Read(r, "when", Time()),
		Stamp:    Read(r, "stamp", DatetimeOf(UnitSecond)),
		Inner:    Read(r, "inner", sampleInnerDecoder),
		Children: Read(r, "children", SliceOf(sampleInnerDecoder)),
		Note:     Read(r, "note", Optional(String())),
		Extra:    Read(r, "extra", Any()),
	}
})

func newSampleRecord() sampleRecord {
	note := "hello"
	return sampleRecord{
		Name:     "sample",
		Count:    3,
		Tags:     NewSet("a", "b", "c"),
		Span:     Pair[int, string]{First: 7, Second: "seven"},
		Origin:   Triple[float64, float64, float64]{First: 1.5, Second: -2, Third: 3.25},
		Color:    colorBlue,
		Z:        complex(1, -2.5),
		When:     time.Date(2024, 5, 1, 12, 30, 0, 500, time.UTC),
		Stamp:    Datetime64{Count: 1714566600, Unit: UnitSecond},
		Inner:    sampleInner{Label: "in", Weight: 0.5},
		Children: []sampleInner{{Label: "x", Weight: 1}, {Label: "y", Weight: 2}},
		Note:     &note,
		Extra:    map[string]any{"k": []any{json.Number("1"), "two", nil, true}},
	}
}

func TestRecordRoundTrip(t *testing.T) {
	want := newSampleRecord()

	data, err := Encode(want)
	require.NoError(t, err)

	got, err := Decode(data, sampleRecordDecoder)
	require.NoError(t, err)
	assert.True(t, want.When.Equal(got.When), "times differ: %s != %s", want.When, got.When)
	got.When = want.When
	assert.Equal(t, want, got)

	want.Note = nil
	data, err = Encode(want)
	require.NoError(t, err)
	got, err = Decode(data, sampleRecordDecoder)
	require.NoError(t, err)
	assert.Nil(t, got.Note)
}

func TestEncodeValueLeaves(t *testing.T) {
	cases := []struct {
		name   string
		in     any
		expect any
	}{
		{"nil", nil, nil},
		{"nil pointer", (*NumcodecsConfig)(nil), nil},
		{"int", 42, json.Number("42")},
		{"uint64", uint64(math.MaxUint64), json.Number("18446744073709551615")},
		{"int8", int8(-3), json.Number("-3")},
		{"float", 0.25, json.Number("0.25")},
		{"float32", float32(1.5), json.Number("1.5")},
		{"nan", math.NaN(), FillValueNaN},
		{"inf", math.Inf(1), FillValueInfinity},
		{"-inf", math.Inf(-1), FillValueNegativeInfinity},
		{"complex", complex(3, 4), []any{json.Number("3"), json.Number("4")}},
		{"datetime", Datetime64{Count: -5, Unit: UnitDay}, json.Number("-5")},
		{"timedelta", Timedelta64{Count: 90, Unit: UnitMinute}, json.Number("90")},
		{"time", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), "2020-01-02T03:04:05Z"},
		{"enum", OrderF, "F"},
		{"dtype", Dtype{ByteOrder: BOLittleEndian, BasicType: BTFloatingPoint, ByteSize: 8}, "<f8"},
		{"data type", DTInt16, "int16"},
		{"pair", Pair[string, bool]{"a", true}, []any{"a", true}},
		{"typed slice", []int{1, 2}, []any{json.Number("1"), json.Number("2")}},
		{"array", [2]string{"x", "y"}, []any{"x", "y"}},
		{"separator", SeparatorSlash, "/"},
		{"codec", NumcodecsConfig{ID: "gzip", Config: map[string]any{"level": 5}}, map[string]any{"id": "gzip", "level": json.Number("5")}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := EncodeValue(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.expect, got)
		})
	}
}

func TestEncodeSet(t *testing.T) {
	got, err := EncodeValue(NewSet(1, 2, 3))
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{json.Number("1"), json.Number("2"), json.Number("3")}, got)
}

func TestEncodePassthrough(t *testing.T) {
	ch := make(chan int)
	got, err := EncodeValue(ch)
	require.NoError(t, err)
	assert.Equal(t, ch, got)
}

func TestParseValue(t *testing.T) {
	v, err := ParseValue([]byte(`{"a": [1, 2.5, "x", null, true], "b": {"c": 9007199254740993}}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": []any{json.Number("1"), json.Number("2.5"), "x", nil, true},
		"b": map[string]any{"c": json.Number("9007199254740993")},
	}, v)

	for _, bad := range []string{``, `{`, `{"a": 1} {}`, `{"a": 1} x`, `nope`} {
		_, err := ParseValue([]byte(bad))
		assert.ErrorIs(t, err, ErrParse, "input %q", bad)
	}
}

func TestMarshalValueNoHTMLEscape(t *testing.T) {
	data, err := MarshalValue(map[string]any{"dtype": "<f8"})
	require.NoError(t, err)
	assert.Equal(t, `{"dtype":"<f8"}`, string(data))
}

func TestDecodeFailuresReturnNothing(t *testing.T) {
	rec := newSampleRecord()
	v, err := EncodeValue(rec)
	require.NoError(t, err)
	doc := v.(map[string]any)
	doc["children"].([]any)[1].(map[string]any)["label"] = json.Number("5")
	data, err := MarshalValue(doc)
	require.NoError(t, err)

	got, err := Decode(data, sampleRecordDecoder)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	assert.Equal(t, sampleRecord{}, got)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "children.1.label", de.Field)
	assert.Equal(t, json.Number("5"), de.Value)
}

func TestDecodeMissingFieldIsNull(t *testing.T) {
	d := RecordOf("opt", func(r *FieldReader) *string {
		return Read(r, "maybe", Optional(String()))
	})
	got, err := Decode([]byte(`{}`), d)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Decode([]byte(`{}`), sampleInnerDecoder)
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestTupleArity(t *testing.T) {
	v, err := ParseValue([]byte(`[1, 2, 3]`))
	require.NoError(t, err)

	_, err = PairOf(Int(), Int())(v)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = FixedSliceOf(2, Int())(v)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = FixedSliceOf(4, Int())(v)
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	got, err := FixedSliceOf(3, Int())(v)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)

	tr, err := TripleOf(Int(), Int(), Int())(v)
	require.NoError(t, err)
	assert.Equal(t, Triple[int, int, int]{1, 2, 3}, tr)

	_, err = TripleOf(Int(), Int(), Int())([]any{json.Number("1"), json.Number("2")})
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestLiteral(t *testing.T) {
	format := Literal(2, 3)
	got, err := format(json.Number("3"))
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	_, err = format(json.Number("4"))
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	_, err = format("3")
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = Literal("C", "F")("D")
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestScalarDecoders(t *testing.T) {
	f, err := Float()("NaN")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f))

	f, err = Float()("-Infinity")
	require.NoError(t, err)
	assert.True(t, math.IsInf(f, -1))

	_, err = Float()("nan")
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = Int()(json.Number("1.5"))
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = Uint64()(json.Number("-1"))
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	u, err := Uint64()(json.Number("18446744073709551615"))
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), u)

	_, err = Bool()("true")
	assert.ErrorIs(t, err, ErrSchemaMismatch)

	day, err := Time()("2021-03-04")
	require.NoError(t, err)
	assert.Equal(t, time.March, day.Month())

	_, err = EnumOf("Order", OrderC, OrderF)("A")
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestTimeCountRoundTrip(t *testing.T) {
	stamp := Datetime64{Count: -5, Unit: UnitDay}
	v, err := EncodeValue(stamp)
	require.NoError(t, err)
	gotStamp, err := DatetimeOf(UnitDay)(v)
	require.NoError(t, err)
	assert.Equal(t, stamp, gotStamp)

	span := Timedelta64{Count: 90, Unit: UnitMinute}
	v, err = EncodeValue(span)
	require.NoError(t, err)
	gotSpan, err := TimedeltaOf(UnitMinute)(v)
	require.NoError(t, err)
	assert.Equal(t, span, gotSpan)

	_, err = DatetimeOf(UnitSecond)("2021-03-04")
	assert.ErrorIs(t, err, ErrSchemaMismatch)
	_, err = TimedeltaOf(UnitSecond)(json.Number("1.5"))
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestSetOfDeduplicates(t *testing.T) {
	s, err := SetOf(String())([]any{"a", "b", "a"})
	require.NoError(t, err)
	assert.Len(t, s, 2)
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("z"))
}

func TestValueTreeRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("typed leaves survive encode and decode", prop.ForAll(
		func(ints []int64, label string, f float64, flag bool) bool {
			type leafRecord struct {
				Ints  []int64
				Label string
				F     float64
				Flag  bool
			}
			d := RecordOf("leafRecord", func(r *FieldReader) leafRecord {
				return leafRecord{
					Ints:  Read(r, "ints", SliceOf(Int64())),
					Label: Read(r, "label", String()),
					F:     Read(r, "f", Float()),
					Flag:  Read(r, "flag", Bool()),
				}
			})
			want := leafRecord{Ints: ints, Label: label, F: f, Flag: flag}
			if want.Ints == nil {
				want.Ints = []int64{}
			}
			data, err := MarshalValue(map[string]any{
				"ints":  mustEncode(want.Ints),
				"label": label,
				"f":     mustEncode(f),
				"flag":  flag,
			})
			if err != nil {
				return false
			}
			got, err := Decode(data, d)
			if err != nil {
				return false
			}
			if len(got.Ints) != len(want.Ints) {
				return false
			}
			for i := range want.Ints {
				if got.Ints[i] != want.Ints[i] {
					return false
				}
			}
			return got.Label == want.Label && got.F == want.F && got.Flag == want.Flag
		},
		gen.SliceOf(gen.Int64()),
		gen.AlphaString(),
		gen.Float64Range(-1e300, 1e300),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func mustEncode(v any) any {
	ev, err := EncodeValue(v)
	if err != nil {
		panic(err)
	}
	return ev
}
