package bincodec

import (
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/xid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- Polymorphic fixtures ---

type Shape interface{ Area() float64 }

type Square struct{ Side float64 }

func (s Square) Area() float64 { return s.Side * s.Side }

type Circle struct {
	Name string
	R    float64
}

func (c *Circle) Area() float64 { return 3 * c.R * c.R }

type Triangle struct{ Base, Height float64 }

func (t Triangle) Area() float64 { return t.Base * t.Height / 2 }

type Label struct{ Text string }

// Group holds a single map, so an interface holding it stores the map
// pointer directly in its data word.
type Group struct{ Members map[string]float64 }

func (g Group) Area() float64 { return float64(len(g.Members)) }

func encodeCircle(w *Writer, c *Circle) {
	w.WriteString(c.Name)
	w.WriteFloat64(c.R)
}

func decodeCircle(r *Reader) *Circle {
	return &Circle{Name: r.ReadString(), R: r.ReadFloat64()}
}

func decodeCircleInto(r *Reader, dst **Circle) {
	if *dst == nil {
		*dst = new(Circle)
	}
	(*dst).Name = r.ReadString()
	(*dst).R = r.ReadFloat64()
}

func newShapeRegistry(t *testing.T) *Registry {
	r := NewRegistry(nil)
	require.NoError(t, RegisterSubtype[Shape, Square](r, nil, nil, WithWireID(1)))
	require.NoError(t, RegisterSubtype[Shape, *Circle](r, encodeCircle, decodeCircle,
		WithWireID(2), WithDecodeInto[*Circle](decodeCircleInto)))
	return r
}

// --- Self-describing fixtures ---

type account struct {
	Owner   string
	Balance int64
}

func (a *account) EncodeWire(w *Writer) {
	w.WriteString(a.Owner)
	w.WriteInt64(a.Balance)
}

func (a *account) DecodeWire(r *Reader) {
	a.Owner = r.ReadString()
	a.Balance = r.ReadInt64()
}

// --- Registry Test Suite ---

type RegistryTestSuite struct {
	suite.Suite
	reg *Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.reg = newShapeRegistry(s.T())
}

func (s *RegistryTestSuite) TestBuiltins() {
	s.Assert().True(IsSimple[int32](s.reg))
	s.Assert().True(IsSimple[mockPayload](s.reg))
	s.Assert().True(IsSimple[[3]uint16](s.reg))
	s.Assert().False(IsSimple[bool](s.reg), "bool must go through its routine")
	s.Assert().False(IsSimple[struct{ OK bool }](s.reg))
	s.Assert().False(IsSimple[string](s.reg))
	s.Assert().False(IsSimple[*int](s.reg))

	types := s.reg.Types()
	s.Assert().Contains(types, reflect.TypeFor[string]())
	s.Assert().Contains(types, reflect.TypeFor[[]byte]())
	s.Assert().Equal(len(types), s.reg.Len())
}

func (s *RegistryTestSuite) TestUnregisteredType() {
	_, err := MarshalWith(s.reg, Label{Text: "x"})
	s.Assert().ErrorIs(err, ErrUnregisteredType)

	_, err = UnmarshalWith[Label](s.reg, header(EmptyCollectionHeader))
	s.Assert().ErrorIs(err, ErrUnregisteredType)
}

func (s *RegistryTestSuite) TestRegisterRoutineIsIdempotent() {
	calls := 0
	enc := func(w *Writer, l Label) { calls++; w.WriteString(l.Text) }
	s.Require().NoError(RegisterRoutine[Label](s.reg, enc, func(r *Reader) Label { return Label{r.ReadString()} }))
	s.Require().NoError(RegisterRoutine[Label](s.reg,
		func(w *Writer, l Label) { w.WriteString("other") },
		func(r *Reader) Label { return Label{} }))

	out, err := MarshalWith(s.reg, Label{Text: "kept"})
	s.Require().NoError(err)
	s.Assert().Equal(1, calls, "the first routine stays in place")

	got, err := UnmarshalWith[Label](s.reg, out)
	s.Require().NoError(err)
	s.Assert().Equal("kept", got.Text)
}

func (s *RegistryTestSuite) TestRoutineOverridesSimple() {
	s.Require().True(IsSimple[mockPayload](s.reg))
	s.Require().NoError(RegisterRoutine[mockPayload](s.reg,
		func(w *Writer, p mockPayload) { w.WriteUint8(uint8(p.ID)) },
		func(r *Reader) mockPayload { return mockPayload{ID: uint32(r.ReadUint8())} }))
	s.Assert().False(IsSimple[mockPayload](s.reg))

	out, err := MarshalWith(s.reg, mockPayload{ID: 7})
	s.Require().NoError(err)
	s.Assert().Equal([]byte{7}, out)
}

func (s *RegistryTestSuite) TestRegisterRoutineRequiresBothDirections() {
	err := RegisterRoutine[Label](s.reg, nil, func(r *Reader) Label { return Label{} })
	s.Assert().ErrorIs(err, ErrUnregisteredType)

	err = RegisterRoutine[Label](s.reg, nil, nil, WithDecodeInto[*Circle](decodeCircleInto))
	s.Assert().ErrorIs(err, ErrTypeMismatch)
}

func (s *RegistryTestSuite) TestWireIDs() {
	s.Require().NoError(RegisterWireID[Label](s.reg, 10))
	s.Assert().NoError(RegisterWireID[Label](s.reg, 10), "rebinding the same id is a no-op")

	err := RegisterWireID[Triangle](s.reg, 10)
	s.Assert().ErrorIs(err, ErrDuplicateWireID)
	err = RegisterWireID[Label](s.reg, 11)
	s.Assert().ErrorIs(err, ErrDuplicateWireID)

	s.Assert().ErrorIs(RegisterWireID[Triangle](s.reg, NullTypeID), ErrMalformedWireData)
	s.Assert().ErrorIs(RegisterWireID[Triangle](s.reg, ReferenceTypeID), ErrMalformedWireData)

	id, ok := WireIDOf[Label](s.reg)
	s.Assert().True(ok)
	s.Assert().Equal(uint32(10), id)
	_, ok = WireIDOf[Triangle](s.reg)
	s.Assert().False(ok)
}

func (s *RegistryTestSuite) TestPolymorphicRoundTrip() {
	shapes := []Shape{Square{Side: 2}, &Circle{Name: "c", R: 1.5}, nil, Square{Side: 3}}

	w := s.reg.NewWriter(NewBuffer(0))
	EncodeSlice(w, shapes)
	out, err := w.Result()
	s.Require().NoError(err)

	got, err := UnmarshalWith[[]Shape](s.reg, out)
	s.Require().ErrorIs(err, ErrUnregisteredType, "[]Shape has no routine until registered")
	s.Require().NoError(RegisterSlice[Shape](s.reg))

	got, err = UnmarshalWith[[]Shape](s.reg, out)
	s.Require().NoError(err)
	s.Assert().Equal(shapes, got)
}

func (s *RegistryTestSuite) TestSubtypeIsNeverSimple() {
	s.Assert().True(IsFixed[Square]())
	s.Assert().False(IsSimple[Square](s.reg))

	direct, err := MarshalWith(s.reg, Square{Side: 2})
	s.Require().NoError(err)
	viaSlot, err := MarshalWith[Shape](s.reg, Square{Side: 2})
	s.Require().NoError(err)

	s.Assert().Equal(concat(header(1), nativeU64(0x4000000000000000)), direct)
	s.Assert().Equal(direct, viaSlot, "a subtype carries its id wherever it is encoded")

	sq, err := UnmarshalWith[Square](s.reg, viaSlot)
	s.Require().NoError(err)
	s.Assert().Equal(Square{Side: 2}, sq)
}

func (s *RegistryTestSuite) TestPolymorphicNull() {
	out, err := MarshalWith[Shape](s.reg, nil)
	s.Require().NoError(err)
	s.Assert().Equal(header(NullTypeID), out)

	got, err := UnmarshalWith[Shape](s.reg, out)
	s.Require().NoError(err)
	s.Assert().Nil(got)

	out, err = MarshalWith[*Circle](s.reg, nil)
	s.Require().NoError(err)
	s.Assert().Equal(header(NullTypeID), out)
}

func (s *RegistryTestSuite) TestPointerShapedSubtypeIsNotNull() {
	s.Require().NoError(RegisterSubtype[Shape, Group](s.reg,
		func(w *Writer, g Group) { EncodeMap(w, g.Members) },
		func(r *Reader) Group { return Group{Members: DecodeMap[string, float64](r)} },
		WithWireID(5)))

	for _, g := range []Group{{}, {Members: map[string]float64{"a": 1}}} {
		out, err := MarshalWith[Shape](s.reg, g)
		s.Require().NoError(err)
		s.Assert().Equal(header(5), out[:HeaderSize])

		got, err := UnmarshalWith[Shape](s.reg, out)
		s.Require().NoError(err)
		s.Assert().Equal(g, got)

		boxed, err := MarshalAnyWith(s.reg, g)
		s.Require().NoError(err)
		s.Assert().Equal(out, boxed)
	}

	out, err := MarshalWith[Shape](s.reg, Group{})
	s.Require().NoError(err)
	s.Assert().Equal(concat(header(5), header(NullCollection)), out)
}

func (s *RegistryTestSuite) TestPolymorphicErrors() {
	s.T().Run("UnregisteredSubtype", func(t *testing.T) {
		_, err := MarshalWith[Shape](s.reg, Triangle{Base: 1, Height: 2})
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	s.T().Run("UnknownWireID", func(t *testing.T) {
		_, err := UnmarshalWith[Shape](s.reg, concat(header(99), nativeU64(0)))
		assert.ErrorIs(t, err, ErrMalformedWireData)
	})

	s.T().Run("KnownIDOutsideHierarchy", func(t *testing.T) {
		require.NoError(t, RegisterRoutine[Label](s.reg,
			func(w *Writer, l Label) { w.WriteString(l.Text) },
			func(r *Reader) Label { return Label{r.ReadString()} },
			WithWireID(7)))
		_, err := UnmarshalWith[Shape](s.reg, concat(header(7), header(EmptyCollectionHeader)))
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	s.T().Run("SubtypeOfWrongSlot", func(t *testing.T) {
		_, err := UnmarshalWith[Square](s.reg, concat(header(2), header(EmptyCollectionHeader), nativeU64(0)))
		assert.ErrorIs(t, err, ErrTypeMismatch)
	})

	s.T().Run("SubtypeWithoutWireID", func(t *testing.T) {
		require.NoError(t, RegisterSubtype[Shape, Triangle](s.reg, nil, nil))
		_, err := MarshalWith[Shape](s.reg, Triangle{Base: 1, Height: 2})
		assert.ErrorIs(t, err, ErrUnregisteredType)
	})

	s.T().Run("InvalidRelations", func(t *testing.T) {
		assert.ErrorIs(t, RegisterSubtype[Shape, Label](s.reg, nil, nil), ErrTypeMismatch)
		assert.ErrorIs(t, RegisterSubtype[Shape, Shape](s.reg, nil, nil), ErrTypeMismatch)
		assert.ErrorIs(t, RegisterSubtype[any, fmt.Stringer](s.reg, nil, nil), ErrTypeMismatch)
	})

	s.T().Run("TruncatedBody", func(t *testing.T) {
		out, err := MarshalWith[Shape](s.reg, &Circle{Name: "c", R: 1})
		require.NoError(t, err)
		_, err = UnmarshalWith[Shape](s.reg, out[:len(out)-1])
		assert.ErrorIs(t, err, ErrOutOfBounds)
	})
}

func (s *RegistryTestSuite) TestPolymorphicDecodeIntoReusesSameType() {
	c := &Circle{Name: "old", R: 1}
	var slot Shape = c

	out, err := MarshalWith[Shape](s.reg, &Circle{Name: "new", R: 2})
	s.Require().NoError(err)
	s.Require().NoError(UnmarshalIntoWith(s.reg, out, &slot))
	s.Assert().Same(c, slot, "the existing circle is decoded in place")
	s.Assert().Equal("new", c.Name)

	out, err = MarshalWith[Shape](s.reg, Square{Side: 4})
	s.Require().NoError(err)
	s.Require().NoError(UnmarshalIntoWith(s.reg, out, &slot))
	s.Assert().Equal(Square{Side: 4}, slot, "a different concrete type replaces the slot")
}

func (s *RegistryTestSuite) TestSelfDescribingTypes() {
	a := account{Owner: "ann", Balance: -5}
	out, err := MarshalWith(s.reg, a)
	s.Require().NoError(err)
	s.Assert().Equal(concat(header(CollectionHeader(3)), []byte("ann"), nativeU64(uint64(0xFFFFFFFFFFFFFFFB))), out)

	got, err := UnmarshalWith[account](s.reg, out)
	s.Require().NoError(err)
	s.Assert().Equal(a, got)

	p, err := MarshalWith(s.reg, &a)
	s.Require().NoError(err)
	s.Assert().Equal(append([]byte{presentByte}, out...), p)
	gotPtr, err := UnmarshalWith[*account](s.reg, p)
	s.Require().NoError(err)
	s.Assert().Equal(&a, gotPtr)

	nilOut, err := MarshalWith[*account](s.reg, nil)
	s.Require().NoError(err)
	s.Assert().Equal([]byte{absentByte}, nilOut)
	gotPtr, err = UnmarshalWith[*account](s.reg, nilOut)
	s.Require().NoError(err)
	s.Assert().Nil(gotPtr)
}

func (s *RegistryTestSuite) TestRegisterCodec() {
	r := NewRegistry(nil)
	s.Require().NoError(RegisterCodec[account](r, WithWireID(40)))
	id, ok := WireIDOf[account](r)
	s.Assert().True(ok)
	s.Assert().Equal(uint32(40), id)

	dst := account{Owner: "stale"}
	out, err := MarshalWith(r, account{Owner: "bob", Balance: 3})
	s.Require().NoError(err)
	s.Require().NoError(UnmarshalIntoWith(r, out, &dst))
	s.Assert().Equal(account{Owner: "bob", Balance: 3}, dst)
}

func (s *RegistryTestSuite) TestCorpusTypes() {
	s.T().Run("ObjectIDIsSimple", func(t *testing.T) {
		id := xid.New()
		assert.True(t, IsSimple[xid.ID](s.reg))
		out, err := MarshalWith(s.reg, id)
		require.NoError(t, err)
		assert.Equal(t, id.Bytes(), out)

		got, err := UnmarshalWith[xid.ID](s.reg, out)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	s.T().Run("DecimalRoutine", func(t *testing.T) {
		require.NoError(t, RegisterRoutine[decimal.Decimal](s.reg,
			func(w *Writer, d decimal.Decimal) { w.WriteString(d.String()) },
			func(r *Reader) decimal.Decimal {
				d, err := decimal.NewFromString(r.ReadString())
				if err != nil {
					r.SetError(err)
				}
				return d
			}))
		price := decimal.RequireFromString("1234.5678")
		out, err := MarshalWith(s.reg, []decimal.Decimal{price})
		assert.ErrorIs(t, err, ErrUnregisteredType)

		w := s.reg.NewWriter(NewBuffer(0))
		EncodeSlice(w, []decimal.Decimal{price, decimal.Zero})
		out, err = w.Result()
		require.NoError(t, err)

		got := DecodeSlice[decimal.Decimal](s.reg.NewReader(out))
		require.Len(t, got, 2)
		assert.True(t, price.Equal(got[0]))
		assert.True(t, decimal.Zero.Equal(got[1]))

		_, err = UnmarshalWith[decimal.Decimal](s.reg, concat(header(CollectionHeader(3)), []byte("abc")))
		assert.Error(t, err)
	})
}

func (s *RegistryTestSuite) TestDuplicateRegistrationIsLogged() {
	core, logs := observer.New(zapcore.DebugLevel)
	r := NewRegistry(DefaultConfig().WithLogger(zap.New(core)))

	s.Require().NoError(RegisterRoutine[Label](r,
		func(w *Writer, l Label) { w.WriteString(l.Text) },
		func(r *Reader) Label { return Label{r.ReadString()} }))
	s.Require().NoError(RegisterRoutine[Label](r,
		func(w *Writer, l Label) {},
		func(r *Reader) Label { return Label{} }))

	s.Assert().Equal(1, logs.FilterMessage("routine already registered").Len())
	s.Assert().NotZero(logs.FilterMessage("registered routine").Len())
}

func (s *RegistryTestSuite) TestConcurrentRegistrationAndUse() {
	r := newShapeRegistry(s.T())
	s.Require().NoError(RegisterSlice[Shape](r))
	shapes := []Shape{Square{Side: 1}, &Circle{Name: "x", R: 2}}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 32 {
		wg.Go(func() {
			if i%2 == 0 {
				errs <- RegisterRoutine[Label](r,
					func(w *Writer, l Label) { w.WriteString(l.Text) },
					func(r *Reader) Label { return Label{r.ReadString()} })
				errs <- RegisterSlice[Label](r)
				return
			}
			out, err := MarshalWith(r, shapes)
			if err == nil {
				var got []Shape
				got, err = UnmarshalWith[[]Shape](r, out)
				if err == nil && !reflect.DeepEqual(shapes, got) {
					err = fmt.Errorf("round trip mismatch: %v", got)
				}
			}
			errs <- err
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Assert().NoError(err)
	}
	s.Assert().True(lo.Contains(r.Types(), reflect.TypeFor[[]Label]()))
}

// TestRegistry runs the RegistryTestSuite.
func TestRegistry(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	require.NoError(t, RegisterMetrics(reg), "registering twice is not an error")

	r := NewRegistry(nil)
	_, err := MarshalWith(r, uint64(1))
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "bincodec_buffer_pool_operations_total")
	assert.Contains(t, names, "bincodec_registry_registrations_total")
}

func TestDefaultRegistryIsUsable(t *testing.T) {
	require.NotNil(t, Logger())
	assert.Contains(t, Default.Types(), reflect.TypeFor[string]())

	SetLogger(nil)
	require.NotNil(t, Logger())
	out, err := Marshal("ready")
	require.NoError(t, err)
	got, err := Unmarshal[string](out)
	require.NoError(t, err)
	assert.Equal(t, "ready", got)
}
