package bincodec

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// EncodeFunc writes v to w.
type EncodeFunc[T any] func(w *Writer, v T)

// DecodeFunc reads a new value from r.
type DecodeFunc[T any] func(r *Reader) T

// DecodeIntoFunc reads a value from r into an existing one, reusing whatever
// it already owns (slices, maps, pointees).
type DecodeIntoFunc[T any] func(r *Reader, dst *T)

// boxedRoutines are the routines of one type behind an any, used for
// polymorphic slots and for MarshalAny/UnmarshalAny.
type boxedRoutines struct {
	encode     func(w *Writer, v any)
	decode     func(r *Reader) any
	decodeInto func(r *Reader, cur any) any
}

// cachedSubtype is the last concrete type seen in a polymorphic slot.
type cachedSubtype struct {
	handle TypeHandle
	target *entry
	gen    uint64
}

type polyCache struct {
	last atomic.Pointer[cachedSubtype]
}

// entry is the dispatch record of one type. Published entries are never
// mutated; registration replaces them with modified clones.
type entry struct {
	handle TypeHandle
	typ    reflect.Type
	size   int
	fixed  bool

	// simple selects the raw copy path: fixed layout, no routine, no subtype relation.
	simple     bool
	registered bool
	boxedOnly  bool // resolved through an any; typed routines come on first typed use
	hasBase    bool
	tolerant   bool
	wireID     uint32

	encode     any // EncodeFunc[T]
	decode     any // DecodeFunc[T]
	decodeInto any // DecodeIntoFunc[T]
	boxed      boxedRoutines

	subtypes *FastMap[TypeHandle, struct{}]
	cache    *polyCache
}

func (e *entry) polymorphic() bool { return e.hasBase || e.subtypes.Len() > 0 }

func (e *entry) clone() *entry {
	c := *e
	c.cache = new(polyCache)
	return &c
}

// newEntry builds the entry of a type nobody registered yet. Fixed-layout
// types start out simple, with raw copy routines.
func newEntry[T any]() *entry {
	t := reflect.TypeFor[T]()
	l := layoutOf(t)
	e := &entry{
		handle: handleOfType(t),
		typ:    t,
		size:   l.size,
		fixed:  l.fixed,
		simple: l.fixed,
		cache:  new(polyCache),
	}
	if l.fixed {
		e.encode = EncodeFunc[T](writeRaw[T])
		e.decode = DecodeFunc[T](readRaw[T])
		e.boxed = boxedFor[T](writeRaw[T], readRaw[T], nil)
	}
	return e
}

func boxedFor[T any](enc EncodeFunc[T], dec DecodeFunc[T], into DecodeIntoFunc[T]) boxedRoutines {
	var b boxedRoutines
	if enc != nil {
		b.encode = func(w *Writer, v any) { enc(w, v.(T)) }
	}
	if dec != nil {
		b.decode = func(r *Reader) any { return dec(r) }
	}
	if into != nil {
		b.decodeInto = func(r *Reader, cur any) any {
			v, _ := cur.(T)
			into(r, &v)
			return v
		}
	}
	return b
}

// Registry maps types to their routines. Reads are lock-free against
// immutable snapshots; registration clones, modifies and republishes them
// under a single mutex.
type Registry struct {
	cfg *Config

	mu      sync.Mutex
	entries atomic.Pointer[FastMap[TypeHandle, *entry]]
	ids     atomic.Pointer[FastMap[uint32, TypeHandle]]
	gen     atomic.Uint64

	pool bufferPool
}

// Default is the registry used by the package-level functions.
var Default = NewRegistry(nil)

// NewRegistry creates a registry with the built-in routines for bool,
// string and []byte. A nil cfg uses DefaultConfig.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{cfg: cfg.normalize()}
	r.entries.Store(NewFastMap[TypeHandle, *entry](64))
	r.ids.Store(NewFastMap[uint32, TypeHandle](16))
	r.pool.init(r.cfg)

	lo.Must0(RegisterRoutine[bool](r, (*Writer).WriteBool, (*Reader).ReadBool))
	lo.Must0(RegisterRoutine[string](r, (*Writer).WriteString, (*Reader).ReadString))
	lo.Must0(RegisterRoutine[[]byte](r, (*Writer).WriteByteSlice, (*Reader).ReadByteSlice,
		WithDecodeInto[[]byte]((*Reader).ReadByteSliceInto)))
	return r
}

// Config returns a copy of the registry settings.
func (r *Registry) Config() Config { return *r.cfg }

// NewReader creates a Reader over data that dispatches through r.
func (r *Registry) NewReader(data []byte) *Reader {
	return &Reader{buf: data, reg: r}
}

// NewWriter creates a Writer over sink that dispatches through r.
func (r *Registry) NewWriter(sink Sink) *Writer {
	w := &Writer{sink: sink, reg: r}
	if sink == nil {
		w.err = ErrNilSink
	}
	return w
}

func (r *Registry) log() *zap.Logger {
	if r.cfg.Logger != nil {
		return r.cfg.Logger
	}
	return Logger()
}

// Len returns the number of types with a dispatch entry.
func (r *Registry) Len() int { return r.entries.Load().Len() }

// Types returns the types with a dispatch entry, ordered by handle.
func (r *Registry) Types() []reflect.Type {
	m := r.entries.Load()
	return lo.Map(m.Keys(), func(h TypeHandle, _ int) reflect.Type {
		e, _ := m.Get(h)
		return e.typ
	})
}

// WireIDOf returns the wire type id bound to T, if any.
func WireIDOf[T any](r *Registry) (uint32, bool) {
	e, ok := r.entries.Load().Get(HandleOf[T]())
	if !ok || e.wireID == NullTypeID {
		return 0, false
	}
	return e.wireID, true
}

// IsSimple reports whether T is encoded by raw copy in r.
func IsSimple[T any](r *Registry) bool {
	e, err := lookup[T](r)
	return err == nil && e.simple
}

// --- Lookup ---

// lookup returns the entry of T, resolving it on first use.
func lookup[T any](r *Registry) (*entry, error) {
	if e, ok := r.entries.Load().Get(HandleOf[T]()); ok && !e.boxedOnly {
		return e, nil
	}
	return resolve[T](r)
}

// resolve creates the entry of a type seen for the first time: self-describing
// types register their methods, fixed-layout types become simple.
func resolve[T any](r *Registry) (*entry, error) {
	if enc, dec, into, ok := selfCodec[T](); ok {
		if err := RegisterRoutine(r, enc, dec, WithDecodeInto[T](into)); err != nil {
			return nil, err
		}
	} else if !IsFixed[T]() {
		var zero T
		if sr, ok := any(zero).(selfRegistrar); ok && !isNilValue(sr) {
			if err := sr.registerWith(r); err != nil {
				return nil, err
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.begin()
	e, ok := tx.entry(HandleOf[T]())
	if ok && !e.boxedOnly {
		return e, nil
	}
	e = newEntry[T]()
	if !e.simple {
		return nil, errors.Wrapf(ErrUnregisteredType, "%s", e.typ)
	}
	tx.put(e)
	tx.commit()
	return e, nil
}

// resolveBoxed is the counterpart of resolve for a type known only through
// reflection. Self-describing types get boxed routines; generic helper types
// register themselves. It returns nil, with no error, when t has neither, so
// that the caller can fall back to a raw copy.
func (r *Registry) resolveBoxed(t reflect.Type) (*entry, error) {
	h := handleOfType(t)
	if boxed, ok := boxedCodec(t); ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		tx := r.begin()
		if e, ok := tx.entry(h); ok {
			return e, nil
		}
		l := layoutOf(t)
		e := &entry{
			handle:    h,
			typ:       t,
			size:      l.size,
			fixed:     l.fixed,
			boxedOnly: true,
			boxed:     boxed,
			cache:     new(polyCache),
		}
		tx.put(e)
		tx.commit()
		return e, nil
	}
	if layoutOf(t).fixed || t.Kind() == reflect.Interface {
		return nil, nil
	}
	if sr, ok := reflect.New(t).Elem().Interface().(selfRegistrar); ok && !isNilValue(sr) {
		if err := sr.registerWith(r); err != nil {
			return nil, err
		}
		e, _ := r.entries.Load().Get(h)
		return e, nil
	}
	return nil, nil
}

// subtypeOf returns the entry of the concrete type h stored in the slot of
// base, or nil when h is not one of its registered subtypes.
func (r *Registry) subtypeOf(base *entry, h TypeHandle) *entry {
	gen := r.gen.Load()
	if c := base.cache.last.Load(); c != nil && c.handle == h && c.gen == gen {
		return c.target
	}
	if !base.subtypes.Contains(h) {
		return nil
	}
	target, ok := r.entries.Load().Get(h)
	if !ok {
		return nil
	}
	polymorphicMisses.Inc()
	base.cache.last.Store(&cachedSubtype{handle: h, target: target, gen: gen})
	return target
}

// --- Registration ---

// RoutineOption configures a routine registration.
type RoutineOption func(*routineOptions)

type routineOptions struct {
	wireID     uint32
	tolerant   bool
	decodeInto any
}

// WithWireID binds a wire type id to the registered type.
func WithWireID(id uint32) RoutineOption {
	return func(o *routineOptions) { o.wireID = id }
}

// WithVersionTolerance wraps every encoding of the type in a length prefix,
// so readers built against another version of it can skip what they do not know.
func WithVersionTolerance() RoutineOption {
	return func(o *routineOptions) { o.tolerant = true }
}

// WithDecodeInto supplies the in-place decode variant.
func WithDecodeInto[T any](fn DecodeIntoFunc[T]) RoutineOption {
	return func(o *routineOptions) {
		if fn != nil {
			o.decodeInto = fn
		}
	}
}

func buildOptions[T any](opts []RoutineOption) (routineOptions, DecodeIntoFunc[T], error) {
	var o routineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.decodeInto == nil {
		return o, nil, nil
	}
	into, ok := o.decodeInto.(DecodeIntoFunc[T])
	if !ok {
		return o, nil, errors.Wrapf(ErrTypeMismatch, "in-place routine %T does not decode %s", o.decodeInto, reflect.TypeFor[T]())
	}
	return o, into, nil
}

// applyRoutines installs the routines of T on e.
func applyRoutines[T any](e *entry, enc EncodeFunc[T], dec DecodeFunc[T], into DecodeIntoFunc[T], o routineOptions) {
	if into == nil {
		into = func(r *Reader, dst *T) {
			v := dec(r)
			if r.err == nil {
				*dst = v
			}
		}
	}
	e.encode = enc
	e.decode = dec
	e.decodeInto = into
	e.boxed = boxedFor(enc, dec, into)
	e.registered = true
	e.boxedOnly = false
	e.simple = false
	e.tolerant = o.tolerant
}

// RegisterRoutine registers the routines of T. Registering a type that
// already has routines is a no-op. A nil enc and dec are accepted for
// fixed-layout types and select the raw copy body.
func RegisterRoutine[T any](r *Registry, enc EncodeFunc[T], dec DecodeFunc[T], opts ...RoutineOption) error {
	o, into, err := buildOptions[T](opts)
	if err != nil {
		registrations.WithLabelValues("routine", outcomeRejected).Inc()
		return err
	}
	enc, dec, err = completeRoutines(enc, dec)
	if err != nil {
		registrations.WithLabelValues("routine", outcomeRejected).Inc()
		return err
	}

	h := HandleOf[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.begin()

	cur, ok := tx.entry(h)
	if ok && cur.registered {
		registrations.WithLabelValues("routine", outcomeDuplicate).Inc()
		r.log().Debug("routine already registered", zap.Stringer("type", cur.typ))
		return nil
	}
	var e *entry
	if ok {
		e = cur.clone()
	} else {
		e = newEntry[T]()
	}
	applyRoutines(e, enc, dec, into, o)
	tx.put(e)
	if o.wireID != NullTypeID {
		if err := tx.bindWireID(e, o.wireID); err != nil {
			registrations.WithLabelValues("routine", outcomeRejected).Inc()
			return err
		}
	}
	tx.commit()

	registrations.WithLabelValues("routine", outcomeAdded).Inc()
	r.log().Debug("registered routine",
		zap.Stringer("type", e.typ),
		zap.Uint32("wire_id", e.wireID),
		zap.Bool("tolerant", e.tolerant))
	return nil
}

// completeRoutines substitutes the raw copy routines of a fixed-layout type.
func completeRoutines[T any](enc EncodeFunc[T], dec DecodeFunc[T]) (EncodeFunc[T], DecodeFunc[T], error) {
	if enc != nil && dec != nil {
		return enc, dec, nil
	}
	if !IsFixed[T]() {
		return nil, nil, errors.Wrapf(ErrUnregisteredType, "%s needs both routines", reflect.TypeFor[T]())
	}
	if enc == nil {
		enc = writeRaw[T]
	}
	if dec == nil {
		dec = readRaw[T]
	}
	return enc, dec, nil
}

// RegisterSubtype records that Sub may be found in a slot of type Base and
// registers the routines of Sub, unless it already has some. Both types become
// polymorphic: their encodings carry the wire type id of the concrete type,
// which must be bound with WithWireID or RegisterWireID before use.
func RegisterSubtype[Base, Sub any](r *Registry, enc EncodeFunc[Sub], dec DecodeFunc[Sub], opts ...RoutineOption) error {
	bt, st := reflect.TypeFor[Base](), reflect.TypeFor[Sub]()
	switch {
	case bt == st:
		return errors.Wrapf(ErrTypeMismatch, "%s cannot be a subtype of itself", st)
	case st.Kind() == reflect.Interface:
		return errors.Wrapf(ErrTypeMismatch, "subtype %s must be concrete", st)
	case !st.AssignableTo(bt):
		return errors.Wrapf(ErrTypeMismatch, "%s is not assignable to %s", st, bt)
	}
	o, into, err := buildOptions[Sub](opts)
	if err != nil {
		return err
	}
	enc, dec, err = completeRoutines(enc, dec)
	if err != nil {
		return err
	}

	hb, hs := handleOfType(bt), handleOfType(st)
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.begin()

	base, ok := tx.entry(hb)
	if ok && base.subtypes.Contains(hs) {
		registrations.WithLabelValues("subtype", outcomeDuplicate).Inc()
		r.log().Debug("subtype already registered", zap.Stringer("base", bt), zap.Stringer("subtype", st))
		return nil
	}
	if ok {
		base = base.clone()
	} else {
		base = newEntry[Base]()
	}
	base.subtypes = base.subtypes.Clone()
	base.subtypes.Insert(hs, struct{}{})
	base.simple = false

	sub, ok := tx.entry(hs)
	if ok {
		sub = sub.clone()
	} else {
		sub = newEntry[Sub]()
	}
	if !sub.registered {
		applyRoutines(sub, enc, dec, into, o)
	}
	sub.hasBase = true
	sub.simple = false

	tx.put(base)
	tx.put(sub)
	if o.wireID != NullTypeID {
		if err := tx.bindWireID(sub, o.wireID); err != nil {
			registrations.WithLabelValues("subtype", outcomeRejected).Inc()
			return err
		}
	}
	tx.commit()

	registrations.WithLabelValues("subtype", outcomeAdded).Inc()
	r.log().Debug("registered subtype",
		zap.Stringer("base", bt),
		zap.Stringer("subtype", st),
		zap.Uint32("wire_id", sub.wireID))
	return nil
}

// RegisterWireID binds the stable cross-process id to T. Binding the same id
// twice is a no-op; binding a different id to T, or the id to another type,
// fails with ErrDuplicateWireID.
func RegisterWireID[T any](r *Registry, id uint32) error {
	h := HandleOf[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	tx := r.begin()

	e, ok := tx.entry(h)
	if ok {
		e = e.clone()
	} else {
		e = newEntry[T]()
	}
	if err := tx.bindWireID(e, id); err != nil {
		registrations.WithLabelValues("wire_id", outcomeRejected).Inc()
		r.log().Warn("wire type id rejected", zap.Stringer("type", e.typ), zap.Uint32("wire_id", id), zap.Error(err))
		return err
	}
	tx.put(e)
	tx.commit()
	registrations.WithLabelValues("wire_id", outcomeAdded).Inc()
	return nil
}

// --- Copy-on-write publication ---

// txn accumulates changes to private copies of the published tables.
// It must only be used with r.mu held.
type txn struct {
	r       *Registry
	entries *FastMap[TypeHandle, *entry]
	ids     *FastMap[uint32, TypeHandle]
	ownE    bool
	ownI    bool
}

func (r *Registry) begin() *txn {
	return &txn{r: r, entries: r.entries.Load(), ids: r.ids.Load()}
}

func (tx *txn) entry(h TypeHandle) (*entry, bool) { return tx.entries.Get(h) }

func (tx *txn) put(e *entry) {
	if !tx.ownE {
		tx.entries = tx.entries.Clone()
		tx.ownE = true
	}
	tx.entries.Insert(e.handle, e)
}

// bindWireID sets the wire id of e, which the caller then puts.
func (tx *txn) bindWireID(e *entry, id uint32) error {
	if !validWireID(id) {
		return errors.Wrapf(ErrMalformedWireData, "wire type id 0x%08x is reserved", id)
	}
	if owner, ok := tx.ids.Get(id); ok && owner != e.handle {
		other, _ := tx.entries.Get(owner)
		return errors.Wrapf(ErrDuplicateWireID, "id %d is bound to %s, not %s", id, other.typ, e.typ)
	}
	if e.wireID != NullTypeID && e.wireID != id {
		return errors.Wrapf(ErrDuplicateWireID, "%s already has id %d", e.typ, e.wireID)
	}
	if e.wireID == id {
		return nil
	}
	e.wireID = id
	if !tx.ownI {
		tx.ids = tx.ids.Clone()
		tx.ownI = true
	}
	tx.ids.Insert(id, e.handle)
	return nil
}

func (tx *txn) commit() {
	if tx.ownE {
		tx.r.entries.Store(tx.entries)
	}
	if tx.ownI {
		tx.r.ids.Store(tx.ids)
	}
	tx.r.gen.Add(1)
}
