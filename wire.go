package bincodec

import "encoding/binary"

var (
	// Native is the byte order of fixed-size primitive payloads.
	// Primitives are copied in host layout; only structural markers are canonical.
	Native = binary.NativeEndian
	// Canonical is the byte order of collection headers, wire type ids and
	// version-tolerance length prefixes.
	Canonical = binary.BigEndian
)

const (
	// HeaderSize is the size of every structural marker: collection headers,
	// wire type ids and length prefixes.
	HeaderSize = 4

	// NullMarker is written where a header or type id is expected and the
	// value is absent.
	NullMarker uint32 = 0

	// NullCollection marks an absent collection. It shares the all-zero
	// encoding of NullMarker and never aliases a real header, whose high bit is set.
	NullCollection uint32 = NullMarker

	// collectionFlag distinguishes a real header from the null marker.
	collectionFlag uint32 = 1 << 31

	// EmptyCollectionHeader marks a present collection with no elements.
	EmptyCollectionHeader uint32 = collectionFlag

	// ReferenceSentinel is reserved for back-references to already encoded
	// objects. It is never produced as a header or a wire type id.
	ReferenceSentinel uint32 = 0xFFFFFFFF

	// MaxCollectionLen is the largest encodable element count. One less than
	// the 31-bit maximum, so that no header equals ReferenceSentinel.
	MaxCollectionLen = int(collectionFlag - 2)
)

const (
	// NullTypeID is written in a polymorphic slot holding a nil value.
	NullTypeID uint32 = NullMarker
	// ReferenceTypeID is reserved and cannot be registered.
	ReferenceTypeID uint32 = ReferenceSentinel
)

const (
	absentByte  byte = 0
	presentByte byte = 1
)

// CollectionHeader returns the header for a present collection of n elements.
// n must be within [0, MaxCollectionLen].
func CollectionHeader(n int) uint32 {
	return collectionFlag | uint32(n)
}

// ParseCollectionHeader classifies a raw header value.
// It returns (count, true, true) for a real header, (0, false, true) for the
// null collection, and ok == false for anything unrecognized.
func ParseCollectionHeader(h uint32) (count int, present bool, ok bool) {
	switch {
	case h == NullCollection:
		return 0, false, true
	case h&collectionFlag == 0, h == ReferenceSentinel:
		return 0, false, false
	default:
		return int(h &^ collectionFlag), true, true
	}
}

// validWireID reports whether id can be assigned to a type.
func validWireID(id uint32) bool {
	return id != NullTypeID && id != ReferenceTypeID
}
