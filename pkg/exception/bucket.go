package exception

import (
	"github.com/Chris-P-15B/CDR-Exception-Analyser/pkg/cdr"
)

// NoCause is the cause slot of quality buckets, which are keyed by device alone.
// It also sorts ahead of every real cause code when buckets are ordered.
const NoCause = "-1"

// Shape names which record fields a bucket key was taken from.
type Shape int

const (
	ShapeOrigDeviceOrigCause Shape = iota
	ShapeOrigDeviceDestCause
	ShapeDestDeviceOrigCause
	ShapeDestDeviceDestCause
	ShapeOrigDeviceQuality
	ShapeDestDeviceQuality
)

var callShapes = []Shape{
	ShapeOrigDeviceOrigCause,
	ShapeOrigDeviceDestCause,
	ShapeDestDeviceOrigCause,
	ShapeDestDeviceDestCause,
}

var qualityShapes = []Shape{
	ShapeOrigDeviceQuality,
	ShapeDestDeviceQuality,
}

func (s Shape) String() string {
	switch s {
	case ShapeOrigDeviceOrigCause:
		return "orig_device/orig_cause"
	case ShapeOrigDeviceDestCause:
		return "orig_device/dest_cause"
	case ShapeDestDeviceOrigCause:
		return "dest_device/orig_cause"
	case ShapeDestDeviceDestCause:
		return "dest_device/dest_cause"
	case ShapeOrigDeviceQuality:
		return "orig_device"
	case ShapeDestDeviceQuality:
		return "dest_device"
	default:
		return "unknown"
	}
}

// OrigDevice reports whether the key device is the originating side.
func (s Shape) OrigDevice() bool {
	return s == ShapeOrigDeviceOrigCause || s == ShapeOrigDeviceDestCause || s == ShapeOrigDeviceQuality
}

// OrigCause reports whether the key cause is the originating cause.
func (s Shape) OrigCause() bool {
	return s == ShapeOrigDeviceOrigCause || s == ShapeDestDeviceOrigCause
}

// HasCause is false for quality shapes.
func (s Shape) HasCause() bool {
	return s <= ShapeDestDeviceDestCause
}

// extract returns the device and cause a record contributes under this shape.
func (s Shape) extract(rec *cdr.Record) (device, cause string) {
	if s.OrigDevice() {
		device = rec.OrigDevice()
	} else {
		device = rec.DestDevice()
	}

	if !s.HasCause() {
		return device, NoCause
	}
	call, _ := rec.Call()
	if s.OrigCause() {
		return device, call.OrigCause
	}
	return device, call.DestCause
}

// Key identifies one exception: a device in one role with one cause, or a
// device in one role with poor quality.
type Key struct {
	Shape  Shape
	Device string
	Cause  string
}

// Bucket groups the records that share a key, in discovery order.
type Bucket struct {
	Key
	Records []*cdr.Record

	order bucketOrder
}

// Count is the number of records in the bucket
func (b *Bucket) Count() int {
	return len(b.Records)
}

// Kind is the kind of the records in the bucket
func (b *Bucket) Kind() cdr.Kind {
	if b.Shape.HasCause() {
		return cdr.KindCall
	}
	return cdr.KindQuality
}

// bucketOrder reproduces the device x cause scan order: device first seen,
// cause first seen, first contributing record, then shape.
type bucketOrder struct {
	device int
	cause  int
	record int
	shape  Shape
}

func (o bucketOrder) less(other bucketOrder) bool {
	if o.device != other.device {
		return o.device < other.device
	}
	if o.cause != other.cause {
		return o.cause < other.cause
	}
	if o.record != other.record {
		return o.record < other.record
	}
	return o.shape < other.shape
}
