// Package atomic provides small typed wrappers over sync/atomic, the same
// thin-wrapper idiom the teacher uses in its own cmn/atomic package. These
// are plain synchronization primitives: no third-party library in the pack
// offers anything beyond what sync/atomic already does for a single word,
// so this stays on the standard library by design (see DESIGN.md).
package atomic

import "sync/atomic"

type Int32 struct{ v int32 }

func (i *Int32) Load() int32        { return atomic.LoadInt32(&i.v) }
func (i *Int32) Store(val int32)    { atomic.StoreInt32(&i.v, val) }
func (i *Int32) Add(delta int32) int32 { return atomic.AddInt32(&i.v, delta) }
func (i *Int32) Inc() int32         { return i.Add(1) }
func (i *Int32) Dec() int32         { return i.Add(-1) }
func (i *Int32) CAS(old, newV int32) bool {
	return atomic.CompareAndSwapInt32(&i.v, old, newV)
}

type Int64 struct{ v int64 }

func (i *Int64) Load() int64           { return atomic.LoadInt64(&i.v) }
func (i *Int64) Store(val int64)       { atomic.StoreInt64(&i.v, val) }
func (i *Int64) Add(delta int64) int64 { return atomic.AddInt64(&i.v, delta) }
func (i *Int64) Inc() int64            { return i.Add(1) }
func (i *Int64) Dec() int64            { return i.Add(-1) }
func (i *Int64) CAS(old, newV int64) bool {
	return atomic.CompareAndSwapInt64(&i.v, old, newV)
}

type Bool struct{ v int32 }

func (b *Bool) Load() bool { return atomic.LoadInt32(&b.v) != 0 }
func (b *Bool) Store(val bool) {
	if val {
		atomic.StoreInt32(&b.v, 1)
	} else {
		atomic.StoreInt32(&b.v, 0)
	}
}
func (b *Bool) CAS(old, newV bool) bool {
	var o, n int32
	if old {
		o = 1
	}
	if newV {
		n = 1
	}
	return atomic.CompareAndSwapInt32(&b.v, o, n)
}

type Uint32 struct{ v uint32 }

func (u *Uint32) Load() uint32        { return atomic.LoadUint32(&u.v) }
func (u *Uint32) Store(val uint32)    { atomic.StoreUint32(&u.v, val) }
func (u *Uint32) CAS(old, newV uint32) bool {
	return atomic.CompareAndSwapUint32(&u.v, old, newV)
}
