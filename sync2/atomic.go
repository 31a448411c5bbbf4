package sync2

import (
	"sync/atomic"
)

type AtomicInt32 int32

func (i32 *AtomicInt32) Add(n int32) int32 {
	return atomic.AddInt32((*int32)(i32), n)
}

func (i32 *AtomicInt32) Set(n int32) {
	atomic.StoreInt32((*int32)(i32), n)
}

func (i32 *AtomicInt32) Get() int32 {
	return atomic.LoadInt32((*int32)(i32))
}

func (i32 *AtomicInt32) CompareAndSwap(oldval, newval int32) (swapped bool) {
	return atomic.CompareAndSwapInt32((*int32)(i32), oldval, newval)
}

type AtomicUint32 uint32

func (u32 *AtomicUint32) Add(n uint32) uint32 {
	return atomic.AddUint32((*uint32)(u32), n)
}

func (u32 *AtomicUint32) Set(n uint32) {
	atomic.StoreUint32((*uint32)(u32), n)
}

func (u32 *AtomicUint32) Get() uint32 {
	return atomic.LoadUint32((*uint32)(u32))
}

func (u32 *AtomicUint32) CompareAndSwap(oldval, newval uint32) (swapped bool) {
	return atomic.CompareAndSwapUint32((*uint32)(u32), oldval, newval)
}
