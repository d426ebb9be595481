package cbmpc

import "runtime"

// ZeroizeBytes overwrites buf with zeros. runtime.KeepAlive keeps the stores
// from being eliminated (golang/go#33325). Copies made elsewhere by the
// garbage collector are out of reach.
func ZeroizeBytes(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	runtime.KeepAlive(buf)
}

// ZeroizeAll zeroizes every element of bufs.
func ZeroizeAll(bufs [][]byte) {
	for _, b := range bufs {
		ZeroizeBytes(b)
	}
}
