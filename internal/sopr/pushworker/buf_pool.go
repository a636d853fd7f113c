package pushworker

// BufPool 序列化 buffer 的复用池，只在 loop 协程中使用，不加锁
// 超过 maxIdle 的 buffer 直接丢弃，超过 maxBufCap 的大 buffer 不回收
type BufPool struct {
	idle      [][]byte
	bufSize   int
	maxIdle   int
	maxBufCap int
}

func NewBufPool(preAlloc, maxIdle, bufSize int) *BufPool {
	p := &BufPool{
		idle:      make([][]byte, 0, maxIdle),
		bufSize:   bufSize,
		maxIdle:   maxIdle,
		maxBufCap: bufSize * 16,
	}
	for i := 0; i < min(preAlloc, maxIdle); i++ {
		p.idle = append(p.idle, make([]byte, 0, bufSize))
	}
	return p
}

func (p *BufPool) Get() []byte {
	n := len(p.idle)
	if n == 0 {
		return make([]byte, 0, p.bufSize)
	}
	buf := p.idle[n-1]
	p.idle[n-1] = nil
	p.idle = p.idle[:n-1]
	return buf[:0]
}

func (p *BufPool) Put(buf []byte) {
	if cap(buf) == 0 || cap(buf) > p.maxBufCap || len(p.idle) >= p.maxIdle {
		return
	}
	p.idle = append(p.idle, buf[:0])
}

// Idle 当前可复用的 buffer 数量
func (p *BufPool) Idle() int {
	return len(p.idle)
}
