package opl

const dcAdjustBufferLen = 512

// DcAdjuster tracks the running mean of the output so it can be removed.
type DcAdjuster struct {
	buffer [dcAdjustBufferLen]int32
	pos    int
	sum    int32
}

func NewDcAdjuster() *DcAdjuster {
	return &DcAdjuster{}
}

func (d *DcAdjuster) Reset() {
	*d = DcAdjuster{}
}

func (d *DcAdjuster) AddSample(sample int32) {
	d.sum -= d.buffer[d.pos]
	d.sum += sample
	d.buffer[d.pos] = sample
	d.pos = (d.pos + 1) & (dcAdjustBufferLen - 1)
}

func (d *DcAdjuster) GetDcLevel() int32 {
	return d.sum / dcAdjustBufferLen
}
