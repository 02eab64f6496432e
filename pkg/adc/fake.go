package adc

// Fake is a test double that returns scripted codes per channel.
type Fake struct {
	// Codes contains the scripted conversions for each channel. Each Read
	// consumes the next code; once exhausted the last code repeats.
	Codes map[Channel][]uint16

	index map[Channel]int
	// Reads counts conversions per channel.
	Reads map[Channel]int
}

// Ensure Fake implements Reader.
var _ Reader = (*Fake)(nil)

// NewFake creates a Fake with the given per-channel scripts.
func NewFake(codes map[Channel][]uint16) *Fake {
	if codes == nil {
		codes = make(map[Channel][]uint16)
	}
	return &Fake{
		Codes: codes,
		index: make(map[Channel]int),
		Reads: make(map[Channel]int),
	}
}

// Read returns the next scripted code for ch, or 0 when nothing is scripted.
func (f *Fake) Read(ch Channel) uint16 {
	f.Reads[ch]++
	codes := f.Codes[ch]
	if len(codes) == 0 {
		return 0
	}
	i := f.index[ch]
	if i < len(codes)-1 {
		f.index[ch]++
	}
	return codes[i]
}

// Reset rewinds every channel script.
func (f *Fake) Reset() {
	f.index = make(map[Channel]int)
	f.Reads = make(map[Channel]int)
}
