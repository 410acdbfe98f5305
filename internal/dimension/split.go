package dimension

import "unicode/utf16"

// Dataset split values.
const (
	SplitTrain = "train"
	SplitDev   = "dev"
	SplitTest  = "test"
)

// SplitFor assigns a stable train/dev/test split from the chunk identifier.
// The hash is the 32-bit h = h*31 + c over UTF-16 code units; its absolute
// value mod 10 maps 9 to test, 8 to dev and everything else to train.
func SplitFor(id string) string {
	switch splitHash(id) % 10 {
	case 9:
		return SplitTest
	case 8:
		return SplitDev
	default:
		return SplitTrain
	}
}

func splitHash(s string) int64 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return v
}
