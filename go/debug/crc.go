package debug

// gdb's qCRC uses the non-reflected CRC-32 (poly 0x04c11db7, init 0xffffffff,
// no final xor). hash/crc32 only implements the reflected form.
var crcTable = func() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ 0x04c11db7
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return
}()

func UpdateCRC(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = crc<<8 ^ crcTable[byte(crc>>24)^b]
	}
	return crc
}

func CRC32(p []byte) uint32 {
	return UpdateCRC(0xffffffff, p)
}
