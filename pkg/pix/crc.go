package pix

import "fmt"

const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// CRC16 computes CRC16-CCITT (poly 0x1021, init 0xFFFF, no reflection, no final xor).
func CRC16(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// FormatCRC renders a checksum as the four uppercase hex digits used in the trailer.
func FormatCRC(crc uint16) string {
	return fmt.Sprintf("%04X", crc)
}
