package service

import (
	"crypto/rand"
	"strconv"
	"time"
)

const (
	idSuffixLen = 7
	base36      = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// generateRecordID returns "<unix millis>-<7 base36 chars>", the identifier
// format the web client uses, so ids from both sources sort together.
func generateRecordID(now time.Time) (string, error) {
	suffix := make([]byte, 0, idSuffixLen)
	buf := make([]byte, 16)
	for len(suffix) < idSuffixLen {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			// 252 is the largest multiple of 36 below 256; rejecting the rest
			// keeps every digit equally likely.
			if b >= 252 || len(suffix) == idSuffixLen {
				continue
			}
			suffix = append(suffix, base36[b%36])
		}
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + string(suffix), nil
}
