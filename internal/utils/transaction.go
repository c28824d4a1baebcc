package utils

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"time"
)

// GenerateTransactionID derives the payment transaction id from the patron
// and a nanosecond timestamp: md5 hex of "<patronID>_<unix nanos>".
func GenerateTransactionID(patronID string, now time.Time) string {
	sum := md5.Sum([]byte(patronID + "_" + strconv.FormatInt(now.UnixNano(), 10)))
	return hex.EncodeToString(sum[:])
}
