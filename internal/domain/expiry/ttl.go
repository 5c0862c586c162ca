package expiry

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// TTL is a document time-to-live in seconds. Zero means the document never
// expires; negative values are passed to the store verbatim.
type TTL int64

// NeverExpire clears any expiration on the document.
const NeverExpire TTL = 0

// MaxTTL is the largest TTL magnitude accepted: fifty years. Couchbase stores
// expiries longer than thirty days as an absolute uint32 unix time, which
// runs out in 2106.
const MaxTTL TTL = 50 * 365 * 24 * 60 * 60

// relativeExpiryLimit is the longest TTL the server keeps as a relative
// offset rather than an absolute timestamp.
const relativeExpiryLimit TTL = 30 * 24 * 60 * 60

// TTLFromMinutes converts the minutes accepted on the command line.
func TTLFromMinutes(minutes int64) (TTL, error) {
	if minutes > int64(MaxTTL/60) || minutes < -int64(MaxTTL/60) {
		return 0, fmt.Errorf("%w: %d minutes", ErrTTLOutOfRange, minutes)
	}
	return TTL(minutes * 60), nil
}

// Seconds returns the raw signed value.
func (t TTL) Seconds() int64 { return int64(t) }

// Validate rejects TTLs whose magnitude exceeds MaxTTL.
func (t TTL) Validate() error {
	if t > MaxTTL || t < -MaxTTL {
		return fmt.Errorf("%w: %ds", ErrTTLOutOfRange, int64(t))
	}
	return nil
}

// ValidateAt additionally rejects a TTL whose absolute expiry, taken from
// now, does not fit the server's uint32 timestamp.
func (t TTL) ValidateAt(now time.Time) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t > relativeExpiryLimit && now.Unix()+int64(t) > math.MaxUint32 {
		return fmt.Errorf("%w: %ds from %s passes the year 2106", ErrTTLOutOfRange, int64(t), now.UTC().Format(time.RFC3339))
	}
	return nil
}

// Duration returns the TTL as a time.Duration.
func (t TTL) Duration() (time.Duration, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	return time.Duration(t) * time.Second, nil
}

// IsNever reports whether the TTL removes any expiration from the document.
func (t TTL) IsNever() bool { return t == NeverExpire }

func (t TTL) String() string {
	if t.IsNever() {
		return "0s (never expires)"
	}
	return strconv.FormatInt(int64(t), 10) + "s"
}
