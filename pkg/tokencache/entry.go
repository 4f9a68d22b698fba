package tokencache

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExpiryLayout is the portal's TokenExpiry format. The value carries no zone
// and is in Indian Standard Time.
const ExpiryLayout = "2006-01-02 15:04:05"

// IST is the fixed +05:30 zone the portal reports expiry times in.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// ParseExpiry parses a TokenExpiry value in IST.
func ParseExpiry(s string) (time.Time, error) {
	t, err := time.ParseInLocation(ExpiryLayout, s, IST)
	if err != nil {
		return time.Time{}, fmt.Errorf("tokencache: invalid expiry %q: %w", s, err)
	}
	return t, nil
}

// FormatExpiry renders t the way the portal does.
func FormatExpiry(t time.Time) string {
	return t.In(IST).Format(ExpiryLayout)
}

// Entry is one cached token and session key pair.
type Entry struct {
	Token  string
	SEK    string
	Expiry time.Time
}

// Usable reports whether the entry is complete and does not expire before
// now plus margin.
func (e Entry) Usable(now time.Time, margin time.Duration) bool {
	if e.Token == "" || e.SEK == "" || e.Expiry.IsZero() {
		return false
	}
	return !e.Expiry.Before(now.Add(margin))
}

type entryJSON struct {
	Token      string `json:"token"`
	SEK        string `json:"sek"`
	ExpiryTime string `json:"expiry_time"`
}

// MarshalJSON writes {"token","sek","expiry_time"}.
func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Token:      e.Token,
		SEK:        e.SEK,
		ExpiryTime: FormatExpiry(e.Expiry),
	})
}

// UnmarshalJSON reads the format written by MarshalJSON.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	expiry, err := ParseExpiry(raw.ExpiryTime)
	if err != nil {
		return err
	}

	*e = Entry{Token: raw.Token, SEK: raw.SEK, Expiry: expiry}
	return nil
}
