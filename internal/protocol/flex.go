package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// flexInt decodes a JSON number or a numeric string. Browsers send form
// values as strings.
type flexInt struct {
	v   int64
	set bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = flexInt{}
		return nil
	}

	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = flexInt{}
			return nil
		}
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexInt{v: v, set: true}
		return nil
	}
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil || fv != math.Trunc(fv) || math.Abs(fv) > math.MaxInt64 {
		return fmt.Errorf("%s is not an integer", s)
	}
	*f = flexInt{v: int64(fv), set: true}
	return nil
}

func (f flexInt) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, f.v, 10), nil
}

func flexInts(in []flexInt) []int64 {
	out := make([]int64, 0, len(in))
	for _, f := range in {
		if f.set {
			out = append(out, f.v)
		}
	}
	return out
}
