package types

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestHexBytesJSON(t *testing.T) {
	c := qt.New(t)
	hb := HexBytes{0xca, 0xfe}
	data, err := json.Marshal(map[string]HexBytes{"root": hb})
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, `{"root":"cafe"}`)

	var out map[string]HexBytes
	c.Assert(json.Unmarshal(data, &out), qt.IsNil)
	c.Assert(out["root"], qt.DeepEquals, hb)

	var prefixed HexBytes
	c.Assert(json.Unmarshal([]byte(`"0xcafe"`), &prefixed), qt.IsNil)
	c.Assert(prefixed, qt.DeepEquals, hb)

	c.Assert(json.Unmarshal([]byte(`"zz"`), &prefixed), qt.Not(qt.IsNil))
	c.Assert(json.Unmarshal([]byte(`12`), &prefixed), qt.Not(qt.IsNil))
}
