package util

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestTrimHex(t *testing.T) {
	c := qt.New(t)
	c.Assert(TrimHex("0xcafe"), qt.Equals, "cafe")
	c.Assert(TrimHex("0Xcafe"), qt.Equals, "cafe")
	c.Assert(TrimHex("cafe"), qt.Equals, "cafe")
	c.Assert(TrimHex("0"), qt.Equals, "0")
	c.Assert(TrimHex(""), qt.Equals, "")
}

func TestFirstNonEmpty(t *testing.T) {
	c := qt.New(t)
	c.Assert(FirstNonEmpty("", "  ", "a", "b"), qt.Equals, "a")
	c.Assert(FirstNonEmpty("", ""), qt.Equals, "")
	c.Assert(FirstNonEmpty(), qt.Equals, "")
}
