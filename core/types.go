package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Color is a linear RGBA color.
type Color struct {
	R, G, B, A float32
}

var (
	ColorWhite  = Color{1, 1, 1, 1}
	ColorBlack  = Color{0, 0, 0, 1}
	ColorRed    = Color{1, 0, 0, 1}
	ColorGreen  = Color{0, 1, 0, 1}
	ColorBlue   = Color{0, 0, 1, 1}
	ColorYellow = Color{1, 1, 0, 1}
)

func (c Color) Array() [4]float32 {
	return [4]float32{c.R, c.G, c.B, c.A}
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", to8(c.R), to8(c.G), to8(c.B), to8(c.A))
}

// UnmarshalText accepts "#rrggbb" and "#rrggbbaa".
func (c *Color) UnmarshalText(b []byte) error {
	s := strings.TrimPrefix(strings.TrimSpace(string(b)), "#")
	if len(s) != 6 && len(s) != 8 {
		return errors.Errorf("invalid color %q", string(b))
	}
	if len(s) == 6 {
		s += "ff"
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return errors.Wrapf(err, "invalid color %q", string(b))
	}
	c.R = float32(v>>24&0xff) / 255
	c.G = float32(v>>16&0xff) / 255
	c.B = float32(v>>8&0xff) / 255
	c.A = float32(v&0xff) / 255
	return nil
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func to8(f float32) uint8 {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	}
	return uint8(f*255 + 0.5)
}
