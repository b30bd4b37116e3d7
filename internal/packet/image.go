package packet

import (
	"fmt"

	"github.com/vk/streamgridgo/internal/errs"
)

// ImageFormat is the pixel layout of an image frame.
type ImageFormat int

const (
	FormatUnknown ImageFormat = iota
	FormatSRGB
	FormatSRGBA
	FormatGray8
	FormatGray16
	FormatVec32F1
)

func (f ImageFormat) String() string {
	switch f {
	case FormatSRGB:
		return "SRGB"
	case FormatSRGBA:
		return "SRGBA"
	case FormatGray8:
		return "GRAY8"
	case FormatGray16:
		return "GRAY16"
	case FormatVec32F1:
		return "VEC32F1"
	default:
		return "UNKNOWN"
	}
}

// Channels returns the number of channels per pixel.
func (f ImageFormat) Channels() int {
	switch f {
	case FormatSRGB:
		return 3
	case FormatSRGBA:
		return 4
	case FormatGray8, FormatGray16, FormatVec32F1:
		return 1
	default:
		return 0
	}
}

// BytesPerChannel returns the storage size of a single channel value.
func (f ImageFormat) BytesPerChannel() int {
	switch f {
	case FormatGray16:
		return 2
	case FormatVec32F1:
		return 4
	case FormatUnknown:
		return 0
	default:
		return 1
	}
}

// rgbChannelError is returned when an RGB image does not have three channels.
const rgbChannelError = "Input image must contain three channel rgb data"

// ImageFrame is a dense, row-major pixel buffer.
type ImageFrame struct {
	Format ImageFormat
	Width  int
	Height int
	Pixels []byte
}

// Channels returns the channel count of the frame's format.
func (f ImageFrame) Channels() int {
	return f.Format.Channels()
}

// WidthStep returns the number of bytes in one row.
func (f ImageFrame) WidthStep() int {
	return f.Width * f.Format.Channels() * f.Format.BytesPerChannel()
}

func (f ImageFrame) clone() ImageFrame {
	f.Pixels = append([]byte(nil), f.Pixels...)
	return f
}

func (f ImageFrame) validate(op string) error {
	if f.Format == FormatUnknown {
		return errs.Type("packet", op, "unknown image format")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return errs.Type("packet", op, "invalid image dimensions %dx%d", f.Width, f.Height)
	}
	if want := f.WidthStep() * f.Height; len(f.Pixels) != want {
		return errs.Type("packet", op, "%s image of %dx%d needs %d bytes, got %d", f.Format, f.Width, f.Height, want, len(f.Pixels))
	}
	return nil
}

// CreateImageFrame creates an image packet. The pixel buffer is copied and
// must match the format and dimensions exactly.
func CreateImageFrame(format ImageFormat, width, height int, pixels []byte) (Packet, error) {
	frame := ImageFrame{Format: format, Width: width, Height: height, Pixels: pixels}
	if err := frame.validate("CreateImageFrame"); err != nil {
		return Packet{}, err
	}
	return newPacket(KindImageFrame, frame.clone()), nil
}

// CreateImageFrameFromChannels creates an image packet from raw data whose
// channel count is known separately from the target format, as produced by
// array-based image sources. The channel count has to agree with the format.
func CreateImageFrameFromChannels(format ImageFormat, width, height, channels int, pixels []byte) (Packet, error) {
	if format == FormatSRGB && channels != 3 {
		return Packet{}, errs.Type("packet", "CreateImageFrame", rgbChannelError)
	}
	if channels != format.Channels() {
		return Packet{}, errs.Type("packet", "CreateImageFrame",
			"%s image must contain %d channel data, got %d", format, format.Channels(), channels)
	}
	return CreateImageFrame(format, width, height, pixels)
}

// GetImageFrame returns a copy of the frame held by p.
func GetImageFrame(p Packet) (ImageFrame, error) {
	if err := p.expect(KindImageFrame, "GetImageFrame"); err != nil {
		return ImageFrame{}, err
	}
	return p.value.(ImageFrame).clone(), nil
}

// Matrix is a dense row-major float32 matrix, used for audio sample blocks.
type Matrix struct {
	Rows int
	Cols int
	Data []float32
}

// CreateMatrix creates a matrix packet. data is copied.
func CreateMatrix(rows, cols int, data []float32) (Packet, error) {
	if rows < 0 || cols < 0 || len(data) != rows*cols {
		return Packet{}, errs.Type("packet", "CreateMatrix", "matrix of %dx%d needs %d values, got %d", rows, cols, rows*cols, len(data))
	}
	return newPacket(KindMatrix, Matrix{Rows: rows, Cols: cols, Data: append([]float32(nil), data...)}), nil
}

// GetMatrix returns a copy of the matrix held by p.
func GetMatrix(p Packet) (Matrix, error) {
	if err := p.expect(KindMatrix, "GetMatrix"); err != nil {
		return Matrix{}, err
	}
	m := p.value.(Matrix)
	m.Data = append([]float32(nil), m.Data...)
	return m, nil
}

// At returns the value at row r and column c.
func (m Matrix) At(r, c int) float32 {
	return m.Data[r*m.Cols+c]
}

func (m Matrix) String() string {
	return fmt.Sprintf("matrix(%dx%d)", m.Rows, m.Cols)
}
