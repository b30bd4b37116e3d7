// Package image provides calculators on RGB image frames.
package image

import (
	"fmt"

	"github.com/vk/streamgridgo/internal/calculator"
	"github.com/vk/streamgridgo/internal/packet"
	"github.com/vk/streamgridgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Properties emits the SIZE of every IMAGE as [width, height] and, when a
// MEAN output is connected, the mean of each RGB channel.
type Properties struct{ calculator.Base }

func propertiesContract(c *calculator.Contract) error {
	if !c.Inputs().HasTag("IMAGE") || c.Inputs().Len() != 1 {
		return fmt.Errorf("ImagePropertiesCalculator needs exactly one IMAGE input stream")
	}
	c.Inputs().Get("IMAGE", 0).Set(packet.TypeImageFrameRGB)
	for _, tag := range c.Outputs().Tags() {
		switch tag {
		case "SIZE":
			c.Outputs().Get(tag, 0).Set("int_list")
		case "MEAN":
			c.Outputs().Get(tag, 0).Set("float_list")
		default:
			return fmt.Errorf("ImagePropertiesCalculator does not support output tag %q", tag)
		}
	}
	c.SetTimestampOffset(0)
	return nil
}

// Process measures the frame.
func (Properties) Process(cc *calculator.Context) error {
	frame, err := packet.GetImageFrame(cc.Input("IMAGE", 0))
	if err != nil {
		return err
	}
	ts := cc.InputTimestamp()
	if out := cc.Output("SIZE", 0); out != nil {
		size := packet.CreateIntList([]int64{int64(frame.Width), int64(frame.Height)})
		if err := out.Add(size, ts); err != nil {
			return err
		}
	}
	if out := cc.Output("MEAN", 0); out != nil {
		return out.Add(packet.CreateFloatList(channelMeans(frame)), ts)
	}
	return nil
}

func channelMeans(frame packet.ImageFrame) []float64 {
	channels := frame.Channels()
	sums := make([]float64, channels)
	for i, b := range frame.Pixels {
		sums[i%channels] += float64(b)
	}
	pixels := float64(frame.Width * frame.Height)
	for i := range sums {
		sums[i] /= pixels
	}
	return sums
}

// Register registers the calculators with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterCalculator(&registry.Registration{
		Name:        "ImagePropertiesCalculator",
		GetContract: propertiesContract,
		New:         func() calculator.Calculator { return Properties{} },
	})
}
