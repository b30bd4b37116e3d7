package app

import (
	"io"

	"github.com/vk/streamgridgo/internal/registry"
	"github.com/vk/streamgridgo/modules/counter"
	"github.com/vk/streamgridgo/modules/envvars"
	"github.com/vk/streamgridgo/modules/failing"
	"github.com/vk/streamgridgo/modules/image"
	"github.com/vk/streamgridgo/modules/passthrough"
	"github.com/vk/streamgridgo/modules/print"
	"github.com/vk/streamgridgo/modules/sidepacket"
	"github.com/vk/streamgridgo/modules/socketio"
	"github.com/vk/streamgridgo/modules/threshold"
)

// coreModules is the definitive list of all calculator modules that are
// compiled into the streamgrid binary. PrintCalculator writes to out.
func coreModules(out io.Writer) []registry.Module {
	return []registry.Module{
		&passthrough.Module{},
		&sidepacket.Module{},
		&threshold.Module{},
		&counter.Module{},
		&envvars.Module{},
		&image.Module{},
		&print.Module{Out: out},
		&socketio.Module{},
		&failing.Module{},
	}
}
