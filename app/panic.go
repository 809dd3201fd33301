package app

import (
	"fmt"
	"image/color"
	"strings"

	"mpkern/hal"
	"mpkern/kernel"
)

var colorPanicBG = color.RGBA{R: 160, G: 0, B: 0, A: 255}

func installPanicHandler(h hal.HAL, k *kernel.Kernel, session string) {
	k.SetPanicHandler(func(info kernel.PanicInfo) {
		lines := []string{
			"mpkern panic",
			fmt.Sprintf("session: %s", session),
			fmt.Sprintf("core: %d  task: %d  tick: %d", info.Core, info.TaskID, k.Ticks()),
			fmt.Sprintf("panic: %v", info.Value),
		}

		if l := h.Logger(); l != nil {
			l.WriteLineString(fmt.Sprintf("mpkern panic: core=%d task=%d panic=%v", info.Core, info.TaskID, info.Value))
			for _, line := range strings.Split(string(info.Stack), "\n") {
				if line != "" {
					l.WriteLineString(line)
				}
			}
		}

		if len(info.Stack) > 0 {
			lines = append(lines, "stack:")
			for _, line := range strings.Split(string(info.Stack), "\n") {
				if line != "" {
					lines = append(lines, line)
				}
			}
		} else {
			lines = append(lines, "stack: unavailable")
		}

		disp := h.Display()
		if disp == nil || disp.Framebuffer() == nil {
			return
		}
		_, _ = drawLines(newFBDisplay(disp.Framebuffer()), colorPanicBG, lines)
	})
}
