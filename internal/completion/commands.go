package completion

// Local command names handled by moonterm itself.
var localCommands = []Command{
	{Name: "ls", TakesArgs: true},
	{Name: "print", TakesArgs: true, Files: true},
	{Name: "reprint"},
	{Name: "info", TakesArgs: true, Files: true},
	{Name: "history"},
	{Name: "z", TakesArgs: true},
	{Name: "pause"},
	{Name: "resume"},
	{Name: "cancel"},
	{Name: "help"},
}

// Common G-code and Klipper commands.
var gcodeCommands = []Command{
	{Name: "G0", TakesArgs: true},
	{Name: "G1", TakesArgs: true},
	{Name: "G28", TakesArgs: true},
	{Name: "G90"},
	{Name: "G91"},
	{Name: "M84"},
	{Name: "M104", TakesArgs: true},
	{Name: "M105"},
	{Name: "M106", TakesArgs: true},
	{Name: "M107"},
	{Name: "M109", TakesArgs: true},
	{Name: "M112"},
	{Name: "M114"},
	{Name: "M115"},
	{Name: "M140", TakesArgs: true},
	{Name: "M190", TakesArgs: true},
	{Name: "M220", TakesArgs: true},
	{Name: "M221", TakesArgs: true},
	{Name: "M400"},
	{Name: "BED_MESH_CALIBRATE", TakesArgs: true},
	{Name: "FIRMWARE_RESTART"},
	{Name: "RESTART"},
	{Name: "SAVE_CONFIG"},
	{Name: "SET_GCODE_OFFSET", TakesArgs: true},
	{Name: "STATUS"},
}

// DefaultCommands returns the local commands followed by common G-code.
func DefaultCommands() []Command {
	out := make([]Command, 0, len(localCommands)+len(gcodeCommands))
	out = append(out, localCommands...)
	return append(out, gcodeCommands...)
}

// FileCommands returns the names of commands that take a file argument.
func FileCommands() []string {
	var out []string
	for _, c := range localCommands {
		if c.Files {
			out = append(out, c.Name)
		}
	}
	return out
}
