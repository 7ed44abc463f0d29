package state

import (
	"github.com/five82/moonterm/internal/moonraker"
)

// FromStatus converts a Moonraker status object (full or delta) into an Update.
// Objects missing from status leave the corresponding fields nil.
func FromStatus(status moonraker.Status) (Update, error) {
	var u Update

	var stats moonraker.PrintStats
	if ok, err := status.Decode("print_stats", &stats); err != nil {
		return Update{}, err
	} else if ok {
		u.JobState = stats.State
		u.Filename = stats.Filename
		u.Elapsed = stats.TotalDuration
		u.PrintDuration = stats.PrintDuration
		u.FilamentUsed = stats.FilamentUsed
		if stats.Message != nil && *stats.Message != "" {
			u.Message = stats.Message
		}
	}

	var display moonraker.DisplayStatus
	if ok, err := status.Decode("display_status", &display); err != nil {
		return Update{}, err
	} else if ok {
		u.Progress = display.Progress
		if display.Message != nil {
			u.Message = display.Message
		}
	}

	var sd moonraker.VirtualSDCard
	if ok, err := status.Decode("virtual_sdcard", &sd); err != nil {
		return Update{}, err
	} else if ok && u.Progress == nil {
		u.Progress = sd.Progress
	}

	var extruder moonraker.Heater
	if ok, err := status.Decode("extruder", &extruder); err != nil {
		return Update{}, err
	} else if ok {
		u.NozzleCurrent = extruder.Temperature
		u.NozzleTarget = extruder.Target
		u.NozzlePower = extruder.Power
	}

	var bed moonraker.Heater
	if ok, err := status.Decode("heater_bed", &bed); err != nil {
		return Update{}, err
	} else if ok {
		u.BedCurrent = bed.Temperature
		u.BedTarget = bed.Target
		u.BedPower = bed.Power
	}

	var toolhead moonraker.Toolhead
	if ok, err := status.Decode("toolhead", &toolhead); err != nil {
		return Update{}, err
	} else if ok {
		if len(toolhead.Position) >= 3 {
			u.Position = append([]float64(nil), toolhead.Position[:3]...)
		}
		u.HomedAxes = toolhead.HomedAxes
	}

	var move moonraker.GCodeMove
	if ok, err := status.Decode("gcode_move", &move); err != nil {
		return Update{}, err
	} else if ok {
		u.Speed = move.SpeedFactor
		u.Flow = move.ExtrudeFactor
	}

	return u, nil
}
