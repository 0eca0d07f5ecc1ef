package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// VADChanged is true if any live-tunable segmentation threshold changed.
	VADChanged bool
	NewVAD     VADConfig

	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.VADChanged && !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	ov, nv := old.VAD, new.VAD
	if ov.SilenceThreshold != nv.SilenceThreshold ||
		ov.MinFramesThreshold != nv.MinFramesThreshold ||
		ov.MaxFrames != nv.MaxFrames ||
		ov.NoiseLogLevel != nv.NoiseLogLevel {
		d.VADChanged = true
		d.NewVAD = nv
	}
	if ov.Engine != nv.Engine || !equalIntPtr(ov.Aggressiveness, nv.Aggressiveness) {
		d.RestartRequired = append(d.RestartRequired, "vad")
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"audio", old.Audio, new.Audio},
		{"providers", old.Providers, new.Providers},
		{"transcript", old.Transcript, new.Transcript},
		{"dialogue", old.Dialogue, new.Dialogue},
		{"resilience", old.Resilience, new.Resilience},
		{"persona", old.Persona, new.Persona},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
