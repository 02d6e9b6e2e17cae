package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	PersonasChanged bool          // true if any persona assets, hint, or style changed
	PersonaChanges  []PersonaDiff // per-persona diffs
	LogLevelChanged bool
	NewLogLevel     LogLevel
}

// PersonaDiff describes what changed for a single persona between two configs.
type PersonaDiff struct {
	Name          string
	AssetsChanged bool
	HintChanged   bool
	StyleChanged  bool
	Added         bool
	Removed       bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldPersonas := make(map[string]*PersonaConfig, len(old.Personas))
	for i := range old.Personas {
		oldPersonas[old.Personas[i].Name] = &old.Personas[i]
	}
	newPersonas := make(map[string]*PersonaConfig, len(new.Personas))
	for i := range new.Personas {
		newPersonas[new.Personas[i].Name] = &new.Personas[i]
	}

	// Detect modified and removed personas.
	for name, oldP := range oldPersonas {
		newP, exists := newPersonas[name]
		if !exists {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{
				Name:    name,
				Removed: true,
			})
			d.PersonasChanged = true
			continue
		}
		pd := diffPersona(name, oldP, newP)
		if pd.AssetsChanged || pd.HintChanged || pd.StyleChanged {
			d.PersonaChanges = append(d.PersonaChanges, pd)
			d.PersonasChanged = true
		}
	}

	// Detect added personas.
	for name := range newPersonas {
		if _, exists := oldPersonas[name]; !exists {
			d.PersonaChanges = append(d.PersonaChanges, PersonaDiff{
				Name:  name,
				Added: true,
			})
			d.PersonasChanged = true
		}
	}

	return d
}

// diffPersona compares two persona configs with the same name.
func diffPersona(name string, old, new *PersonaConfig) PersonaDiff {
	pd := PersonaDiff{Name: name}

	if old.ReferenceAudio != new.ReferenceAudio || old.ReferenceImage != new.ReferenceImage {
		pd.AssetsChanged = true
	}
	if old.StyleHint != new.StyleHint {
		pd.HintChanged = true
	}
	if old.DefaultStyle != new.DefaultStyle {
		pd.StyleChanged = true
	}

	return pd
}
