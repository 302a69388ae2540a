package domain

// ThemerArity describes how a classification key maps to icons.
type ThemerArity string

const (
	AritySingleValue ThemerArity = "single_value"
	ArityKeyValue    ThemerArity = "key_value"
	ArityInterval    ThemerArity = "interval"
)

// SettingField describes one entry of a themer's settings form.
type SettingField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// ThemerDefinition is the static description of a theming plugin.
type ThemerDefinition struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Description    string         `json:"description" yaml:"description"`
	Arity          ThemerArity    `json:"arity" yaml:"arity"`
	SettingsSchema []SettingField `json:"settings_schema" yaml:"settings_schema"`
}

// ThemerValue maps one discrete classification value to an icon.
type ThemerValue struct {
	Key    string `json:"key" yaml:"key"`
	Icon   string `json:"icon,omitempty" yaml:"icon,omitempty"`
	Weight int    `json:"weight" yaml:"weight"`
	Label  string `json:"label,omitempty" yaml:"label,omitempty"`
}

// ThemerInterval maps the half-open range [Min, Max) to an icon.
// A nil bound is unbounded on that side.
type ThemerInterval struct {
	Min    *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max    *float64 `json:"max,omitempty" yaml:"max,omitempty"`
	Icon   string   `json:"icon,omitempty" yaml:"icon,omitempty"`
	Weight int      `json:"weight" yaml:"weight"`
	Label  string   `json:"label,omitempty" yaml:"label,omitempty"`
}

// ThemerSettings is the per-plugin configuration.
type ThemerSettings struct {
	Icon        string           `json:"icon,omitempty" yaml:"icon,omitempty"`
	Field       string           `json:"field,omitempty" yaml:"field,omitempty"`
	Values      []ThemerValue    `json:"values,omitempty" yaml:"values,omitempty"`
	Intervals   []ThemerInterval `json:"intervals,omitempty" yaml:"intervals,omitempty"`
	DefaultIcon string           `json:"default_icon,omitempty" yaml:"default_icon,omitempty"`
}

// LegendConfig controls legend generation.
type LegendConfig struct {
	Title         string `json:"title,omitempty" yaml:"title,omitempty"`
	RenderDefault bool   `json:"render_default" yaml:"render_default"`
	DefaultLabel  string `json:"default_label,omitempty" yaml:"default_label,omitempty"`
}

// LegendRow is one (label, icon) line of a legend.
type LegendRow struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Icon   string `json:"icon,omitempty"`
	Weight int    `json:"weight"`
}

// LegendTable is an ordered legend.
type LegendTable struct {
	PluginID string      `json:"plugin_id"`
	Title    string      `json:"title,omitempty"`
	Rows     []LegendRow `json:"rows"`
}

// ThemerSelection picks a plugin and its settings for one render.
type ThemerSelection struct {
	PluginID string         `json:"plugin" yaml:"plugin"`
	Settings ThemerSettings `json:"settings" yaml:"settings"`
	Legend   *LegendConfig  `json:"legend,omitempty" yaml:"legend,omitempty"`
}

// IconRefs returns every icon reference of the settings once, in
// declaration order.
func (s ThemerSettings) IconRefs() []string {
	var refs []string
	seen := map[string]bool{}
	add := func(ref string) {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	add(s.Icon)
	for _, v := range s.Values {
		add(v.Icon)
	}
	for _, iv := range s.Intervals {
		add(iv.Icon)
	}
	add(s.DefaultIcon)
	return refs
}
