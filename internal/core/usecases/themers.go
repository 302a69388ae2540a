package usecases

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/samirrijal/geofield/internal/core/domain"
)

// Built-in themer IDs.
const (
	ThemerMarkerIcon      = "marker_icon"
	ThemerEntityBundle    = "entity_bundle"
	ThemerTaxonomyTerm    = "taxonomy_term"
	ThemerPropertyValue   = "property_value"
	ThemerNumericInterval = "numeric_interval"
)

const defaultLegendLabel = "Other"

var (
	iconSetting        = domain.SettingField{Name: "icon", Type: "icon", Required: true, Description: "Icon used for every feature"}
	fieldSetting       = domain.SettingField{Name: "field", Type: "string", Required: true, Description: "Field or property holding the classification value"}
	valuesSetting      = domain.SettingField{Name: "values", Type: "key_icon_list", Description: "Icon, weight and legend label per value"}
	intervalsSetting   = domain.SettingField{Name: "intervals", Type: "interval_list", Description: "Icon, weight and legend label per numeric range"}
	defaultIconSetting = domain.SettingField{Name: "default_icon", Type: "icon", Description: "Icon for unmatched features"}
)

var builtinThemers = []struct {
	def     domain.ThemerDefinition
	factory ThemerFactory
}{
	{
		def: domain.ThemerDefinition{
			ID:             ThemerMarkerIcon,
			Name:           "Marker icon",
			Description:    "One fixed icon for every feature",
			Arity:          domain.AritySingleValue,
			SettingsSchema: []domain.SettingField{iconSetting},
		},
		factory: newSingleIconThemer,
	},
	{
		def: domain.ThemerDefinition{
			ID:             ThemerEntityBundle,
			Name:           "Entity type",
			Description:    "One icon per entity bundle",
			Arity:          domain.ArityKeyValue,
			SettingsSchema: []domain.SettingField{valuesSetting, defaultIconSetting},
		},
		factory: keyValueFactory(classifyBundle, false),
	},
	{
		def: domain.ThemerDefinition{
			ID:             ThemerTaxonomyTerm,
			Name:           "Taxonomy term",
			Description:    "One icon per term referenced by a field",
			Arity:          domain.ArityKeyValue,
			SettingsSchema: []domain.SettingField{fieldSetting, valuesSetting, defaultIconSetting},
		},
		factory: keyValueFactory(classifyReference, true),
	},
	{
		def: domain.ThemerDefinition{
			ID:             ThemerPropertyValue,
			Name:           "Property value",
			Description:    "One icon per value of a feature property",
			Arity:          domain.ArityKeyValue,
			SettingsSchema: []domain.SettingField{fieldSetting, valuesSetting, defaultIconSetting},
		},
		factory: keyValueFactory(classifyProperty, true),
	},
	{
		def: domain.ThemerDefinition{
			ID:             ThemerNumericInterval,
			Name:           "Numeric interval",
			Description:    "One icon per range of a numeric property",
			Arity:          domain.ArityInterval,
			SettingsSchema: []domain.SettingField{fieldSetting, intervalsSetting, defaultIconSetting},
		},
		factory: newIntervalThemer,
	},
}

// single_value

type singleIconThemer struct {
	def  domain.ThemerDefinition
	icon string
}

func newSingleIconThemer(def domain.ThemerDefinition, s domain.ThemerSettings) (ThemerPlugin, error) {
	if s.Icon == "" {
		return nil, errors.New("icon is required")
	}
	return &singleIconThemer{def: def, icon: s.Icon}, nil
}

func (t *singleIconThemer) Definition() domain.ThemerDefinition { return t.def }

func (t *singleIconThemer) Classify(domain.GeoFeature, *domain.Entity) (string, error) {
	return "*", nil
}

func (t *singleIconThemer) IconFor(string) (string, bool) { return t.icon, true }

func (t *singleIconThemer) Legend(cfg domain.LegendConfig) (domain.LegendTable, error) {
	label := cfg.DefaultLabel
	if label == "" {
		label = t.def.Name
	}
	return domain.LegendTable{
		PluginID: t.def.ID,
		Title:    cfg.Title,
		Rows:     []domain.LegendRow{{Key: "*", Label: label, Icon: t.icon}},
	}, nil
}

// key_value

type classifier func(f domain.GeoFeature, e *domain.Entity, field string) (string, error)

type keyValueThemer struct {
	def         domain.ThemerDefinition
	field       string
	classify    classifier
	icons       map[string]string
	rows        []domain.ThemerValue
	defaultIcon string
}

func keyValueFactory(classify classifier, needsField bool) ThemerFactory {
	return func(def domain.ThemerDefinition, s domain.ThemerSettings) (ThemerPlugin, error) {
		if needsField && s.Field == "" {
			return nil, errors.New("field is required")
		}
		t := &keyValueThemer{
			def:         def,
			field:       s.Field,
			classify:    classify,
			icons:       make(map[string]string, len(s.Values)),
			defaultIcon: s.DefaultIcon,
		}
		seen := make(map[string]int, len(s.Values))
		for _, v := range s.Values {
			if v.Key == "" {
				return nil, errors.New("value with empty key")
			}
			if i, dup := seen[v.Key]; dup {
				t.rows[i] = v
			} else {
				seen[v.Key] = len(t.rows)
				t.rows = append(t.rows, v)
			}
			if v.Icon != "" {
				t.icons[v.Key] = v.Icon
			} else {
				delete(t.icons, v.Key)
			}
		}
		sort.SliceStable(t.rows, func(i, j int) bool { return t.rows[i].Weight < t.rows[j].Weight })
		return t, nil
	}
}

func (t *keyValueThemer) Definition() domain.ThemerDefinition { return t.def }

func (t *keyValueThemer) Classify(f domain.GeoFeature, e *domain.Entity) (string, error) {
	return t.classify(f, e, t.field)
}

func (t *keyValueThemer) IconFor(key string) (string, bool) {
	if icon, ok := t.icons[key]; ok {
		return icon, true
	}
	if t.defaultIcon != "" {
		return t.defaultIcon, true
	}
	return "", false
}

func (t *keyValueThemer) Legend(cfg domain.LegendConfig) (domain.LegendTable, error) {
	table := domain.LegendTable{PluginID: t.def.ID, Title: cfg.Title}
	for _, v := range t.rows {
		if v.Icon == "" && !cfg.RenderDefault {
			continue
		}
		label := v.Label
		if label == "" {
			label = v.Key
		}
		table.Rows = append(table.Rows, domain.LegendRow{Key: v.Key, Label: label, Icon: v.Icon, Weight: v.Weight})
	}
	if cfg.RenderDefault && t.defaultIcon != "" {
		table.Rows = append(table.Rows, defaultRow(cfg, t.defaultIcon))
	}
	return table, nil
}

func classifyBundle(f domain.GeoFeature, e *domain.Entity, _ string) (string, error) {
	if e != nil && e.Bundle != "" {
		return e.Bundle, nil
	}
	if b, ok := f.Property("bundle"); ok {
		return b, nil
	}
	return "", nil
}

// classifyReference returns the first value of a reference field, from the
// entity when known, else from the feature properties.
func classifyReference(f domain.GeoFeature, e *domain.Entity, field string) (string, error) {
	if e != nil {
		if refs := e.Fields[field]; len(refs) > 0 {
			return refs[0], nil
		}
	}
	switch v := f.Properties[field].(type) {
	case nil:
		return "", nil
	case []any:
		if len(v) == 0 {
			return "", nil
		}
		return fmt.Sprint(v[0]), nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("field %s: unsupported value %T", field, v)
	}
}

func classifyProperty(f domain.GeoFeature, _ *domain.Entity, field string) (string, error) {
	if v, ok := f.Properties[field].(map[string]any); ok {
		return "", fmt.Errorf("property %s: expected a scalar, got object of %d keys", field, len(v))
	}
	v, _ := f.Property(field)
	return v, nil
}

// interval

type intervalThemer struct {
	def         domain.ThemerDefinition
	field       string
	intervals   []domain.ThemerInterval
	icons       map[string]string
	order       []int
	defaultIcon string
}

func newIntervalThemer(def domain.ThemerDefinition, s domain.ThemerSettings) (ThemerPlugin, error) {
	if s.Field == "" {
		return nil, errors.New("field is required")
	}
	t := &intervalThemer{
		def:         def,
		field:       s.Field,
		intervals:   s.Intervals,
		icons:       make(map[string]string, len(s.Intervals)),
		defaultIcon: s.DefaultIcon,
	}
	for i, iv := range s.Intervals {
		if iv.Min != nil && iv.Max != nil && *iv.Min >= *iv.Max {
			return nil, fmt.Errorf("interval %d: min %v must be below max %v", i, *iv.Min, *iv.Max)
		}
		if iv.Icon != "" {
			t.icons[strconv.Itoa(i)] = iv.Icon
		}
		t.order = append(t.order, i)
	}
	sort.SliceStable(t.order, func(a, b int) bool {
		return s.Intervals[t.order[a]].Weight < s.Intervals[t.order[b]].Weight
	})
	return t, nil
}

func (t *intervalThemer) Definition() domain.ThemerDefinition { return t.def }

// Classify returns the index of the first interval containing the value.
func (t *intervalThemer) Classify(f domain.GeoFeature, _ *domain.Entity) (string, error) {
	raw, ok := f.Property(t.field)
	if !ok || raw == "" {
		return "", nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return "", fmt.Errorf("property %s: %q is not numeric", t.field, raw)
	}
	for i, iv := range t.intervals {
		if iv.Min != nil && v < *iv.Min {
			continue
		}
		if iv.Max != nil && v >= *iv.Max {
			continue
		}
		return strconv.Itoa(i), nil
	}
	return "", nil
}

func (t *intervalThemer) IconFor(key string) (string, bool) {
	if icon, ok := t.icons[key]; ok {
		return icon, true
	}
	if t.defaultIcon != "" {
		return t.defaultIcon, true
	}
	return "", false
}

func (t *intervalThemer) Legend(cfg domain.LegendConfig) (domain.LegendTable, error) {
	table := domain.LegendTable{PluginID: t.def.ID, Title: cfg.Title}
	for _, i := range t.order {
		iv := t.intervals[i]
		if iv.Icon == "" && !cfg.RenderDefault {
			continue
		}
		label := iv.Label
		if label == "" {
			label = intervalLabel(iv)
		}
		table.Rows = append(table.Rows, domain.LegendRow{Key: strconv.Itoa(i), Label: label, Icon: iv.Icon, Weight: iv.Weight})
	}
	if cfg.RenderDefault && t.defaultIcon != "" {
		table.Rows = append(table.Rows, defaultRow(cfg, t.defaultIcon))
	}
	return table, nil
}

func intervalLabel(iv domain.ThemerInterval) string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	switch {
	case iv.Min != nil && iv.Max != nil:
		return f(*iv.Min) + " - " + f(*iv.Max)
	case iv.Min != nil:
		return ">= " + f(*iv.Min)
	case iv.Max != nil:
		return "< " + f(*iv.Max)
	default:
		return "all"
	}
}

func defaultRow(cfg domain.LegendConfig, icon string) domain.LegendRow {
	label := cfg.DefaultLabel
	if label == "" {
		label = defaultLegendLabel
	}
	return domain.LegendRow{Key: "", Label: label, Icon: icon, Weight: 1 << 30}
}
