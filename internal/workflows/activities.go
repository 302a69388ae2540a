package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/geofield/internal/core/ports"
	"github.com/samirrijal/geofield/internal/core/usecases"
	"github.com/samirrijal/geofield/internal/pkg/metrics"
)

// PresetIcon is one icon reference used by a themer preset.
type PresetIcon struct {
	Preset string
	Ref    string
}

// IconCheck is the outcome of checking one preset icon.
type IconCheck struct {
	Preset string
	Ref    string
	URL    string
	OK     bool
	Error  string
}

// AuditReport summarises one icon audit run.
type AuditReport struct {
	Checked    int
	Broken     []IconCheck
	FinishedAt time.Time
}

// IconAuditActivities holds the activity implementations for the icon audit workflow.
type IconAuditActivities struct {
	Themers   *usecases.ThemerRegistry
	Resolver  ports.IconResolver
	Validator ports.IconValidator
	Logger    *slog.Logger
}

func (a *IconAuditActivities) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// ListPresetIcons returns the icons of the named presets, or of every
// preset when names is empty.
func (a *IconAuditActivities) ListPresetIcons(ctx context.Context, names []string) ([]PresetIcon, error) {
	if len(names) == 0 {
		names = a.Themers.Presets()
	}
	var out []PresetIcon
	for _, name := range names {
		sel, ok := a.Themers.Preset(name)
		if !ok {
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("unknown themer preset %q", name), "UnknownPreset", nil)
		}
		for _, ref := range sel.Settings.IconRefs() {
			out = append(out, PresetIcon{Preset: name, Ref: ref})
		}
	}
	return out, nil
}

// CheckIcon resolves and validates one icon. A broken icon is a result,
// not an activity failure, so it is never retried.
func (a *IconAuditActivities) CheckIcon(ctx context.Context, icon PresetIcon) (IconCheck, error) {
	check := IconCheck{Preset: icon.Preset, Ref: icon.Ref}

	url := icon.Ref
	if a.Resolver != nil {
		resolved, err := a.Resolver.Resolve(ctx, icon.Ref)
		if err != nil {
			check.Error = err.Error()
			return check, nil
		}
		url = resolved
	}
	check.URL = url

	if a.Validator != nil {
		if err := a.Validator.Validate(ctx, url); err != nil {
			check.Error = err.Error()
			return check, nil
		}
	}
	check.OK = true
	return check, nil
}

// ReportAudit logs the broken icons and publishes their count.
func (a *IconAuditActivities) ReportAudit(ctx context.Context, report AuditReport) error {
	log := a.logger()
	for _, b := range report.Broken {
		log.WarnContext(ctx, "broken preset icon", "preset", b.Preset, "ref", b.Ref, "url", b.URL, "error", b.Error)
	}
	metrics.BrokenPresetIcons.Set(float64(len(report.Broken)))
	log.InfoContext(ctx, "icon audit finished", "checked", report.Checked, "broken", len(report.Broken))
	return nil
}
