package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IconAuditInput is the input for the icon audit workflow.
type IconAuditInput struct {
	// Presets limits the audit; empty audits every preset.
	Presets []string
}

// IconAuditWorkflow checks that every icon referenced by the themer
// presets still resolves to a reachable image, then reports the broken ones.
// Checks run in parallel.
func IconAuditWorkflow(ctx workflow.Context, input IconAuditInput) (AuditReport, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting icon audit workflow", "presets", len(input.Presets))

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var icons []PresetIcon
	if err := workflow.ExecuteActivity(ctx, "ListPresetIcons", input.Presets).Get(ctx, &icons); err != nil {
		return AuditReport{}, err
	}

	futures := make([]workflow.Future, len(icons))
	for i, icon := range icons {
		futures[i] = workflow.ExecuteActivity(ctx, "CheckIcon", icon)
	}

	report := AuditReport{Checked: len(icons)}
	for i, f := range futures {
		var check IconCheck
		if err := f.Get(ctx, &check); err != nil {
			logger.Warn("icon check failed", "preset", icons[i].Preset, "ref", icons[i].Ref, "error", err)
			check = IconCheck{Preset: icons[i].Preset, Ref: icons[i].Ref, Error: err.Error()}
		}
		if !check.OK {
			report.Broken = append(report.Broken, check)
		}
	}
	report.FinishedAt = workflow.Now(ctx)

	if err := workflow.ExecuteActivity(ctx, "ReportAudit", report).Get(ctx, nil); err != nil {
		return report, err
	}
	return report, nil
}
