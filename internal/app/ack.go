package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// ListPending prints unacknowledged alerts, oldest first, so an
// operator can work through the backlog.
func (a *App) ListPending(ctx context.Context, limit int) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot list alerts")
	}
	defer closeStore()

	alerts, err := store.ListUnacknowledgedAlerts(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "== Pending alerts ==")
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no pending alerts")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTime (UTC)\tType\tSymbol\tSeverity\tMessage")
	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%d\t%s\t%s\t%s\t%s\t%s\n",
			alert.ID,
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.AlertType,
			alert.Symbol,
			alert.Severity,
			sanitizeInline(alert.Message),
		)
	}
	return writer.Flush()
}

// Acknowledge marks the given alerts as handled.
func (a *App) Acknowledge(ctx context.Context, ids []int64) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot acknowledge alerts")
	}
	defer closeStore()

	for _, id := range ids {
		if err := store.AcknowledgeAlert(ctx, id); err != nil {
			return fmt.Errorf("acknowledge alert %d: %w", id, err)
		}
		a.Logger.Info().Int64("alert_id", id).Msg("alert acknowledged")
	}
	return nil
}
