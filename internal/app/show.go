package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"marketpulse/internal/storage"
)

// Show prints recent alerts, per-handler sync status, and the current
// dashboard snapshot.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show pipeline state")
	}
	defer closeStore()

	if err := a.showAlerts(ctx, store, opts.Limit); err != nil {
		return err
	}
	if err := a.showSyncStatus(ctx, store); err != nil {
		return err
	}
	return a.showDashboard(ctx, store)
}

func (a *App) showAlerts(ctx context.Context, store storage.AlertStore, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "== Recent alerts ==")
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		fmt.Fprintln(os.Stdout)
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tType\tSymbol\tSeverity\tAck\tMessage")
	for _, alert := range alerts {
		ack := ""
		if alert.Acknowledged {
			ack = "yes"
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.AlertType,
			alert.Symbol,
			alert.Severity,
			ack,
			sanitizeInline(alert.Message),
		)
	}
	writer.Flush()
	fmt.Fprintln(os.Stdout)
	return nil
}

func (a *App) showSyncStatus(ctx context.Context, store storage.SyncStatusStore) error {
	statuses, err := store.ListSyncStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "== Sync status ==")
	if len(statuses) == 0 {
		fmt.Fprintln(os.Stdout, "no sync status recorded")
		fmt.Fprintln(os.Stdout)
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Handler\tStatus\tLast sync (UTC)\tRecords\tError")
	for _, status := range statuses {
		lastSync := "never"
		if status.LastSync != nil {
			lastSync = status.LastSync.UTC().Format(time.RFC3339)
		}
		errMsg := ""
		if status.ErrorMessage != nil {
			errMsg = sanitizeInline(*status.ErrorMessage)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\n",
			status.HandlerName,
			status.Status,
			lastSync,
			status.RecordsSynced,
			errMsg,
		)
	}
	writer.Flush()
	fmt.Fprintln(os.Stdout)
	return nil
}

func (a *App) showDashboard(ctx context.Context, store storage.DashboardStore) error {
	rows, err := store.ListDashboard(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout, "== Dashboard ==")
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "dashboard is empty; has refresh_dashboard run?")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tPrice\t24h %\tVolume 24h\tWhale tx\tSentiment\tLast alert (UTC)")
	for _, row := range rows {
		sentiment := "-"
		if row.AvgSentiment != nil {
			sentiment = fmt.Sprintf("%.2f", *row.AvgSentiment)
		}
		lastAlert := "-"
		if row.LastAlertTime != nil {
			lastAlert = row.LastAlertTime.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%.2f\t%s\t%d\t%s\t%s\n",
			row.Symbol,
			row.CurrentPrice.StringFixed(2),
			row.PriceChange24h,
			row.Volume24h.StringFixed(0),
			row.WhaleTx24h,
			sentiment,
			lastAlert,
		)
	}
	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
