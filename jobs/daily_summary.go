package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/homestock/homestock/internal/analytics"
	jobmetrics "github.com/homestock/homestock/internal/jobs"
	"github.com/homestock/homestock/internal/notify"
)

// SummaryLoader computes one summary window.
type SummaryLoader interface {
	Summary(ctx context.Context, q analytics.Query) (analytics.Summary, error)
}

// DailySummaryJob sends the operator a digest of one day's figures.
type DailySummaryJob struct {
	Analytics SummaryLoader
	Sender    notify.Sender
	Locale    language.Tag
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewDailySummaryJob wires the digest handler. An unparsable locale falls
// back to English.
func NewDailySummaryJob(loader SummaryLoader, sender notify.Sender, locale string, logger *slog.Logger, metrics *jobmetrics.Metrics) *DailySummaryJob {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.English
	}
	return &DailySummaryJob{Analytics: loader, Sender: sender, Locale: tag, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDailySummary tasks.
func (j *DailySummaryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Analytics == nil || j.Sender == nil {
		return errors.New("daily summary: handler not configured")
	}
	var payload DailySummaryPayload
	if err := decodePayload(t.Payload(), &payload); err != nil {
		return fmt.Errorf("daily summary: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskDailySummary)
	defer func() { err = tracker.End(err) }()

	query := analytics.Query{Window: analytics.WindowYesterday}
	if payload.Date != "" {
		query = analytics.Query{Window: analytics.WindowCustom, From: payload.Date, To: payload.Date}
	}
	summary, err := j.Analytics.Summary(ctx, query)
	if err != nil {
		if errors.Is(err, analytics.ErrInvalidRange) {
			return fmt.Errorf("daily summary: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	msg := FormatDailySummary(j.Locale, summary)
	if err := j.Sender.Send(ctx, msg); err != nil {
		jobLogger(j.Logger, TaskDailySummary).Error("deliver daily summary", slog.Any("error", err))
		return err
	}
	metricsOrDefault(j.Metrics).AlertSent("daily_summary", j.Sender.Channel())
	return nil
}

// FormatDailySummary renders a summary with locale-aware number formatting.
func FormatDailySummary(tag language.Tag, summary analytics.Summary) notify.Message {
	p := message.NewPrinter(tag)
	var b strings.Builder
	b.WriteString(p.Sprintf("Revenue: %s\n", formatAmount(p, summary.Revenue)))
	b.WriteString(p.Sprintf("Purchase cost: %s\n", formatAmount(p, summary.Cost)))
	b.WriteString(p.Sprintf("Profit: %s (%s%%)\n", formatAmount(p, summary.Profit), formatAmount(p, summary.ProfitMargin)))
	b.WriteString(p.Sprintf("Units sold: %d across %d sales", summary.UnitsSold, summary.SalesCount))
	for i, product := range summary.Products {
		if i == 3 || product.UnitsSold == 0 {
			break
		}
		b.WriteString(p.Sprintf("\n%d. %s: %d units, %s", i+1, product.Name, product.UnitsSold, formatAmount(p, product.Revenue)))
	}
	return notify.Message{Title: "Daily summary " + summary.From, Text: b.String()}
}

// formatAmount renders d with two decimals in the printer's locale. Only the
// integer part goes through the printer, as an int64, so the digits match
// the API figures exactly.
func formatAmount(p *message.Printer, d decimal.Decimal) string {
	fixed := d.StringFixed(2)
	sign := ""
	if rest, ok := strings.CutPrefix(fixed, "-"); ok {
		sign, fixed = "-", rest
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return sign + fixed
	}
	return sign + p.Sprintf("%d", n) + decimalSeparator(p) + frac
}

func decimalSeparator(p *message.Printer) string {
	return strings.Trim(p.Sprintf("%.1f", 0.5), "05")
}
