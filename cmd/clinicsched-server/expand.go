package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"clinicsched/backend/internal/domain"
)

type expandOptions struct {
	date     string
	weekdays []int
	interval int
	count    int
	until    string
}

func expandCmd() *cobra.Command {
	var opts expandOptions
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Print the dates a weekly recurrence rule produces",
		Example: "  clinicsched-server expand --date 2026-01-05 --weekdays 1,3 --count 4\n" +
			"  clinicsched-server expand --date 2026-01-05 --weekdays 5 --interval 2 --until 2026-03-31",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.date, "date", "", "first occurrence date (YYYY-MM-DD)")
	cmd.Flags().IntSliceVar(&opts.weekdays, "weekdays", nil, "weekdays to repeat on, 0=Sunday..6=Saturday")
	cmd.Flags().IntVar(&opts.interval, "interval", 1, "repeat every N weeks")
	cmd.Flags().IntVar(&opts.count, "count", 0, "stop after N occurrences")
	cmd.Flags().StringVar(&opts.until, "until", "", "last allowed date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("weekdays")
	cmd.MarkFlagsMutuallyExclusive("count", "until")
	return cmd
}

func runExpand(out io.Writer, opts expandOptions) error {
	anchor, err := time.Parse(time.DateOnly, opts.date)
	if err != nil {
		return errors.New("--date must be YYYY-MM-DD")
	}

	rule := domain.RecurrenceRule{IntervalWeeks: opts.interval, Count: opts.count}
	for _, wd := range opts.weekdays {
		rule.Weekdays = append(rule.Weekdays, time.Weekday(wd))
	}
	if opts.until != "" {
		until, err := time.Parse(time.DateOnly, opts.until)
		if err != nil {
			return errors.New("--until must be YYYY-MM-DD")
		}
		rule.Until = &until
	}

	dates, err := domain.ExpandRecurrence(anchor, rule)
	if err != nil {
		return err
	}
	for _, d := range dates {
		fmt.Fprintf(out, "%s %s\n", d.Format(time.DateOnly), d.Weekday().String()[:3])
	}
	fmt.Fprintf(out, "%d occurrence(s)\n", len(dates))
	return nil
}
