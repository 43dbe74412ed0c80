package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/crawlpost"
)

type ScheduleFlags struct {
	Count     int
	Quota     int
	Times     []string
	StartDays int
	From      string
}

func createScheduleCommand() *cobra.Command {
	f := &ScheduleFlags{}
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Preview publish times for a batch",
		Long: `Compute the publish time of each item in a batch without contacting the daemon.

Examples:
  crawlpost schedule --count=5
  crawlpost schedule --count=6 --quota=2 --times=09:00,18:30 --start-days=1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if f.From != "" {
				t, err := time.ParseInLocation(time.DateTime, f.From, time.Local)
				if err != nil {
					return fmt.Errorf("--from: %w", err)
				}
				now = t
			}
			times, err := crawlpost.CalculateSchedule(now, crawlpost.ScheduleRequest{
				ItemCount:      f.Count,
				DailyQuota:     f.Quota,
				DailyTimes:     f.Times,
				StartDayOffset: f.StartDays,
			})
			if err != nil {
				return err
			}
			for i, t := range times {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", i+1, t.Format(time.DateTime))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&f.Count, "count", 1, "number of items")
	cmd.Flags().IntVar(&f.Quota, "quota", 1, "items per day")
	cmd.Flags().StringSliceVar(&f.Times, "times", []string{"10:00"}, "daily publish slots (HH:MM)")
	cmd.Flags().IntVar(&f.StartDays, "start-days", 0, "days from today until the first publish day")
	cmd.Flags().StringVar(&f.From, "from", "", "reference time \"YYYY-MM-DD HH:MM:SS\" (default now)")
	return cmd
}
