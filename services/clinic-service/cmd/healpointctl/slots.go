package main

import (
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/healpoint/healpoint/libs/config"
	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/services/clinic-service/internal/booking"
	"github.com/healpoint/healpoint/services/clinic-service/internal/schedule"
	"github.com/spf13/cobra"
)

func slotsCmd() *cobra.Command {
	var (
		physicianID string
		date        string
		step        time.Duration
		timezone    string
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Preview the bookable slots of a physician on a date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("invalid timezone: %w", err)
			}
			ctx := cmd.Context()
			pool, err := db.Open(ctx, url)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			svc := booking.NewService(booking.NewPostgresStore(pool), nil, nil, logger, booking.Config{Step: step, Location: loc})
			slots, err := svc.Slots(ctx, physicianID, date)
			if err != nil {
				return err
			}
			return printSlots(cmd.OutOrStdout(), slots)
		},
	}
	cmd.Flags().StringVar(&physicianID, "physician", "", "physician user id")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD")
	cmd.Flags().DurationVar(&step, "step", time.Duration(config.Int("SLOT_STEP_MINUTES", 30))*time.Minute, "slot step")
	cmd.Flags().StringVar(&timezone, "timezone", config.String("CLINIC_TIMEZONE", "UTC"), "clinic time zone")
	_ = cmd.MarkFlagRequired("physician")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func printSlots(w io.Writer, slots []schedule.Slot) error {
	if len(slots) == 0 {
		_, err := fmt.Fprintln(w, "no availability")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tAVAILABLE")
	for _, s := range slots {
		fmt.Fprintf(tw, "%s\t%t\n", s.Time, s.Available)
	}
	return tw.Flush()
}
