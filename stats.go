package main

import (
	"fmt"
	"time"

	"reels-funnel-bot/model"
	"reels-funnel-bot/store"

	"github.com/spf13/cobra"
)

var funnelOrder = []model.Step{
	model.StepStart,
	model.StepVideo1,
	model.StepVideo2,
	model.StepVideo3,
	model.StepPaymentChoice,
	model.StepWaitingReceipt,
	model.StepCompleted,
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print funnel statistics and conversion rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			stuckAfter, err := cmd.Flags().GetDuration("stuck-after")
			if err != nil {
				return err
			}

			db, err := openDatabase()
			if err != nil {
				return err
			}
			st := store.New(db)

			stats, err := st.FunnelStats()
			if err != nil {
				return err
			}
			total, paid, rate, err := st.ConversionRate()
			if err != nil {
				return err
			}

			fmt.Println("📊 Funnel:")
			for _, step := range funnelOrder {
				fmt.Printf("  %-16s %d\n", step, stats[step])
			}
			fmt.Printf("\n👥 Total users: %d\n", total)
			fmt.Printf("💰 Paid: %d (%.1f%%)\n", paid, rate)

			// Retargeting view: unpaid users idle on a step past the cutoff.
			fmt.Printf("\n⏸  Stuck (idle > %s):\n", stuckAfter)
			for _, step := range model.TrackableSteps {
				stuck, err := st.StuckAtStep(step, stuckAfter)
				if err != nil {
					return err
				}
				fmt.Printf("  %-16s %d\n", step, len(stuck))
			}

			completed, err := st.CompletedUsers()
			if err != nil {
				return err
			}
			fmt.Printf("\n💎 Completed:\n")
			for _, u := range completed {
				fmt.Printf("  %d @%s %s\n", u.ID, u.Username, u.FirstName)
			}
			return nil
		},
	}
	cmd.Flags().Duration("stuck-after", 24*time.Hour, "Idle cutoff for the stuck-users report.")
	return cmd
}
