package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/vision-care-api/internal/app"
	"github.com/noah-isme/vision-care-api/internal/dto"
	"github.com/noah-isme/vision-care-api/internal/models"
)

var studentsCmd = &cobra.Command{
	Use:   "students",
	Short: "Inspect and move students through the workflow",
}

var studentsShowCmd = &cobra.Command{
	Use:   "show <student-id>",
	Short: "Show a student's workflow state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			student, err := c.Transitions.GetStudent(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), student)
		})
	},
}

var studentsTransitionCmd = &cobra.Command{
	Use:   "transition <student-id> <phase>",
	Short: "Move a student to another phase",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, _ := cmd.Flags().GetString("actor")
		frameID, _ := cmd.Flags().GetString("frame")
		note, _ := cmd.Flags().GetString("note")
		outcome, _ := cmd.Flags().GetString("outcome")

		command := dto.TransitionCommand{
			StudentID:     args[0],
			TargetPhase:   models.Phase(strings.ToUpper(args[1])),
			ActorID:       actor,
			OutcomeStatus: models.OutcomeStatus(strings.ToUpper(outcome)),
		}
		if frameID != "" {
			command.FrameID = &frameID
		}
		if note != "" {
			command.Note = &note
		}

		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			result, err := c.Transitions.ApplyTransition(ctx, command)
			if err != nil {
				return err
			}
			if result.NoOp {
				fmt.Fprintln(cmd.ErrOrStderr(), "student already in target phase")
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var studentsHistoryCmd = &cobra.Command{
	Use:   "history <student-id>",
	Short: "List a student's phase history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			entries, err := c.History.ListByStudent(ctx, args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history recorded.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "WHEN\tPHASE\tOUTCOME\tACTOR\tNOTE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					e.RecordedAt.Format(time.RFC3339), e.Phase, orDashStr(string(e.OutcomeStatus)), e.ActorID, orDash(e.Note))
			}
			return tw.Flush()
		})
	},
}

func init() {
	studentsTransitionCmd.Flags().String("frame", "", "Frame selected for the student")
	studentsTransitionCmd.Flags().String("note", "", "Note recorded in history")
	studentsTransitionCmd.Flags().String("outcome", "", "Outcome status (PENDING, APPROVED, REJECTED, NOT_ELIGIBLE)")

	studentsCmd.AddCommand(studentsShowCmd, studentsTransitionCmd, studentsHistoryCmd)
}

func orDashStr(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
