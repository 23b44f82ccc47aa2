package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/vision-care-api/internal/app"
	"github.com/noah-isme/vision-care-api/internal/models"
)

var framesCmd = &cobra.Command{
	Use:   "frames",
	Short: "Inspect and correct frame inventory",
}

var framesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List frames",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		frameType, _ := cmd.Flags().GetString("type")
		size, _ := cmd.Flags().GetString("size")
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		filter := models.FrameFilter{
			Status:   models.FrameStatus(strings.ToUpper(status)),
			Type:     models.FrameType(strings.ToUpper(frameType)),
			Page:     page,
			PageSize: pageSize,
		}
		if strings.EqualFold(size, "none") {
			filter.GeneralSize = true
		} else {
			filter.SizeID = size
		}

		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			frames, pagination, err := c.Frames.ListFrames(ctx, filter)
			if err != nil {
				return err
			}
			if len(frames) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No frames found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSERIAL\tTYPE\tSIZE\tSTATUS\tSTUDENT")
			for _, f := range frames {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					f.ID, f.SerialNumber, f.Type, orDash(f.SizeID), f.Status, orDash(f.AllocatedStudentID))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if pagination != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d frames\n", pagination.Page, len(frames), pagination.TotalCount)
			}
			return nil
		})
	},
}

var framesAllocateCmd = &cobra.Command{
	Use:   "allocate <frame-id>",
	Short: "Allocate a frame to a student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, _ := cmd.Flags().GetString("student")
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			result, err := c.Frames.Allocate(ctx, args[0], studentID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var framesReleaseCmd = &cobra.Command{
	Use:   "release <frame-id>",
	Short: "Release a frame held by a student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, _ := cmd.Flags().GetString("student")
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			result, err := c.Frames.Release(ctx, args[0], studentID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		})
	},
}

var framesStatusCmd = &cobra.Command{
	Use:   "status <frame-id> <AVAILABLE|LOST|DAMAGED>",
	Short: "Correct a frame's status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status := models.FrameStatus(strings.ToUpper(args[1]))
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			result, err := c.Frames.ChangeStatus(ctx, args[0], status)
			if err != nil {
				return err
			}
			if result.DetachedStudentID != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "detached from student %s\n", *result.DetachedStudentID)
			}
			return printJSON(cmd.OutOrStdout(), result.Frame)
		})
	},
}

var framesSizeCmd = &cobra.Command{
	Use:   "size <frame-id> <size-id|none>",
	Short: "Change a frame's size",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sizeID *string
		if !strings.EqualFold(args[1], "none") {
			sizeID = &args[1]
		}
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			frame, err := c.Frames.ChangeSize(ctx, args[0], sizeID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), frame)
		})
	},
}

func init() {
	framesListCmd.Flags().String("status", "", "Filter by status")
	framesListCmd.Flags().String("type", "", "Filter by frame type")
	framesListCmd.Flags().String("size", "", "Filter by size id, or none for general size")
	framesListCmd.Flags().Int("page", 1, "Page number")
	framesListCmd.Flags().Int("page-size", 20, "Frames per page")

	for _, c := range []*cobra.Command{framesAllocateCmd, framesReleaseCmd} {
		c.Flags().String("student", "", "Student id")
		_ = c.MarkFlagRequired("student")
	}

	framesCmd.AddCommand(framesListCmd, framesAllocateCmd, framesReleaseCmd, framesStatusCmd, framesSizeCmd)
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
