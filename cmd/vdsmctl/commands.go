package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/karanamabhishek1402/VDSM/internal/domain/category"
	"github.com/karanamabhishek1402/VDSM/internal/domain/entity"
	"github.com/karanamabhishek1402/VDSM/internal/usecase"
	"github.com/spf13/cobra"
)

func submitCmd() *cobra.Command {
	var (
		req      usecase.SubmitRequest
		prompt   string
		cat      string
		ranges   []string
		duration float64
	)
	cmd := &cobra.Command{
		Use:   "submit [video id] [video key]",
		Short: "Request a summary of an uploaded video",
		Long: "Request a summary by text prompt (--prompt), by category (--category) or by\n" +
			"time ranges in percent of the video length (--range 10-20, repeatable).",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reqType, data, err := requestFromFlags(prompt, cat, ranges)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.close()

			req.VideoID, req.VideoKey, req.UserID = args[0], args[1], userID
			req.RequestType, req.RequestData = reqType, data
			req.TargetDurationSeconds = duration
			job, err := a.submit.Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(cmd, job)
		},
	}
	cmd.Flags().StringVar(&prompt, "prompt", "", "natural language description of the scenes to keep")
	cmd.Flags().StringVar(&cat, "category", "", "predefined category: "+strings.Join(category.Default().Keys(), ", "))
	cmd.Flags().StringArrayVar(&ranges, "range", nil, "time range START-END in percent, repeatable")
	cmd.Flags().Float64Var(&duration, "duration", 0, "target summary length in seconds (default from worker config)")
	cmd.Flags().StringVar(&req.Title, "title", "", "summary title")
	cmd.Flags().StringVar(&req.UserEmail, "email", "", "address notified if the summary fails")
	cmd.MarkFlagsMutuallyExclusive("prompt", "category", "range")
	cmd.MarkFlagsOneRequired("prompt", "category", "range")
	return cmd
}

func requestFromFlags(prompt, cat string, ranges []string) (entity.RequestType, entity.RequestData, error) {
	switch {
	case prompt != "":
		return entity.RequestTypeTextPrompt, entity.RequestData{Prompt: prompt}, nil
	case cat != "":
		return entity.RequestTypeCategory, entity.RequestData{Category: cat}, nil
	}
	trs := make([]entity.TimeRange, 0, len(ranges))
	for _, r := range ranges {
		tr, err := parseRange(r)
		if err != nil {
			return "", entity.RequestData{}, err
		}
		trs = append(trs, tr)
	}
	return entity.RequestTypeTimeRange, entity.RequestData{TimeRanges: trs}, nil
}

func parseRange(s string) (entity.TimeRange, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return entity.TimeRange{}, fmt.Errorf("range %q: want START-END", s)
	}
	start, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return entity.TimeRange{}, fmt.Errorf("range %q: bad start: %w", s, err)
	}
	end, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return entity.TimeRange{}, fmt.Errorf("range %q: bad end: %w", s, err)
	}
	return entity.TimeRange{Start: start, End: end}, nil
}

func statusCmd() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "status [job id]",
		Short: "Show the progress of a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("job id: %w", err)
			}
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			if full {
				job, err := a.query.Get(cmd.Context(), id, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd, job)
			}
			p, err := a.query.Progress(cmd.Context(), id, userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "print the whole job record")
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [video id]",
		Short: "List the summaries of a video, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			jobs, err := a.query.List(cmd.Context(), args[0], userID)
			if err != nil {
				return err
			}
			return printJSON(cmd, jobs)
		},
	}
}

func urlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url [job id]",
		Short: "Print a download link for a completed summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("job id: %w", err)
			}
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			url, err := a.query.DownloadURL(cmd.Context(), id, userID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [job id]",
		Short: "Delete a summary and its video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("job id: %w", err)
			}
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			return a.query.Delete(cmd.Context(), id, userID)
		},
	}
}

func categoriesCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the predefined summary categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			vocabulary, err := category.Load(file)
			if err != nil {
				return err
			}
			return printJSON(cmd, usecase.ListCategories(vocabulary))
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "category description overrides (YAML)")
	return cmd
}
