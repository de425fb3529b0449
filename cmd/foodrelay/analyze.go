package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"foodrelay/internal/domain"
	"foodrelay/internal/format"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func analyzeCmd() *cobra.Command {
	var (
		name  string
		email string
		text  bool
	)
	cmd := &cobra.Command{
		Use:   "analyze [imageUrl]",
		Short: "Analyze one food photo and print the nutrition table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger = newLogger("warn")
			c := buildComponents(cfg)

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Analysis.Timeout.Std())
			defer cancel()

			who := domain.Requester{Name: name, Email: email}
			req, err := c.relay.BuildRequest(ctx, domain.RemoteURL(args[0]), who)
			if err != nil {
				color.Red.Println(format.Failure(err))
				return err
			}
			res, err := c.client.Analyze(ctx, req)
			if err != nil {
				color.Red.Println(format.Failure(err))
				return err
			}

			if text {
				fmt.Println(format.Text(res))
				return nil
			}
			printResult(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "requester name sent to the service")
	cmd.Flags().StringVar(&email, "email", "", "requester email sent to the service")
	cmd.Flags().BoolVar(&text, "text", false, "print the chat reply text instead of a table")
	return cmd
}

func printResult(res *domain.AnalysisResult) {
	header := color.New(color.FgGreen, color.OpBold).Render("Food Analysis Complete")
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Food", "Portion", "Calories (kcal)", "Protein (g)", "Carbs (g)", "Fat (g)"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for i, food := range res.Foods {
		table.Append([]string{
			strconv.Itoa(i + 1),
			food.Name,
			food.Portion,
			format.Number(food.Calories),
			format.Number(food.Protein),
			format.Number(food.Carbs),
			format.Number(food.Fat),
		})
	}
	table.SetFooter([]string{"", "Total", "",
		format.Number(res.Calories),
		format.Number(res.Protein),
		format.Number(res.Carbs),
		format.Number(res.Fat),
	})
	table.Render()

	if len(res.Foods) == 0 {
		color.Yellow.Println("No food items recognised.")
	}
}
