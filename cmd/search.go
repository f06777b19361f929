package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hnidx/hnidx/pkg/config"
	"github.com/hnidx/hnidx/pkg/storage"
)

// Define styles using lipgloss
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33"))

	summaryStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("32")).
			Margin(1, 0, 0, 0)

	noDataStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true).
			Margin(1, 0)
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search indexed stories",
		ArgsUsage: "[query]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of results",
				Value: 20,
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "Result page",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Sort order: relevance, score, recent, oldest, comments",
				Value: "relevance",
			},
			&cli.StringFlag{
				Name:  "author",
				Usage: "Filter by exact author",
			},
			&cli.StringFlag{
				Name:  "domain",
				Usage: "Filter by exact domain",
			},
			&cli.IntFlag{
				Name:  "min-score",
				Usage: "Minimum score",
				Value: -1,
			},
			&cli.IntFlag{
				Name:  "max-score",
				Usage: "Maximum score",
				Value: -1,
			},
			&cli.StringFlag{
				Name:  "has-url",
				Usage: "Filter by URL presence: true or false",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			setupLogging(c)
			return searchStories(ctx, c)
		},
	}
}

func searchStories(ctx context.Context, c *cli.Command) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Printf("Warning: failed to close store: %v\n", err)
		}
	}()

	query := storage.Query{
		Text:     strings.Join(c.Args().Slice(), " "),
		Page:     int(c.Int("page")),
		PageSize: int(c.Int("limit")),
		Sort:     storage.ParseSortOrder(c.String("sort")),
	}
	query.Filters.Author = c.String("author")
	query.Filters.Domain = c.String("domain")
	if min := int(c.Int("min-score")); min >= 0 {
		query.Filters.MinScore = &min
	}
	if max := int(c.Int("max-score")); max >= 0 {
		query.Filters.MaxScore = &max
	}
	if hasURLStr := c.String("has-url"); hasURLStr != "" {
		hasURL, err := strconv.ParseBool(hasURLStr)
		if err != nil {
			return fmt.Errorf("invalid --has-url value %q", hasURLStr)
		}
		query.Filters.HasURL = &hasURL
	}

	result, err := store.Search(ctx, query)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(result.Items) == 0 {
		fmt.Println(noDataStyle.Render("No stories found."))
		return nil
	}

	for _, item := range result.Items {
		printStory(item)
	}

	caser := cases.Title(language.English)
	summary := fmt.Sprintf("%d stories, page %d, sorted by %s",
		len(result.Items), result.Page, caser.String(string(query.Sort)))
	if result.Total >= 0 {
		summary = fmt.Sprintf("%d of %s stories, page %d, sorted by %s",
			len(result.Items), formatNumber(int(result.Total)), result.Page, caser.String(string(query.Sort)))
	}
	fmt.Println(summaryStyle.Render(summary))

	return nil
}

func printStory(item storage.Item) {
	fmt.Println(titleStyle.Render(item.Title))

	meta := fmt.Sprintf("%s points by %s | %s comments | %s",
		formatNumber(item.Score), item.Author, formatNumber(item.Comments), formatTime(item.CreatedAt))
	if item.Domain != "" {
		meta += " | " + item.Domain
	}
	fmt.Println(metaStyle.Render(meta))

	if item.URL != "" {
		fmt.Println(urlStyle.Render(item.URL))
	}
	fmt.Println()
}
