package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"weibogeo/pkg/query"
)

var (
	urlsInput    string
	urlsOutput   string
	urlsCardlist string
)

var urlsCmd = &cobra.Command{
	Use:   "urls",
	Short: "Build API query URLs for geocoded places",
	Long: `Build the container API base URL for every geocoded place in the
input CSV. Places without coordinates are skipped with a warning.

A place page URL copied from the mobile site can be converted directly
with --cardlist instead of going through geocoding.

This stage exists for inspection and for feeding external tools; the
'collect' command builds the same URLs itself.`,
	Example: `  weibogeo urls -i geocoded.csv -o urls.csv
  weibogeo urls --cardlist 'https://m.weibo.cn/p/cardlist?containerid=...'`,
	RunE: runURLs,
}

func init() {
	rootCmd.AddCommand(urlsCmd)
	urlsCmd.Flags().StringVarP(&urlsInput, "input", "i", "geocoded.csv", "input CSV of geocoded places")
	urlsCmd.Flags().StringVarP(&urlsOutput, "output", "o", "urls.csv", "output CSV of API URLs")
	urlsCmd.Flags().StringVar(&urlsCardlist, "cardlist", "", "convert a single browser cardlist URL and print the result")
}

func runURLs(cmd *cobra.Command, args []string) error {
	_, log, err := loadConfig()
	if err != nil {
		return err
	}

	if urlsCardlist != "" {
		apiURL, err := query.FromCardlist(urlsCardlist)
		if err != nil {
			return err
		}
		pageOne, err := query.PageURL(apiURL, 1)
		if err != nil {
			return err
		}
		fmt.Println(pageOne)
		return nil
	}

	locations, err := readGeocodedLocations(urlsInput)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, loc := range locations {
		target, err := query.FromLocation(loc)
		if err != nil {
			log.WarnWithFields("skipping location without coordinates", map[string]interface{}{
				"location": loc.Name,
			})
			continue
		}
		pageOne, err := query.PageURL(target.BaseURL, 1)
		if err != nil {
			return err
		}
		rows = append(rows, []string{target.Location, target.Coordinates, pageOne})
	}
	if len(rows) == 0 {
		return fmt.Errorf("no geocoded locations in %s", urlsInput)
	}

	if err := writeURLsCSV(urlsOutput, rows); err != nil {
		return err
	}
	fmt.Printf("Wrote %d URLs -> %s\n", len(rows), urlsOutput)
	return nil
}
