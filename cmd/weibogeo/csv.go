package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"weibogeo/pkg/geocode"
	"weibogeo/pkg/weibo"
)

// readLocationNames reads place names from the first column of a CSV,
// skipping a header row when one is present.
func readLocationNames(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var names []string
	for i, record := range records {
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		name := strings.TrimSpace(record[0])
		if i == 0 && strings.EqualFold(name, "location") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: no locations found", path)
	}
	return names, nil
}

// readGeocodedLocations reads location,coordinates rows. Rows with an
// empty or malformed coordinates column come back unresolved.
func readGeocodedLocations(path string) ([]geocode.Location, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var locations []geocode.Location
	for i, record := range records {
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		name := strings.TrimSpace(record[0])
		if i == 0 && strings.EqualFold(name, "location") {
			continue
		}
		loc := geocode.Location{Name: name}
		if len(record) > 1 {
			if coords, err := geocode.ParseCoordinates(record[1]); err == nil {
				loc.Coordinates = &coords
			}
		}
		locations = append(locations, loc)
	}
	if len(locations) == 0 {
		return nil, fmt.Errorf("%s: no locations found", path)
	}
	return locations, nil
}

func writeGeocodedCSV(path string, locations []geocode.Location) error {
	file, err := createWithDir(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"location", "coordinates"}); err != nil {
		return err
	}
	for _, loc := range locations {
		coords := ""
		if loc.Resolved() {
			coords = loc.Coordinates.String()
		}
		if err := writer.Write([]string{loc.Name, coords}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeURLsCSV(path string, rows [][]string) error {
	file, err := createWithDir(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"location", "coordinates", "api_url"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writePostsCSV(path string, posts []weibo.Post) error {
	file, err := createWithDir(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"mid", "created_at", "text", "text_length", "source",
		"reposts_count", "comments_count", "attitudes_count",
		"pic_num", "pic_urls", "user_id", "screen_name",
		"followers_count", "verified", "gender",
		"is_repost", "is_long_text", "location", "coordinates",
	}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, p := range posts {
		row := []string{
			p.Mid, p.CreatedAt, p.Text, strconv.Itoa(p.TextLength), p.Source,
			strconv.Itoa(p.RepostsCount), strconv.Itoa(p.CommentsCount),
			strconv.Itoa(p.AttitudesCount), strconv.Itoa(p.PicNum), p.PicURLs,
			strconv.FormatInt(p.UserID, 10), p.ScreenName,
			strconv.Itoa(p.FollowersCount), strconv.FormatBool(p.Verified),
			p.Gender, strconv.FormatBool(p.IsRepost),
			strconv.FormatBool(p.IsLongText), p.Location, p.Coordinates,
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func createWithDir(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return file, nil
}
