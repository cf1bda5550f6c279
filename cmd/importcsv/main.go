// Command importcsv replays a CSV of tweets against a running API instance,
// one /predict-tweet call per row.
package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// textColumns are tried in order when locating the tweet text column.
var textColumns = []string{"text", "tweet", "cleaned_tweet", "content", "message"}

func main() {
	var (
		apiURL  = flag.String("api-url", "http://localhost:8080", "base URL of the classification API")
		csvPath = flag.String("csv", "data/crisis_example.csv", "path to the CSV file")
		delay   = flag.Duration("delay", 500*time.Millisecond, "pause between requests")
		timeout = flag.Duration("timeout", 30*time.Second, "per-request timeout")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *apiURL, *csvPath, *delay, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, apiURL, csvPath string, delay, timeout time.Duration) error {
	rows, header, err := readCSV(csvPath)
	if err != nil {
		return err
	}
	fmt.Printf("loaded %d rows from %s\n", len(rows), csvPath)

	col := -1
	var colName string
	for _, name := range textColumns {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				col, colName = i, name
				break
			}
		}
		if col >= 0 {
			break
		}
	}
	if col < 0 {
		return fmt.Errorf("no text column found, header was %v", header)
	}
	fmt.Printf("using column %q for tweet text\n", colName)

	client := &http.Client{Timeout: timeout}
	endpoint := strings.TrimSuffix(apiURL, "/") + "/predict-tweet"

	var sent, skipped, failed, disasters int
	start := time.Now()

	for i, row := range rows {
		if ctx.Err() != nil {
			fmt.Println("interrupted")
			break
		}
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			skipped++
			continue
		}
		text := strings.TrimSpace(row[col])

		verdict, prob, err := sendTweet(ctx, client, endpoint, text)
		if err != nil {
			failed++
			fmt.Printf("[%d/%d] failed: %v\n", i+1, len(rows), err)
		} else {
			sent++
			if verdict {
				disasters++
			}
			fmt.Printf("[%d/%d] disaster=%t p=%.2f %s\n", i+1, len(rows), verdict, prob, truncate(text, 60))
		}

		if delay > 0 && i < len(rows)-1 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	fmt.Printf("done in %s: sent=%d disasters=%d skipped=%d failed=%d\n",
		time.Since(start).Round(time.Second), sent, disasters, skipped, failed)
	if failed > 0 {
		return fmt.Errorf("%d rows failed", failed)
	}
	return nil
}

func readCSV(path string) ([][]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv rows: %w", err)
	}
	return rows, header, nil
}

func sendTweet(ctx context.Context, client *http.Client, endpoint, text string) (bool, float64, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return false, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return false, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return false, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, 0, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		IsRealDisaster      bool    `json:"is_real_disaster"`
		DisasterProbability float64 `json:"disaster_probability"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return false, 0, fmt.Errorf("decode response: %w", err)
	}
	return out.IsRealDisaster, out.DisasterProbability, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
