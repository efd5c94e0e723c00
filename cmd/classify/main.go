package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/room4-2/bookingline/gemini"
	"github.com/room4-2/bookingline/intent"
)

func main() {
	model := flag.String("model", gemini.DefaultModel, "Gemini model used for the fallback")
	timeout := flag.Duration("timeout", intent.DefaultTimeout, "Remote classification timeout")
	flag.Parse()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		log.Fatal("GEMINI_API_KEY not set")
	}

	ctx := context.Background()
	remote, err := gemini.NewClassifier(ctx, apiKey, *model)
	if err != nil {
		log.Fatalf("Failed to create classifier: %v", err)
	}

	// Utterances come from the arguments, or stdin one per line
	utterances := flag.Args()
	if len(utterances) == 0 {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				utterances = append(utterances, line)
			}
		}
	}

	classifier := intent.NewClassifier(remote, *timeout, nil)
	for _, u := range utterances {
		kw, matched := intent.MatchKeywords(u)

		start := time.Now()
		raw, err := remote.Classify(ctx, u)
		elapsed := time.Since(start)

		final := classifier.Classify(ctx, u)

		switch {
		case err != nil:
			log.Printf("❌ %q: remote error after %s: %v", u, elapsed, err)
		case matched:
			fmt.Printf("💬 %q → %s (keyword %s, remote %s in %s)\n", u, final, kw, raw, elapsed)
		default:
			fmt.Printf("💬 %q → %s (remote %s in %s)\n", u, final, raw, elapsed)
		}
	}
}
