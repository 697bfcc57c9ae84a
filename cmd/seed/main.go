// cmd/seed: publishes a set of sample portfolios to a running registry for
// development, then approves or rejects some of them.
//
// The registry must run without auth.jwt_secret so the X-Account header is
// accepted. Running twice publishes a second copy of every portfolio.
//
// Usage:
//
//	go run ./cmd/seed
//	REGISTRY_URL=http://localhost:8080 go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jmerrifield20/careerledger/pkg/client"
)

const defaultRegistry = "http://localhost:8080"

type seedPortfolio struct {
	Owner    string
	Draft    client.Draft
	Decision string // "", "approve" or "reject"
}

var portfolios = []seedPortfolio{
	{
		Owner: "0xA11CE00000000000000000000000000000000001",
		Draft: client.Draft{
			Title:           "Backend engineer, payments",
			Description:     "Six years building settlement pipelines and ledger services.",
			Skills:          []string{"go", "postgres", "kafka"},
			ExperienceLevel: "Advanced",
		},
		Decision: "approve",
	},
	{
		Owner: "0xA11CE00000000000000000000000000000000001",
		Draft: client.Draft{
			Title:           "Smart contract auditor",
			Description:     "Reviewed lending and DEX protocols on EVM chains.",
			Skills:          []string{"solidity", "foundry", "formal verification"},
			ExperienceLevel: "Expert",
		},
	},
	{
		Owner: "0xB0B0000000000000000000000000000000000002",
		Draft: client.Draft{
			Title:           "Frontend developer",
			Description:     "Design systems and accessible dashboards.",
			Skills:          []string{"typescript", "react", "css"},
			ExperienceLevel: "Intermediate",
		},
		Decision: "reject",
	},
	{
		Owner: "0xB0B0000000000000000000000000000000000002",
		Draft: client.Draft{
			Title:  "Data analyst intern",
			Skills: []string{"sql", "python"},
			// ExperienceLevel left empty: the registry defaults it.
		},
	},
	{
		Owner: "0xCA40000000000000000000000000000000000003",
		Draft: client.Draft{
			Title:           "Site reliability engineer",
			Description:     "On-call lead for a multi-region Kubernetes platform.",
			Skills:          []string{"kubernetes", "terraform", "prometheus"},
			ExperienceLevel: "Advanced",
		},
		Decision: "approve",
	},
	{
		Owner: "0xCA40000000000000000000000000000000000003",
		Draft: client.Draft{
			Title:           "Zero-knowledge researcher",
			Description:     "Circuit design for private credential proofs.",
			Skills:          []string{"rust", "circom", "cryptography"},
			ExperienceLevel: "Beginner",
		},
	},
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	base := os.Getenv("REGISTRY_URL")
	if base == "" {
		base = defaultRegistry
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := client.MustNew(base).Ready(ctx); err != nil {
		return fmt.Errorf("registry not ready at %s: %w", base, err)
	}
	fmt.Println("connected to registry", base)

	for _, sp := range portfolios {
		c, err := client.New(base, client.WithAccount(sp.Owner))
		if err != nil {
			return err
		}

		p, err := c.Publish(ctx, sp.Draft)
		var apiErr *client.APIError
		if errors.Is(err, client.ErrOrphaned) && errors.As(err, &apiErr) {
			fmt.Printf("  orphaned %s, reindexing\n", apiErr.ID)
			if _, err := c.Reindex(ctx, apiErr.ID); err != nil {
				return fmt.Errorf("reindex %s: %w", apiErr.ID, err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("publish %q: %w", sp.Draft.Title, err)
		}
		fmt.Printf("  publish %s  %s\n", p.ID, p.Title)

		switch sp.Decision {
		case "approve":
			_, err = c.Approve(ctx, p.ID)
		case "reject":
			_, err = c.Reject(ctx, p.ID)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", sp.Decision, p.ID, err)
		}
		if sp.Decision != "" {
			fmt.Printf("  %-7s %s\n", sp.Decision, p.ID)
		}
	}

	stats, err := client.MustNew(base).Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	fmt.Printf("\nseed complete: %d total, %d pending, %d verified, %d rejected\n",
		stats.Total, stats.Pending, stats.Verified, stats.Rejected)
	return nil
}
