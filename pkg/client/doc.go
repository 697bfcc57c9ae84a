/*
Package client is the careerledger Go SDK.

Create a client against a running registry. Registries configured with a
session secret expect a bearer token; development registries accept the
acting account in a header instead:

	c, err := client.New("http://localhost:8080",
	    client.WithBearerToken(os.Getenv("CAREERLEDGER_TOKEN")),
	)

Publish a portfolio and review it:

	p, err := c.Publish(ctx, client.Draft{
	    Title:           "Backend engineer",
	    Skills:          []string{"go", "postgres"},
	    ExperienceLevel: "Advanced",
	})
	if errors.Is(err, client.ErrOrphaned) {
	    // The record was written but the index update failed.
	    _, err = c.Reindex(ctx)
	}
	p, err = c.Approve(ctx, p.ID)

Errors returned for non-2xx responses are *APIError values; use errors.Is
with ErrNotFound, ErrForbidden, ErrConflict and the other sentinels to
branch on them.
*/
package client
