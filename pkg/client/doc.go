/*
Package client wraps the moderation engine's HTTP API.

Marketplace backends hold a service principal and call the analysis and
gate endpoints before content goes live:

	c, err := client.New("http://riskengine:8090",
	    client.WithCredentials(2, os.Getenv("MODERATION_SECRET")),
	    client.WithRetries(3),
	)
	v, err := c.AutoModMessage(ctx, &client.Message{SenderID: 42, Body: body})
	if err == nil && !v.Allowed {
	    // reject the message; v.Reasons names the signals
	}

Tokens are fetched on first use and refreshed 60 seconds before expiry.
A blocked verdict is a normal response, not an error.

Reviewer tools use the workflow calls:

	page, _ := c.ListFlags(ctx, "pending", 0, 50)
	_, err := c.ReviewFlag(ctx, page.Flags[0].ID, "reject")
	if errors.Is(err, client.ErrConflict) {
	    // someone else reviewed it first
	}
*/
package client
