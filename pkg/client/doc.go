// Package client is the Go SDK for the SovereignLedger HTTP API.
//
// Reads are public:
//
//	c, _ := client.New("http://localhost:8080")
//	p, err := c.Progress(ctx)
//	fmt.Println(p.Minted, p.Remaining, p.Cap)
//
// Mutations need a caller token. Exchange an API key for one, or pass a
// token obtained elsewhere with WithBearerToken:
//
//	tok, err := c.IssueToken(ctx, owner, apiKey)
//	c.SetBearerToken(tok.Token)
//	r, err := c.Mint(ctx, recipient, uint256.NewInt(100))
//
// Rejections come back as *APIError. errors.Is matches it against the ledger
// sentinels re-exported here, so callers can branch without parsing bodies:
//
//	if errors.Is(err, client.ErrSupplyCapExceeded) { ... }
package client
