// Package client provides a Go SDK for the cliflow process orchestrator API.
//
// It wraps the REST endpoints under /api/v1/processes and /admin with typed
// methods, plus a WebSocket client for real-time process/task event
// streaming.
//
// # Basic Usage
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	id, err := c.StartProcess(ctx, client.StartProcessRequest{
//	    Type:      "deploy",
//	    InputData: map[string]any{"env": "staging"},
//	})
//
// # WebSocket Events
//
//	err := c.ConnectWebSocket(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.CloseWebSocket()
//
//	for event := range c.Events() {
//	    fmt.Printf("Event: %s\n", event.Type)
//	}
//
// # Configuration
//
// The client supports functional options for configuration:
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithAPIKey("your-api-key"),
//	    client.WithTimeout(30 * time.Second),
//	)
package client
